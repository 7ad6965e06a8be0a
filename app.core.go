package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger   *zap.Logger
	config   *Config
	server   *http.Server
	cleanups []func()
	workers  []func(context.Context) error
}

// NewApp provides an instance of App.
func NewApp() (AppProvider, error) {
	config, err := LoadAndInitConfigs(GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %s", err)
	}

	clock := NewSystemClock(config.IsProduction)

	// ensure the logs folder exists and Setup the logging module.
	if err = os.MkdirAll(config.LogFolder, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create logging folder: %s", err)
	}
	logWriter := NewRSyncWriter(config, clock)
	logger, flusher := SetupLogging(config, logWriter, clock)

	app := &App{logger: logger, config: config}
	app.cleanups = append(app.cleanups,
		func() {
			if ferr := flusher(); ferr != nil {
				fmt.Println("error during logs flushing: ", ferr)
			}
		},
		func() {
			if cerr := logWriter.Close(); cerr != nil {
				fmt.Println("error during closing of log file: ", cerr)
			}
		},
	)

	ids := NewIDsHandler()
	instanceID := ids.Generate(InstanceIDPrefix)
	logger = logger.With(zap.String("app.instance", instanceID))
	app.logger = logger

	// Setup the optional invalidation bus and mutations journal.
	bus := NewLocalBus()
	if config.Redis.Enabled {
		redisClient, rerr := GetRedisClient(config)
		if rerr != nil {
			app.Clean()
			return nil, fmt.Errorf("failed to connect to redis server: %s", rerr)
		}
		rbus, serr := NewRedisBus(context.Background(), logger, redisClient, config.Redis.Channel, instanceID, clock)
		if serr != nil {
			_ = redisClient.Close()
			app.Clean()
			return nil, fmt.Errorf("failed to setup invalidation bus: %s", serr)
		}
		bus = rbus
	}

	journal := NewNoopJournal()
	if config.BoltDB.Enabled {
		boltDBClient, berr := GetBoltDBClient(config)
		if berr != nil {
			_ = bus.Close()
			app.Clean()
			return nil, fmt.Errorf("failed to connect to boltDB server: %s", berr)
		}
		journal = NewBoltJournal(logger, &config.BoltDB, boltDBClient)
	}

	// Setup the gateway, the cache and the library service.
	gateway := NewHTTPGateway(logger, config.Gateway.BaseURL, NewHTTPClient(&config.Gateway), NewRateLimiter(&config.Gateway))
	cache := NewQueryCache(logger, clock, ids, config.Cache.KeepUnusedFor)
	library := NewLibraryService(logger, clock, ids, gateway, cache, NewFormValidator(clock), bus, journal)

	// release resources before the logs get flushed.
	app.cleanups = append([]func(){
		cache.Close,
		func() {
			if err := bus.Close(); err != nil {
				logger.Error("failed to close invalidation bus", zap.Error(err))
			}
		},
		func() {
			if err := journal.Close(); err != nil {
				logger.Error("failed to close mutations journal", zap.Error(err))
			}
		},
	}, app.cleanups...)

	apiService := NewAPIHandler(
		logger,
		config,
		&Statistics{
			version:   config.GitTag,
			container: IsAppRunningInDocker(),
			started:   clock.Now(),
			runtime:   runtime.Version(),
			platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
		clock,
		ids,
		library,
	)

	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		apiService.stats.version = config.GitCommit
	}

	// Build the map of middlewares stacks.
	middlewaresPublic, middlewaresOps := apiService.MiddlewaresStacks()

	// Configure the endpoints with their handlers and middlewares.
	router := apiService.SetupRoutes(httprouter.New(),
		&MiddlewareMap{
			public: middlewaresPublic.Chain,
			ops:    middlewaresOps.Chain,
		},
	)

	// Wrap the router with the default http timeout handler. Live views and
	// long profiles are not bounded.
	handler := SplitTimeoutHandler(
		router,
		config.Server.RequestTimeout,
		"Timeout. Processing taking too long. Please reach out to support.",
		LivePrefix,
		ProfilePath,
		TracePath,
	)

	// Build the api server definition.
	app.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler:        handler,
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
		ConnContext:    SaveConnInContext,
	}
	app.server.RegisterOnShutdown(apiService.CloseLiveViews)

	consumer := NewInvalidationConsumer(logger, bus, cache)
	app.workers = []func(context.Context) error{
		consumer.Consume,
		func(ctx context.Context) error {
			return cache.RunJanitor(ctx, config.Cache.SweepInterval)
		},
	}

	return app, nil
}

// Run starts the api web server and a goroutine which is responsible to stop it.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.StartWorkers(gCtx, g))
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("api server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Error(err),
	)
	return err
}

// Clean calls all registered cleanups functions.
func (app *App) Clean() {
	for _, f := range app.cleanups {
		f()
	}
}

// Serve starts the api web server. It returned error
// will be caught by the errorgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("api server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
			zap.String("gateway.base_url", app.config.Gateway.BaseURL),
		)
		err := app.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return err
	}
}

// Stop listens for the group context and triggers the server graceful shutdown.
// It states the reason of its call. We proceed with a brutal shutdown if the
// the graceful did not complete successfully. We explicitly return `nil` to
// allow the errorgroup catches only the `Serve` method result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("api server stopping. reason: requested to stop")
		} else {
			app.logger.Info("api server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch {
		case err == nil, errors.Is(err, http.ErrServerClosed):
			app.logger.Info("api server graceful shutdown succeeded")
		case errors.Is(err, context.DeadlineExceeded):
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}
		return nil
	}
}

// StartWorkers runs the background workers (invalidation consumer,
// cache janitor) into separate controlled goroutines.
func (app *App) StartWorkers(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, work := range app.workers {
			work := work
			g.Go(func() error {
				return work(gCtx)
			})
		}
		return nil
	}
}
