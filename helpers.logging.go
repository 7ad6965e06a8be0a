package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LoggerContextKey ContextKey = "request.logger"
	megabyte                    = 1 << 20
	logFilePrefix               = "libf."
)

// RSyncWrite is a rotable and concurent safe file-based logs writer used
// by the zap core. A new file is opened once the current one would exceed
// the max size, and only the most recent files are kept on disk.
type RSyncWrite struct {
	clock Clocker
	sync.Mutex
	file     *os.File
	folder   string
	limit    int64
	size     int64
	maxFiles int
	isProd   bool
}

func NewRSyncWriter(config *Config, clock Clocker) *RSyncWrite {
	return &RSyncWrite{
		clock:    clock,
		folder:   config.LogFolder,
		limit:    int64(config.LogMaxSize) * megabyte,
		maxFiles: config.LogMaxFiles,
		isProd:   config.IsProduction,
	}
}

// Close closes the current log file.
func (rsw *RSyncWrite) Close() error {
	rsw.Lock()
	defer rsw.Unlock()
	if rsw.file == nil {
		return nil
	}
	err := rsw.file.Close()
	rsw.file = nil
	return err
}

func (rsw *RSyncWrite) Sync() error {
	rsw.Lock()
	defer rsw.Unlock()
	if rsw.file == nil {
		return nil
	}
	return rsw.file.Sync()
}

// Write implements io.Writer. A single entry larger than the max size is rejected.
func (rsw *RSyncWrite) Write(p []byte) (n int, err error) {
	rsw.Lock()
	defer rsw.Unlock()
	pLen := int64(len(p))
	if pLen > rsw.limit {
		return 0, fmt.Errorf("logging: log size %d exceeds max file size %d", pLen, rsw.limit)
	}
	if rsw.file == nil || pLen+rsw.size > rsw.limit {
		if err = rsw.rotate(); err != nil {
			return 0, err
		}
	}
	n, err = rsw.file.Write(p)
	rsw.size += int64(n)
	return n, err
}

// rotate swaps the current file for a new one then prunes the oldest files.
func (rsw *RSyncWrite) rotate() error {
	if rsw.file != nil {
		if err := rsw.file.Close(); err != nil {
			return err
		}
		rsw.file = nil
	}

	path := CreateLogFilePath(rsw.folder, rsw.isProd, rsw.clock.Now())
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	rsw.file = file
	rsw.size = 0
	if info, serr := file.Stat(); serr == nil {
		rsw.size = info.Size()
	}
	return rsw.prune()
}

// prune removes the oldest log files beyond maxFiles. Names embed their
// creation time so the lexical order is the age order.
func (rsw *RSyncWrite) prune() error {
	if rsw.maxFiles <= 0 {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(rsw.folder, logFilePrefix+"*"+logFileSuffix(rsw.isProd)))
	if err != nil {
		return err
	}
	if len(files) <= rsw.maxFiles {
		return nil
	}
	sort.Strings(files)
	for _, f := range files[:len(files)-rsw.maxFiles] {
		if err = os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// SyncWrite implements zap.SyncWriter. This is a small hack to avoid usual
// `Handle is invalid` error when calling Sync() on logger using os.stdout.
type SyncWrite struct {
	out *os.File
}

func (sw *SyncWrite) Sync() error {
	return nil
}

func (sw *SyncWrite) Write(p []byte) (n int, err error) {
	return sw.out.Write(p)
}

func encoderConfig(isProd bool) zapcore.EncoderConfig {
	zapConfig := zap.NewDevelopmentEncoderConfig()
	if isProd {
		zapConfig = zap.NewProductionEncoderConfig()
	}
	zapConfig.TimeKey = "ts"
	zapConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.LevelKey = "lvl"
	zapConfig.NameKey = "name"
	zapConfig.MessageKey = "msg"
	zapConfig.CallerKey = "caller"
	zapConfig.StacktraceKey = "skt"
	return zapConfig
}

// SetupLogging is a helper function that initializes the logging module.
// In production all logs are saved to the defined file. In development
// the same logs are printed to standard output as well. It only adds
// stacktrace to fatal level logs. All logs come with commit & tag value.
// The custom clock provides timestamp in UTC for production environment
// and timestamp in Local timezone in development setup.
func SetupLogging(config *Config, w zapcore.WriteSyncer, clock TickerClocker) (*zap.Logger, func() error) {
	zapConfig := encoderConfig(config.IsProduction)
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(zapConfig), w, config.LogLevel),
	}
	if !config.IsProduction {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(zapConfig), zapcore.Lock(&SyncWrite{os.Stdout}), config.LogLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.FatalLevel), zap.WithClock(clock))
	logger = logger.With(
		zap.String("app.name", config.AppName),
		zap.String("app.commit", config.GitCommit),
		zap.String("app.tag", config.GitTag),
		zap.String("app.built", config.BuildTime),
	)

	flusher := func() error {
		if err := logger.Sync(); err != nil {
			return fmt.Errorf("[flush logs]: %w", err)
		}
		return nil
	}

	return logger, flusher
}

// LoggerFromContext retrieves the request scoped logger set in the context.
// If the logger can't be retrieved it returns the fallback logger.
func LoggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*zap.Logger); ok {
		return logger
	}
	return fallback
}

// CreateLogFilePath returns the path of a new log file named after its creation time.
func CreateLogFilePath(folder string, isProd bool, t time.Time) string {
	name := fmt.Sprintf("%s%04d%02d%02d.%02d%02d%02d%s", logFilePrefix, t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), logFileSuffix(isProd))
	return filepath.Join(folder, name)
}

func logFileSuffix(isProd bool) string {
	if isProd {
		return ".prod.log"
	}
	return ".dev.log"
}
