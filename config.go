package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit          string        `yaml:"git_commit" envconfig:"LIBF_GIT_COMMIT"`
	GitTag             string        `yaml:"git_tag" envconfig:"LIBF_GIT_TAG"`
	BuildTime          string        `yaml:"build_time" envconfig:"LIBF_BUILD_TIME"`
	AppName            string        `yaml:"app_name" envconfig:"LIBF_APP_NAME"`
	IsProduction       bool          `yaml:"is_production" envconfig:"LIBF_IS_PRODUCTION"`
	LogLevel           zapcore.Level `yaml:"log_level" envconfig:"LIBF_LOG_LEVEL"`
	LogFolder          string        `yaml:"log_folder" envconfig:"LIBF_LOG_FOLDER"`
	LogMaxSize         int           `yaml:"log_max_size" envconfig:"LIBF_LOG_MAX_SIZE"`   // megabytes per file
	LogMaxFiles        int           `yaml:"log_max_files" envconfig:"LIBF_LOG_MAX_FILES"` // 0 keeps every file
	ProfilerEnable     bool          `yaml:"profiler_enable" envconfig:"LIBF_PROFILER_ENABLE"`
	OpsEndpointsEnable bool          `yaml:"ops_endpoints_enable" envconfig:"LIBF_OPS_ENDPOINTS_ENABLE"`
	Server             ServerConfig  `yaml:"server"`
	Gateway            GatewayConfig `yaml:"gateway"`
	Cache              CacheConfig   `yaml:"cache"`
	Redis              RedisConfig   `yaml:"redis"`
	BoltDB             BoltDBConfig  `yaml:"boltdb"`
}

type ServerConfig struct {
	Host                    string        `yaml:"host" envconfig:"LIBF_SERVER_HOST"`
	Port                    string        `yaml:"port" envconfig:"LIBF_SERVER_PORT"`
	ReadTimeout             time.Duration `yaml:"read_timeout" envconfig:"LIBF_SERVER_READ_TIMEOUT"`
	WriteTimeout            time.Duration `yaml:"write_timeout" envconfig:"LIBF_SERVER_WRITE_TIMEOUT"`
	RequestTimeout          time.Duration `yaml:"request_timeout" envconfig:"LIBF_SERVER_REQUEST_TIMEOUT"` // Time to wait for a request to finish
	LongRequestWriteTimeout time.Duration `yaml:"long_request_write_timeout" envconfig:"LIBF_SERVER_LONG_REQUEST_WRITE_TIMEOUT"`
	ShutdownTimeout         time.Duration `yaml:"shutdown_timeout" envconfig:"LIBF_SERVER_SHUTDOWN_TIMEOUT"`
}

// GatewayConfig holds the settings of the remote library api client.
type GatewayConfig struct {
	BaseURL         string        `yaml:"base_url" envconfig:"LIBF_GATEWAY_BASE_URL"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"LIBF_GATEWAY_TIMEOUT"`
	RateLimit       float64       `yaml:"rate_limit" envconfig:"LIBF_GATEWAY_RATE_LIMIT"` // requests per second, 0 disables it
	RateBurst       int           `yaml:"rate_burst" envconfig:"LIBF_GATEWAY_RATE_BURST"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"LIBF_GATEWAY_MAX_IDLE_CONNS"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout" envconfig:"LIBF_GATEWAY_IDLE_CONN_TIMEOUT"`
}

// CacheConfig holds the query cache settings.
type CacheConfig struct {
	KeepUnusedFor time.Duration `yaml:"keep_unused_for" envconfig:"LIBF_CACHE_KEEP_UNUSED_FOR"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"LIBF_CACHE_SWEEP_INTERVAL"`
	LiveBuffer    int           `yaml:"live_buffer" envconfig:"LIBF_CACHE_LIVE_BUFFER"`
}

type RedisConfig struct {
	Enabled       bool          `yaml:"enabled" envconfig:"LIBF_REDIS_ENABLED"`
	Host          string        `yaml:"host" envconfig:"LIBF_REDIS_HOST"`
	Port          string        `yaml:"port" envconfig:"LIBF_REDIS_PORT"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"LIBF_REDIS_DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"LIBF_REDIS_READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"LIBF_REDIS_WRITE_TIMEOUT"`
	PoolSize      int           `yaml:"pool_size" envconfig:"LIBF_REDIS_POOL_SIZE"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"LIBF_REDIS_POOL_TIMEOUT"`
	Username      string        `yaml:"username" envconfig:"LIBF_REDIS_USERNAME"`
	Password      string        `yaml:"password" envconfig:"LIBF_REDIS_PASSWORD" json:"-"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"LIBF_REDIS_DATABASE_INDEX"`
	Channel       string        `yaml:"channel" envconfig:"LIBF_REDIS_CHANNEL"`
}

type BoltDBConfig struct {
	Enabled    bool          `yaml:"enabled" envconfig:"LIBF_BOLTDB_ENABLED"`
	FilePath   string        `yaml:"filepath" envconfig:"LIBF_BOLTDB_FILE_PATH"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"LIBF_BOLTDB_TIMEOUT"`
	BucketName string        `yaml:"bucket_name" envconfig:"LIBF_BOLTDB_BUCKET_NAME"`
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	yd := yaml.NewDecoder(file)
	err = yd.Decode(cfg)

	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and provides an instance of the App config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	setDefaults(config)

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	if u, err := url.Parse(config.Gateway.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("make sure to set a valid absolute gateway base url: %q", config.Gateway.BaseURL)
	}

	if config.Redis.Enabled && (len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0) {
		return errors.New("make sure to set valid redis address and port in configuration file")
	}

	if config.BoltDB.Enabled && (len(config.BoltDB.FilePath) == 0 || len(config.BoltDB.BucketName) == 0) {
		return errors.New("make sure to set valid boltdb file path and bucket name in configuration file")
	}

	return nil
}

func setDefaults(config *Config) {
	if config.AppName == "" {
		config.AppName = "Library Management System"
	}
	if config.LogFolder == "" {
		config.LogFolder = "./logs"
	}
	if config.LogMaxSize <= 0 {
		config.LogMaxSize = 10
	}
	if config.Server.RequestTimeout == 0 {
		config.Server.RequestTimeout = 30 * time.Second
	}
	if config.Server.LongRequestWriteTimeout == 0 {
		config.Server.LongRequestWriteTimeout = 60 * time.Second
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}
	if config.Gateway.BaseURL == "" {
		config.Gateway.BaseURL = "http://localhost:5000/api"
	}
	if config.Gateway.Timeout == 0 {
		config.Gateway.Timeout = 10 * time.Second
	}
	if config.Gateway.RateLimit > 0 && config.Gateway.RateBurst <= 0 {
		config.Gateway.RateBurst = 1
	}
	if config.Gateway.MaxIdleConns <= 0 {
		config.Gateway.MaxIdleConns = 100
	}
	if config.Gateway.IdleConnTimeout == 0 {
		config.Gateway.IdleConnTimeout = 90 * time.Second
	}
	if config.Cache.KeepUnusedFor == 0 {
		config.Cache.KeepUnusedFor = 60 * time.Second
	}
	if config.Cache.SweepInterval == 0 {
		config.Cache.SweepInterval = 30 * time.Second
	}
	if config.Cache.LiveBuffer <= 0 {
		config.Cache.LiveBuffer = 16
	}
	if config.Redis.Channel == "" {
		config.Redis.Channel = "library.invalidations"
	}
	if config.BoltDB.Timeout == 0 {
		config.BoltDB.Timeout = 5 * time.Second
	}
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data.
func LoadAndInitConfigs(gitCommit, gitTag, buildTime string) (*Config, error) {
	// Setup the yaml configuration from file.
	config, err := LoadConfigFile("./config.yml")
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %s", err)
	}

	// Set the environment configuration. The file is optional.
	err = godotenv.Load("./config.env")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return config, fmt.Errorf("failed to set environment configurations: %s", err)
	}

	// Use environment variables with prefix `LIBF`.
	err = LoadConfigEnvs("LIBF", config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %s", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %s", err)
	}
	return config, nil
}
