package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Layout backends.
const (
	LayoutLocal   = "local"
	LayoutWebHDFS = "webhdfs"
	LayoutBucket  = "bucket"
)

// Config holds all configuration for the recorder, classifier and index.
// Precedence, lowest first: defaults, YAML file, environment, command line flags.
type Config struct {
	// HomeDir is the base directory every other default path is derived from.
	HomeDir string `yaml:"home"`
	// RecordDir receives one <queryId>.json per recorded query.
	RecordDir string `yaml:"record_dir"`

	NodeMarker  string `yaml:"node_marker"`
	NodeLogName string `yaml:"node_log_name"`

	Layout         string        `yaml:"layout"`
	BlockSize      int64         `yaml:"block_size"`
	LocalHost      string        `yaml:"local_host"`
	WebHDFSURL     string        `yaml:"webhdfs_url"`
	WebHDFSUser    string        `yaml:"webhdfs_user"`
	WebHDFSTimeout time.Duration `yaml:"webhdfs_timeout"`
	BucketDir      string        `yaml:"bucket_dir"`

	IndexPath  string `yaml:"index_path"`
	ListenPort string `yaml:"listen_port"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		HomeDir:        home,
		NodeMarker:     "node",
		NodeLogName:    "hdfs_read.log",
		Layout:         LayoutLocal,
		BlockSize:      128 * 1024 * 1024,
		LocalHost:      "localhost",
		WebHDFSTimeout: 30 * time.Second,
		ListenPort:     "8080",
		LogLevel:       "info",
		LogFormat:      "logfmt",
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// and QDB_* environment variables.
func Load(path string, logger log.Logger) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("QDB_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	cfg.HomeDir = getEnv("QDB_HOME", cfg.HomeDir)
	cfg.RecordDir = getEnv("QDB_RECORD_DIR", cfg.RecordDir)
	cfg.NodeMarker = getEnv("QDB_NODE_MARKER", cfg.NodeMarker)
	cfg.NodeLogName = getEnv("QDB_NODE_LOG_NAME", cfg.NodeLogName)
	cfg.Layout = getEnv("QDB_LAYOUT", cfg.Layout)
	cfg.BlockSize = getEnvAsInt64(logger, "QDB_BLOCK_SIZE", cfg.BlockSize)
	cfg.LocalHost = getEnv("QDB_LOCAL_HOST", cfg.LocalHost)
	cfg.WebHDFSURL = getEnv("QDB_WEBHDFS_URL", cfg.WebHDFSURL)
	cfg.WebHDFSUser = getEnv("QDB_WEBHDFS_USER", cfg.WebHDFSUser)
	cfg.WebHDFSTimeout = getEnvAsDuration(logger, "QDB_WEBHDFS_TIMEOUT", cfg.WebHDFSTimeout)
	cfg.BucketDir = getEnv("QDB_BUCKET_DIR", cfg.BucketDir)
	cfg.IndexPath = getEnv("QDB_INDEX_PATH", cfg.IndexPath)
	cfg.ListenPort = getEnv("QDB_LISTEN_PORT", cfg.ListenPort)
	cfg.LogLevel = getEnv("QDB_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("QDB_LOG_FORMAT", cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level.Debug(logger).Log("msg", "loaded configuration", "home", cfg.HomeDir, "layout", cfg.Layout, "block_size", cfg.BlockSize, "node_marker", cfg.NodeMarker)
	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	if c.HomeDir == "" {
		return errors.New("home directory must be set")
	}
	if c.NodeMarker == "" {
		return errors.New("node marker must not be empty")
	}
	switch c.Layout {
	case LayoutLocal:
	case LayoutWebHDFS:
		if c.WebHDFSURL == "" {
			return errors.New("webhdfs layout requires QDB_WEBHDFS_URL")
		}
	case LayoutBucket:
		if c.BucketDir == "" {
			return errors.New("bucket layout requires QDB_BUCKET_DIR")
		}
	default:
		return errors.Errorf("unknown layout %q", c.Layout)
	}
	return nil
}

// ResultsDir is <home>/results.
func (c *Config) ResultsDir() string { return filepath.Join(c.HomeDir, "results") }

// DataDir is <home>/results/data, the classified runs.
func (c *Config) DataDir() string { return filepath.Join(c.ResultsDir(), "data") }

// RecordsDir is where extraction records are written, <home>/QueryDataBlocks unless overridden.
func (c *Config) RecordsDir() string {
	if c.RecordDir != "" {
		return c.RecordDir
	}
	return filepath.Join(c.HomeDir, "QueryDataBlocks")
}

// ExplainDir is <home>/results/namenode/ExplainQuery.
func (c *Config) ExplainDir() string {
	return filepath.Join(c.ResultsDir(), "namenode", "ExplainQuery")
}

// ExecutionTimeLog is <home>/QueryExecutionTime.log.
func (c *Config) ExecutionTimeLog() string { return filepath.Join(c.HomeDir, "QueryExecutionTime.log") }

// CPUTimeLog is <home>/QueryCPUTime.log.
func (c *Config) CPUTimeLog() string { return filepath.Join(c.HomeDir, "QueryCPUTime.log") }

// IndexFile is the DuckDB analysis index, <home>/results/index.db unless overridden.
func (c *Config) IndexFile() string {
	if c.IndexPath != "" {
		return c.IndexPath
	}
	return filepath.Join(c.ResultsDir(), "index.db")
}

// getEnv retrieves a string environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvAsInt64 retrieves an int64 environment variable or returns a fallback value.
func getEnvAsInt64(logger log.Logger, key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		level.Warn(logger).Log("msg", "invalid config value, using fallback", "key", key, "fallback", fallback, "err", err)
		return fallback
	}
	return value
}

// getEnvAsDuration retrieves a time.Duration environment variable or returns a fallback value.
func getEnvAsDuration(logger log.Logger, key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		level.Warn(logger).Log("msg", "invalid config value, using fallback", "key", key, "fallback", fallback, "err", err)
		return fallback
	}
	return value
}
