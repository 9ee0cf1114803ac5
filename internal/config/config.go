// Package config holds the application configuration, loaded from an optional
// YAML file with environment-variable overrides and struct-tag defaults.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Images    ImagesConfig    `yaml:"images"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host" env:"NEXA_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" env:"NEXA_PORT" default:"8484"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"NEXA_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"NEXA_WRITE_TIMEOUT" default:"0s"`
	EnableCORS   bool          `yaml:"enable_cors" env:"NEXA_ENABLE_CORS" default:"true"`
}

// DatabaseConfig selects and configures the backing database.
type DatabaseConfig struct {
	Type         string `yaml:"type" env:"NEXA_DATABASE_TYPE" default:"sqlite"`
	DataDir      string `yaml:"data_dir" env:"NEXA_DATA_DIR" default:"./nexa-data"`
	DatabasePath string `yaml:"database_path" env:"NEXA_DATABASE_PATH"`
	PostgresDSN  string `yaml:"postgres_dsn" env:"NEXA_POSTGRES_DSN"`
	LogQueries   bool   `yaml:"log_queries" env:"NEXA_DB_LOG_QUERIES" default:"false"`
}

// RedisConfig locates the redis instance backing the job queue.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"NEXA_REDIS_ADDR" default:"localhost:6379"`
	Password string `yaml:"password" env:"NEXA_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"NEXA_REDIS_DB" default:"0"`
}

// AuthConfig holds token signing material and cookie policy.
type AuthConfig struct {
	TokenSecret  string `yaml:"token_secret" env:"NEXA_TOKEN_SECRET"`
	CookieDomain string `yaml:"cookie_domain" env:"NEXA_COOKIE_DOMAIN"`
	CookieSecure bool   `yaml:"cookie_secure" env:"NEXA_COOKIE_SECURE" default:"false"`
}

// ScannerConfig tunes the scan pipeline.
type ScannerConfig struct {
	DiscoverWorkers int  `yaml:"discover_workers" env:"NEXA_DISCOVER_WORKERS" default:"4"`
	ExtractWorkers  int  `yaml:"extract_workers" env:"NEXA_EXTRACT_WORKERS" default:"2"`
	ChannelBuffer   int  `yaml:"channel_buffer" env:"NEXA_CHANNEL_BUFFER" default:"128"`
	WatchLibraries  bool `yaml:"watch_libraries" env:"NEXA_WATCH_LIBRARIES" default:"false"`
}

// TranscodeConfig locates the external transcoder binary and its work dir.
type TranscodeConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path" env:"NEXA_FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath string `yaml:"ffprobe_path" env:"NEXA_FFPROBE_PATH" default:"ffprobe"`
	WorkDir     string `yaml:"work_dir" env:"NEXA_TRANSCODE_DIR"`
}

// ImagesConfig configures the image transcode cache.
type ImagesConfig struct {
	CacheDir string `yaml:"cache_dir" env:"NEXA_IMAGE_CACHE_DIR"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level string `yaml:"level" env:"NEXA_LOG_LEVEL" default:"info"`
	JSON  bool   `yaml:"json" env:"NEXA_LOG_JSON" default:"false"`
}

// Load builds the configuration: defaults, then the YAML file at path (if it
// exists), then environment overrides. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(reflect.ValueOf(cfg).Elem())

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := applyEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, err
	}

	if cfg.Database.DatabasePath == "" {
		cfg.Database.DatabasePath = cfg.Database.DataDir + "/nexa.db"
	}
	if cfg.Transcode.WorkDir == "" {
		cfg.Transcode.WorkDir = cfg.Database.DataDir + "/transcode"
	}
	if cfg.Images.CacheDir == "" {
		cfg.Images.CacheDir = cfg.Database.DataDir + "/image-cache"
	}
	return cfg, nil
}

func applyDefaults(v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.Struct && f.Type() != reflect.TypeOf(time.Duration(0)) {
			applyDefaults(f)
			continue
		}
		def := t.Field(i).Tag.Get("default")
		if def == "" {
			continue
		}
		setField(f, def)
	}
}

func applyEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.Struct && f.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := applyEnv(f); err != nil {
				return err
			}
			continue
		}
		key := t.Field(i).Tag.Get("env")
		if key == "" {
			continue
		}
		val, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if !setField(f, val) {
			return fmt.Errorf("invalid value for %s: %q", key, val)
		}
	}
	return nil
}

func setField(f reflect.Value, raw string) bool {
	switch f.Interface().(type) {
	case time.Duration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return false
		}
		f.SetInt(int64(d))
		return true
	}
	switch f.Kind() {
	case reflect.String:
		f.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return false
		}
		f.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return false
		}
		f.SetInt(n)
	case reflect.Slice:
		if f.Type().Elem().Kind() == reflect.String {
			f.Set(reflect.ValueOf(strings.Split(raw, ",")))
		}
	default:
		return false
	}
	return true
}
