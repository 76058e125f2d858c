package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/likaia/nginxpulse-exporter/internal/errors"
)

type AppConfig struct {
	File     string          `json:"-"`
	HTTP     *HTTPConfig     `json:"http,omitempty"`
	Consul   *ConsulConfig   `json:"consul,omitempty"`
	Redis    *RedisConfig    `json:"redis,omitempty"`
	Database *DatabaseConfig `json:"database,omitempty"`
	Export   *ExportConfig   `json:"export,omitempty"`
	Websites []string        `json:"websites,omitempty"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
	// PublicAddress is what gets advertised to the registry; defaults to Addr.
	PublicAddress string `json:"publicAddress"`
}

type ConsulConfig struct {
	Id      string `json:"id"`
	Address string `json:"address"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type DatabaseConfig struct {
	Url string `json:"url"`
}

type ExportConfig struct {
	Workers      int           `json:"workers"`
	Dir          string        `json:"dir"`
	BatchSize    int           `json:"batchSize"`
	StaleAfter   time.Duration `json:"staleAfter"`
	RetentionTTL time.Duration `json:"retentionTtl"`
}

// Embedded reports whether the service runs without external backends: the
// in-memory store and in-process queue replace postgres and redis, the way
// the dashboard originally hosted exports in-process.
func (c *AppConfig) Embedded() bool {
	return c.Database.Url == ""
}

func LoadConfig() (*AppConfig, error) {
	bindFlagsAndEnv()

	configFile := getConfigFilePath()
	if configFile != "" {
		if err := loadFromFile(configFile); err != nil {
			return nil, err
		}
	}

	cfg := buildAppConfig(configFile)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func bindFlagsAndEnv() {
	pflag.String("config_file", "", "Configuration file in JSON format")

	// http
	pflag.String("http_addr", "localhost:8090", "HTTP listen address")
	pflag.String("public_addr", "", "Public HTTP address advertised to the registry")

	// database
	pflag.String("data_source", "", "Data source (empty runs the embedded in-memory store)")

	// consul
	pflag.String("id", "", "Service id")
	pflag.String("consul", "", "Host to consul (empty disables registration)")

	// redis
	pflag.String("redis_addr", "", "Redis address (empty runs the in-process queue)")
	pflag.String("redis_password", "", "Redis password")
	pflag.Int("redis_db", 0, "Redis DB number")

	// export
	pflag.Int("workers", 4, "Number of concurrent export workers")
	pflag.String("export_dir", "data/exports", "Directory for export artifacts")
	pflag.Int("export_batch_size", 1000, "Rows fetched per export batch")
	// Non-zero by default so a job left running by a crashed worker is
	// eventually failed and becomes retryable.
	pflag.Duration("export_stale_after", 30*time.Minute, "Fail running jobs without progress for this long (0 disables)")
	pflag.Duration("export_retention_ttl", 24*time.Hour, "Delete finished jobs and artifacts after this long (0 disables)")

	// websites
	pflag.StringSlice("websites", nil, "Known website ids (empty accepts any)")

	pflag.Parse()

	_ = viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit mapping
	_ = viper.BindEnv("http_addr", "HTTP_ADDR")
	_ = viper.BindEnv("public_addr", "PUBLIC_ADDR")
	_ = viper.BindEnv("data_source", "DATA_SOURCE")
	_ = viper.BindEnv("id", "CONSUL_ID")
	_ = viper.BindEnv("consul", "CONSUL_HOST")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis_db", "REDIS_DB")
	_ = viper.BindEnv("export_dir", "EXPORT_DIR")
}

func getConfigFilePath() string {
	file := viper.GetString("config_file")
	if file == "" {
		file = os.Getenv("NGINXPULSE_EXPORTER_CONFIG_FILE")
	}
	return file
}

func loadFromFile(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("json")
	if err := viper.ReadInConfig(); err != nil {
		return errors.New(fmt.Sprintf("could not load config file: %s", err.Error()))
	}
	return nil
}

func buildAppConfig(file string) *AppConfig {
	return &AppConfig{
		File: file,
		HTTP: &HTTPConfig{
			Addr:          viper.GetString("http_addr"),
			PublicAddress: viper.GetString("public_addr"),
		},
		Database: &DatabaseConfig{Url: viper.GetString("data_source")},
		Export: &ExportConfig{
			Workers:      viper.GetInt("workers"),
			Dir:          viper.GetString("export_dir"),
			BatchSize:    viper.GetInt("export_batch_size"),
			StaleAfter:   viper.GetDuration("export_stale_after"),
			RetentionTTL: viper.GetDuration("export_retention_ttl"),
		},
		Consul: &ConsulConfig{
			Id:      viper.GetString("id"),
			Address: viper.GetString("consul"),
		},
		Redis: &RedisConfig{
			Addr:     viper.GetString("redis_addr"),
			Password: viper.GetString("redis_password"),
			DB:       viper.GetInt("redis_db"),
		},
		Websites: viper.GetStringSlice("websites"),
	}
}

func validateConfig(cfg *AppConfig) error {
	var result *multierror.Error

	if cfg.HTTP.Addr == "" {
		result = multierror.Append(result, errors.New("HTTP listen address is required"))
	}
	if cfg.HTTP.PublicAddress == "" {
		cfg.HTTP.PublicAddress = cfg.HTTP.Addr
	}
	if cfg.Export.Dir == "" {
		result = multierror.Append(result, errors.New("Export directory is required"))
	}
	if cfg.Export.Workers <= 0 {
		cfg.Export.Workers = 4
	}
	if cfg.Export.BatchSize <= 0 {
		cfg.Export.BatchSize = 1000
	}
	if cfg.Consul.Address != "" && cfg.Consul.Id == "" {
		result = multierror.Append(result, errors.New("Service id is required when consul is configured (set it by '-id' flag)"))
	}
	if !cfg.Embedded() && cfg.Redis.Addr == "" {
		result = multierror.Append(result, errors.New("Redis address is required when a database is configured"))
	}

	return result.ErrorOrNil()
}
