package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config - структура для хранения конфигураций приложения
type Config struct {
	ServerAddress  string        `mapstructure:"SERVER_ADDRESS"`
	PostgresConn   string        `mapstructure:"POSTGRES_CONN"`
	MigrationURL   string        `mapstructure:"MIGRATION_URL"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	RfqDefaultTTL time.Duration `mapstructure:"RFQ_DEFAULT_TTL"`
	MatchFanout   int           `mapstructure:"MATCH_FANOUT"`
	MatchRadiusKm float64       `mapstructure:"MATCH_RADIUS_KM"`
	DirectoryFile string        `mapstructure:"DIRECTORY_FILE"`

	ReaperInterval time.Duration `mapstructure:"REAPER_INTERVAL"`
	ReaperBatch    int           `mapstructure:"REAPER_BATCH"`

	DispatchInterval time.Duration `mapstructure:"DISPATCH_INTERVAL"`
	DispatchBatch    int           `mapstructure:"DISPATCH_BATCH"`
	DispatchLease    time.Duration `mapstructure:"DISPATCH_LEASE"`
	DispatchMaxTries int           `mapstructure:"DISPATCH_MAX_TRIES"`

	NatsURL           string `mapstructure:"NATS_URL"`
	NatsSubjectPrefix string `mapstructure:"NATS_SUBJECT_PREFIX"`
}

var configKeys = []string{
	"SERVER_ADDRESS", "POSTGRES_CONN", "MIGRATION_URL", "REQUEST_TIMEOUT", "LOG_LEVEL",
	"RFQ_DEFAULT_TTL", "MATCH_FANOUT", "MATCH_RADIUS_KM", "DIRECTORY_FILE",
	"REAPER_INTERVAL", "REAPER_BATCH",
	"DISPATCH_INTERVAL", "DISPATCH_BATCH", "DISPATCH_LEASE", "DISPATCH_MAX_TRIES",
	"NATS_URL", "NATS_SUBJECT_PREFIX",
}

// LoadConfig загружает конфигурацию из файла app.env и переменных окружения
func LoadConfig(path string) (cfg Config, err error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AutomaticEnv()
	// AutomaticEnv не видит ключи без значения по умолчанию при Unmarshal
	for _, key := range configKeys {
		if err = v.BindEnv(key); err != nil {
			return
		}
	}

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	if err = v.Unmarshal(&cfg); err != nil {
		return
	}
	err = cfg.validate()
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDRESS", "0.0.0.0:8080")
	v.SetDefault("REQUEST_TIMEOUT", 5*time.Second)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RFQ_DEFAULT_TTL", 30*24*time.Hour)
	v.SetDefault("MATCH_FANOUT", 20)
	v.SetDefault("MATCH_RADIUS_KM", 50.0)
	v.SetDefault("REAPER_INTERVAL", 2*time.Minute)
	v.SetDefault("REAPER_BATCH", 100)
	v.SetDefault("DISPATCH_INTERVAL", 2*time.Second)
	v.SetDefault("DISPATCH_BATCH", 50)
	v.SetDefault("DISPATCH_LEASE", 30*time.Second)
	v.SetDefault("DISPATCH_MAX_TRIES", 3)
	v.SetDefault("NATS_SUBJECT_PREFIX", "rfq.notifications")
}

func (c Config) validate() error {
	if c.PostgresConn == "" {
		return errors.New("POSTGRES_CONN is required")
	}
	if c.ReaperInterval <= 0 || c.DispatchInterval <= 0 {
		return fmt.Errorf("REAPER_INTERVAL and DISPATCH_INTERVAL must be positive")
	}
	if c.MatchFanout <= 0 {
		return fmt.Errorf("MATCH_FANOUT must be positive, got %d", c.MatchFanout)
	}
	if c.DispatchMaxTries <= 0 {
		return fmt.Errorf("DISPATCH_MAX_TRIES must be positive, got %d", c.DispatchMaxTries)
	}
	return nil
}
