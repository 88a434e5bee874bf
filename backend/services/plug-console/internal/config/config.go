package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // chart time zones must resolve on minimal images

	libconfig "smartplug/backend/libs/config"
)

// Config defines plug console configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"PLUG_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN          string `yaml:"dsn" env:"PLUG_POSTGRES_DSN"`
		MaxOpenConns int    `yaml:"maxOpenConns" env:"PLUG_POSTGRES_MAX_OPEN"`
	} `yaml:"database"`
	Redis struct {
		Addr         string        `yaml:"addr" env:"PLUG_REDIS_ADDR"`
		Password     string        `yaml:"password" env:"PLUG_REDIS_PASSWORD"`
		DB           int           `yaml:"db" env:"PLUG_REDIS_DB"`
		SelectionTTL time.Duration `yaml:"selectionTtl" env:"PLUG_SELECTION_TTL"`
	} `yaml:"redis"`
	JWT struct {
		Secret           string `yaml:"secret" env:"PLUG_JWT_SECRET"`
		ExpiresInMinutes int    `yaml:"expiresInMinutes" env:"PLUG_JWT_EXPIRES_MINUTES"`
	} `yaml:"jwt"`
	Device struct {
		DialTimeout  time.Duration `yaml:"dialTimeout" env:"PLUG_DEVICE_DIAL_TIMEOUT"`
		WriteTimeout time.Duration `yaml:"writeTimeout" env:"PLUG_DEVICE_WRITE_TIMEOUT"`
		PingInterval time.Duration `yaml:"pingInterval" env:"PLUG_DEVICE_PING_INTERVAL"`
		UpdateBuffer int           `yaml:"updateBuffer" env:"PLUG_DEVICE_UPDATE_BUFFER"`
	} `yaml:"device"`
	Console struct {
		IdleTimeout time.Duration `yaml:"idleTimeout" env:"PLUG_CONSOLE_IDLE_TIMEOUT"`
	} `yaml:"console"`
	Tariff struct {
		DefaultRate float64 `yaml:"defaultRate" env:"PLUG_TARIFF_DEFAULT_RATE"`
	} `yaml:"tariff"`
	Chart struct {
		Timezone string `yaml:"timezone" env:"PLUG_CHART_TIMEZONE"`
	} `yaml:"chart"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.Database.MaxOpenConns = 10
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.SelectionTTL = 30 * 24 * time.Hour
	cfg.JWT.ExpiresInMinutes = 60
	cfg.Device.DialTimeout = 5 * time.Second
	cfg.Device.WriteTimeout = 10 * time.Second
	cfg.Device.PingInterval = 30 * time.Second
	cfg.Device.UpdateBuffer = 64
	cfg.Console.IdleTimeout = 10 * time.Minute
	cfg.Tariff.DefaultRate = 0.12
	cfg.Chart.Timezone = "UTC"
	return cfg
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate is called by the shared loader once YAML and env are applied.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database DSN is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: jwt secret is required")
	}
	if c.Tariff.DefaultRate < 0 {
		return errors.New("config: tariff default rate must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.JWT.ExpiresInMinutes <= 0 {
		c.JWT.ExpiresInMinutes = 60
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// JWTExpiration converts configured expiry to duration.
func (c *Config) JWTExpiration() time.Duration {
	if c.JWT.ExpiresInMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.JWT.ExpiresInMinutes) * time.Minute
}

// Location resolves the chart time zone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Chart.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: chart timezone: %w", err)
	}
	return loc, nil
}
