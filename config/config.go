package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the dashboard's runtime settings.
type Config struct {
	Platform          string
	Listen            string
	RefreshInterval   time.Duration
	HeartbeatInterval time.Duration
	KlineInterval     string
	KlineLimit        int
	KlineTTL          time.Duration
	MaxConnections    int
	RecentFillsLimit  int
	MaxOrders         int
	RetryAttempts     int
	RetryBaseDelay    time.Duration
}

type configTmp struct {
	Platform          string        `yaml:"platform"`
	Listen            string        `yaml:"listen"`
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	KlineInterval     string        `yaml:"kline_interval,omitempty"`
	KlineLimit        int           `yaml:"kline_limit,omitempty"`
	KlineTTL          time.Duration `yaml:"kline_ttl"`
	MaxConnections    int           `yaml:"max_connections,omitempty"`
	RecentFillsLimit  int           `yaml:"recent_fills_limit,omitempty"`
	MaxOrders         int           `yaml:"max_orders,omitempty"`
	RetryAttempts     int           `yaml:"retry_attempts,omitempty"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay,omitempty"`
}

// Get loads the config from --config yaml when given, otherwise from CLI
// flags.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	platform := flag.String("platform", "binance", "exchange platform: binance or bybit")
	listen := flag.String("listen", ":8080", "http listen address")
	refreshInterval := flag.Duration("refreshinterval", 5*time.Second, "account refresh interval")
	klineTTL := flag.Duration("klinettl", 30*time.Second, "kline cache ttl, 0 disables caching")
	maxConnections := flag.Int("maxconnections", 100, "maximum concurrent dashboard viewers")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	return validate(Config{
		Platform:        *platform,
		Listen:          *listen,
		RefreshInterval: *refreshInterval,
		KlineTTL:        *klineTTL,
		MaxConnections:  *maxConnections,
	})
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, fmt.Errorf("failed to parse yaml config: %w", err)
	}

	return validate(Config{
		Platform:          tmp.Platform,
		Listen:            tmp.Listen,
		RefreshInterval:   tmp.RefreshInterval,
		HeartbeatInterval: tmp.HeartbeatInterval,
		KlineInterval:     tmp.KlineInterval,
		KlineLimit:        tmp.KlineLimit,
		KlineTTL:          tmp.KlineTTL,
		MaxConnections:    tmp.MaxConnections,
		RecentFillsLimit:  tmp.RecentFillsLimit,
		MaxOrders:         tmp.MaxOrders,
		RetryAttempts:     tmp.RetryAttempts,
		RetryBaseDelay:    tmp.RetryBaseDelay,
	})
}

func validate(c Config) (Config, error) {
	if c.Platform == "" {
		c.Platform = "binance"
	}
	if c.Platform != "binance" && c.Platform != "bybit" {
		return Config{}, fmt.Errorf("unsupported platform %q, expected binance or bybit", c.Platform)
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.RefreshInterval < 0 {
		return Config{}, fmt.Errorf("refresh_interval must not be negative, got %s", c.RefreshInterval)
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 5 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = time.Minute
	}
	if c.KlineInterval == "" {
		c.KlineInterval = "15m"
	}
	if c.KlineLimit == 0 {
		c.KlineLimit = 60
	}
	if c.KlineTTL < 0 {
		return Config{}, fmt.Errorf("kline_ttl must not be negative, got %s", c.KlineTTL)
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 100
	}
	if c.MaxConnections < 0 {
		return Config{}, fmt.Errorf("max_connections must be positive, got %d", c.MaxConnections)
	}
	if c.RecentFillsLimit == 0 {
		c.RecentFillsLimit = 50
	}
	if c.MaxOrders == 0 {
		c.MaxOrders = 20
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = time.Second
	}
	return c, nil
}
