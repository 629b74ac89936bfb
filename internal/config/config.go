package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	discoverymodels "lanbeacon/internal/discovery_manager/models"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string    `yaml:"env" env-default:"local" env:"ENV"`
	Discovery Discovery `yaml:"discovery"`
	Journal   Journal   `yaml:"journal"`
	Metrics   Metrics   `yaml:"metrics"`
	Publish   Publish   `yaml:"publish"`
}

type Discovery struct {
	MulticastAddress    string        `yaml:"multicast_address" env:"BEACON_MULTICAST_ADDRESS" env-default:"224.0.23.178"`
	MulticastPort       int           `yaml:"multicast_port" env:"BEACON_MULTICAST_PORT" env-default:"7095"`
	TimeToLive          int           `yaml:"ttl" env:"BEACON_TTL" env-default:"1"`
	BroadcastPeriod     time.Duration `yaml:"broadcast_period" env:"BEACON_BROADCAST_PERIOD" env-default:"5s"`
	MaxHeartbeatTimeout time.Duration `yaml:"max_heartbeat_timeout" env:"BEACON_MAX_HEARTBEAT_TIMEOUT" env-default:"30s"`
	TimeoutMultiplier   int           `yaml:"timeout_multiplier" env:"BEACON_TIMEOUT_MULTIPLIER" env-default:"5"`
	MinimumWindow       time.Duration `yaml:"minimum_window" env:"BEACON_MINIMUM_WINDOW" env-default:"1s"`
	SweepInterval       time.Duration `yaml:"sweep_interval" env:"BEACON_SWEEP_INTERVAL" env-default:"250ms"`
	ReceiveTimeout      time.Duration `yaml:"receive_timeout" env:"BEACON_RECEIVE_TIMEOUT" env-default:"1s"`
	Interface           string        `yaml:"interface" env:"BEACON_INTERFACE"`

	// инвертирован: cleanenv подставляет default вместо false из файла
	NoLoopback bool `yaml:"no_loopback" env:"BEACON_NO_LOOPBACK"`
}

type Journal struct {
	Path        string        `yaml:"path" env:"BEACON_JOURNAL"`
	OpenTimeout time.Duration `yaml:"open_timeout" env:"BEACON_JOURNAL_OPEN_TIMEOUT" env-default:"1s"`
}

type Metrics struct {
	Addr string `yaml:"addr" env:"BEACON_METRICS_ADDR"`
}

type Publish struct {
	PayloadFile string        `yaml:"payload_file" env:"BEACON_PAYLOAD_FILE"`
	Debounce    time.Duration `yaml:"debounce" env:"BEACON_PAYLOAD_DEBOUNCE" env-default:"500ms"`
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Load читает файл конфигурации и переменные окружения. Без файла
// используются только окружение и значения по умолчанию.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read config from env: %w", err)
		}
		return &cfg, nil
	}

	// check if file exists
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	return &cfg, nil
}

// ResolvePath выбирает путь к файлу конфигурации.
// Priority: flag > env > default.
// default value is empty string.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("CONFIG_PATH")
}

// DiscoveryConfiguration переводит секцию discovery в параметры протокола
// и проверяет их
func (c *Config) DiscoveryConfiguration() (discoverymodels.Configuration, error) {
	d := c.Discovery
	cfg := discoverymodels.Configuration{
		MulticastAddress:    d.MulticastAddress,
		MulticastPort:       d.MulticastPort,
		TimeToLive:          d.TimeToLive,
		BroadcastPeriod:     d.BroadcastPeriod,
		MaxHeartbeatTimeout: d.MaxHeartbeatTimeout,
		TimeoutMultiplier:   d.TimeoutMultiplier,
		MinimumWindow:       d.MinimumWindow,
		SweepInterval:       d.SweepInterval,
		ReceiveTimeout:      d.ReceiveTimeout,
		Interface:           d.Interface,
		Loopback:            !d.NoLoopback,
	}
	if err := cfg.Validate(); err != nil {
		return discoverymodels.Configuration{}, err
	}
	return cfg, nil
}
