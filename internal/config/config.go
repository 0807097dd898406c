package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"skoll/internal/common"
	"skoll/internal/engine"
)

// Prefix is prepended to every environment variable name.
const Prefix = "SKOLL_"

// Config holds the configuration for the exchange server.
type Config struct {
	Instrument InstrumentConfig `envPrefix:"INSTRUMENT_"`
	Engine     EngineConfig     `envPrefix:"ENGINE_"`
	Server     ServerConfig     `envPrefix:"SERVER_"`
	Kafka      KafkaConfig      `envPrefix:"KAFKA_"`
	Journal    JournalConfig    `envPrefix:"JOURNAL_"`
	Metrics    MetricsConfig    `envPrefix:"METRICS_"`
	Log        LogConfig        `envPrefix:"LOG_"`
}

// InstrumentConfig describes the single instrument the book trades.
type InstrumentConfig struct {
	Symbol   string `env:"SYMBOL" envDefault:"SKL"`
	TickSize string `env:"TICK_SIZE" envDefault:"0.01"`
}

type EngineConfig struct {
	QueueSize   int  `env:"QUEUE_SIZE" envDefault:"4096"`
	EventBuffer int  `env:"EVENT_BUFFER" envDefault:"16384"`
	BlockOnFull bool `env:"BLOCK_ON_FULL" envDefault:"false"`
	Paranoid    bool `env:"PARANOID" envDefault:"false"`
}

type ServerConfig struct {
	Address     string `env:"ADDRESS" envDefault:"0.0.0.0"`
	Port        int    `env:"PORT" envDefault:"9001"`
	Workers     uint   `env:"WORKERS" envDefault:"10"`
	MaxSessions uint   `env:"MAX_SESSIONS" envDefault:"1024"`
}

// KafkaConfig holds the configuration for the event publisher.
type KafkaConfig struct {
	Enabled    bool     `env:"ENABLED" envDefault:"false"`
	Brokers    []string `env:"BROKERS" envSeparator:","`
	TradeTopic string   `env:"TRADE_TOPIC" envDefault:"skoll.trades"`
	OrderTopic string   `env:"ORDER_TOPIC" envDefault:"skoll.orders"`
}

// JournalConfig enables the on-disk event journal when Dir is set.
type JournalConfig struct {
	Dir  string `env:"DIR"`
	Sync bool   `env:"SYNC" envDefault:"true"`
}

type MetricsConfig struct {
	Address string `env:"ADDRESS" envDefault:":9102"`
	Enabled bool   `env:"ENABLED" envDefault:"true"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Pretty bool   `env:"PRETTY" envDefault:"false"`
}

// Load reads the given .env files, or ./.env when none are given, then
// parses the environment. Missing .env files are not an error.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if _, err := common.NewTickSize(c.Instrument.TickSize); err != nil {
		errs = append(errs, fmt.Errorf("instrument tick size: %w", err))
	}
	if c.Engine.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("engine queue size must be positive, got %d", c.Engine.QueueSize))
	}
	if c.Engine.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("engine event buffer must be positive, got %d", c.Engine.EventBuffer))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port out of range: %d", c.Server.Port))
	}
	if c.Server.Workers == 0 {
		errs = append(errs, errors.New("server needs at least one worker"))
	}
	if c.Server.MaxSessions == 0 {
		errs = append(errs, errors.New("server needs room for at least one session"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka enabled without brokers"))
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, errors.New("metrics enabled without an address"))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	return errors.Join(errs...)
}

// TickSize is the parsed instrument tick. Only valid after Validate.
func (c Config) TickSize() common.TickSize {
	return common.MustTickSize(c.Instrument.TickSize)
}

func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		QueueSize:   c.Engine.QueueSize,
		EventBuffer: c.Engine.EventBuffer,
		BlockOnFull: c.Engine.BlockOnFull,
		Paranoid:    c.Engine.Paranoid,
	}
}
