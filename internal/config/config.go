package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/couchcryptid/sapflow-etl/internal/domain"
	"github.com/couchcryptid/sapflow-etl/internal/flux"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string      `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaSourceTopic string        `envconfig:"KAFKA_SOURCE_TOPIC" default:"raw-sap-readings"`
	KafkaSinkTopic   string        `envconfig:"KAFKA_SINK_TOPIC" default:"sapflow-aggregates"`
	KafkaGroupID     string        `envconfig:"KAFKA_GROUP_ID" default:"sapflow-etl"`
	HTTPAddr         string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	HTTPIdleTimeout  time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat        string        `envconfig:"LOG_FORMAT" default:"json"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	BatchSize     int           `envconfig:"BATCH_SIZE" default:"50"`
	FlushInterval time.Duration `envconfig:"FLUSH_INTERVAL" default:"5s"`

	// Normalization and filtering.
	WindowStart  int  `envconfig:"WINDOW_START" default:"360"`
	WindowEnd    int  `envconfig:"WINDOW_END" default:"1080"`
	DecimalComma bool `envconfig:"DECIMAL_COMMA" default:"true"`

	// Flux conversion. SAPWOOD_AREAS is a comma-separated list of ten
	// per-sensor sapwood cross-sections in m²; required when FLUX_ENABLED.
	FluxEnabled  bool      `envconfig:"FLUX_ENABLED" default:"false"`
	SapwoodAreas []float64 `envconfig:"SAPWOOD_AREAS"`
}

// Load reads configuration from environment variables, applying defaults
// where unset, and validates cross-field constraints.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.KafkaSourceTopic == "" {
		return errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if c.KafkaSinkTopic == "" {
		return errors.New("KAFKA_SINK_TOPIC is required")
	}
	if c.BatchSize <= 0 {
		return errors.New("BATCH_SIZE must be positive")
	}
	if c.FlushInterval <= 0 {
		return errors.New("FLUSH_INTERVAL must be positive")
	}
	if !c.Window().Valid() {
		return fmt.Errorf("invalid window [%d, %d]", c.WindowStart, c.WindowEnd)
	}
	if c.FluxEnabled && len(c.SapwoodAreas) < domain.SensorCount {
		return fmt.Errorf("FLUX_ENABLED needs %d SAPWOOD_AREAS entries, got %d",
			domain.SensorCount, len(c.SapwoodAreas))
	}
	return nil
}

// Window returns the configured active time window.
func (c *Config) Window() domain.Window {
	return domain.Window{Start: c.WindowStart, End: c.WindowEnd}
}

// Areas returns the configured sapwood-area table.
func (c *Config) Areas() flux.SapwoodAreaTable {
	return flux.SapwoodAreaTable(c.SapwoodAreas)
}
