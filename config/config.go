package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int `yaml:"port"`
	ReadTimeoutMS     int `yaml:"read_timeout_ms"`
	WriteTimeoutMS    int `yaml:"write_timeout_ms"`
	ShutdownTimeoutMS int `yaml:"shutdown_timeout_ms"`
}

// BrokerageConfig points at the aggregation API.
type BrokerageConfig struct {
	BaseURL          string `yaml:"base_url"`
	StreamURL        string `yaml:"stream_url"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	OrderTimeoutMS   int    `yaml:"order_timeout_ms"`
}

// DetectorConfig controls leader polling.
type DetectorConfig struct {
	PollIntervalSec int `yaml:"poll_interval_sec"`
	MaxWorkers      int `yaml:"max_workers"`
}

// EngineConfig controls copy execution fan-out.
type EngineConfig struct {
	ProcessIntervalSec int `yaml:"process_interval_sec"`
	MaxWorkers         int `yaml:"max_workers"`
	TradeBatchSize     int `yaml:"trade_batch_size"`
}

// MonitorConfig controls stop-loss/take-profit scanning.
type MonitorConfig struct {
	ScanIntervalSec int `yaml:"scan_interval_sec"`
	MaxWorkers      int `yaml:"max_workers"`
}

// PolicyConfig holds platform-wide sizing defaults.
type PolicyConfig struct {
	QuantityDecimals int     `yaml:"quantity_decimals"`
	LossWindowDays   int     `yaml:"loss_window_days"`
	MinOrderNotional float64 `yaml:"min_order_notional"`
}

// Config aggregates all app configuration knobs.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Brokerage BrokerageConfig `yaml:"brokerage"`
	Detector  DetectorConfig  `yaml:"detector"`
	Engine    EngineConfig    `yaml:"engine"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Policy    PolicyConfig    `yaml:"policy"`
}

// Load reads configuration from disk, falling back to defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	configPath := path
	if configPath == "" {
		configPath = filepath.Join("config", "default.yaml")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: unable to read %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: unable to parse %s: %w", configPath, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns baseline configuration values.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:              8080,
			ReadTimeoutMS:     10000,
			WriteTimeoutMS:    10000,
			ShutdownTimeoutMS: 5000,
		},
		Brokerage: BrokerageConfig{
			BaseURL:          "https://api.snaptrade.example.com/api/v1",
			RequestTimeoutMS: 15000,
			OrderTimeoutMS:   30000,
		},
		Detector: DetectorConfig{
			PollIntervalSec: 30,
			MaxWorkers:      8,
		},
		Engine: EngineConfig{
			ProcessIntervalSec: 30,
			MaxWorkers:         8,
			TradeBatchSize:     100,
		},
		Monitor: MonitorConfig{
			ScanIntervalSec: 30,
			MaxWorkers:      8,
		},
		Policy: PolicyConfig{
			QuantityDecimals: 4,
			LossWindowDays:   7,
			MinOrderNotional: 1.0,
		},
	}
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Brokerage.BaseURL == "" {
		c.Brokerage.BaseURL = def.Brokerage.BaseURL
	}
	if c.Brokerage.RequestTimeoutMS <= 0 {
		c.Brokerage.RequestTimeoutMS = def.Brokerage.RequestTimeoutMS
	}
	if c.Brokerage.OrderTimeoutMS <= 0 {
		c.Brokerage.OrderTimeoutMS = def.Brokerage.OrderTimeoutMS
	}
	if c.Detector.PollIntervalSec <= 0 {
		c.Detector.PollIntervalSec = def.Detector.PollIntervalSec
	}
	if c.Detector.MaxWorkers <= 0 {
		c.Detector.MaxWorkers = def.Detector.MaxWorkers
	}
	if c.Engine.ProcessIntervalSec <= 0 {
		c.Engine.ProcessIntervalSec = def.Engine.ProcessIntervalSec
	}
	if c.Engine.MaxWorkers <= 0 {
		c.Engine.MaxWorkers = def.Engine.MaxWorkers
	}
	if c.Engine.TradeBatchSize <= 0 {
		c.Engine.TradeBatchSize = def.Engine.TradeBatchSize
	}
	if c.Monitor.ScanIntervalSec <= 0 {
		c.Monitor.ScanIntervalSec = def.Monitor.ScanIntervalSec
	}
	if c.Monitor.MaxWorkers <= 0 {
		c.Monitor.MaxWorkers = def.Monitor.MaxWorkers
	}
	if c.Policy.QuantityDecimals <= 0 {
		c.Policy.QuantityDecimals = def.Policy.QuantityDecimals
	}
	if c.Policy.LossWindowDays <= 0 {
		c.Policy.LossWindowDays = def.Policy.LossWindowDays
	}
	if c.Policy.MinOrderNotional <= 0 {
		c.Policy.MinOrderNotional = def.Policy.MinOrderNotional
	}
}
