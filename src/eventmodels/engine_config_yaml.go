package eventmodels

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type DataSourceYAML struct {
	Source string `yaml:"source"`
	CsvDir string `yaml:"csv_dir"`
}

type EngineConfigYAML struct {
	MaxPositionShare       float64            `yaml:"max_position_share"`
	LookbackDays           int                `yaml:"lookback_days"`
	WorkerPoolSize         int                `yaml:"worker_pool_size"`
	ProducerTimeoutSeconds int                `yaml:"producer_timeout_seconds"`
	ProducerRetries        int                `yaml:"producer_retries"`
	StreamBufferSize       int                `yaml:"stream_buffer_size"`
	KeepaliveSeconds       int                `yaml:"keepalive_seconds"`
	ProducerWeights        map[string]float64 `yaml:"producer_weights"`
	Data                   DataSourceYAML     `yaml:"data"`
}

func (c *EngineConfigYAML) ApplyDefaults() {
	if c.MaxPositionShare <= 0 {
		c.MaxPositionShare = 0.2
	}

	if c.LookbackDays <= 0 {
		c.LookbackDays = 30
	}

	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 8
	}

	if c.ProducerTimeoutSeconds <= 0 {
		c.ProducerTimeoutSeconds = 10
	}

	if c.ProducerRetries <= 0 {
		c.ProducerRetries = 1
	}

	if c.StreamBufferSize <= 0 {
		c.StreamBufferSize = 256
	}

	if c.KeepaliveSeconds <= 0 {
		c.KeepaliveSeconds = 15
	}

	if c.Data.Source == "" {
		c.Data.Source = "csv"
	}
}

func NewEngineConfigFromFile(path string) (*EngineConfigYAML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("NewEngineConfigFromFile: failed to read %s: %w", path, err)
	}

	var config EngineConfigYAML
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("NewEngineConfigFromFile: failed to unmarshal %s: %w", path, err)
	}

	config.ApplyDefaults()

	return &config, nil
}

func NewDefaultEngineConfig() *EngineConfigYAML {
	config := &EngineConfigYAML{}
	config.ApplyDefaults()
	return config
}
