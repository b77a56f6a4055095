package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPrefix      = "VA"
	DefaultWaitTimeout = 5 * time.Second
	DefaultMetricsAddr = ":9090"
	DefaultDataDir     = "snapshots"
	DefaultCoupling    = 0.0
)

type Config struct {
	Ring             string        `yaml:"ring"`
	PVPrefix         string        `yaml:"pv_prefix"`
	DisableEmittance bool          `yaml:"disable_emittance"`
	Coupling         float64       `yaml:"coupling"`
	WaitTimeout      time.Duration `yaml:"wait_timeout"`
	MetricsAddr      string        `yaml:"metrics_addr"`
	DataDir          string        `yaml:"data_dir"`
	Wiring           WiringConfig  `yaml:"wiring"`
}

type WiringConfig struct {
	LimitsCSV   string `yaml:"limits_csv"`
	FeedbackCSV string `yaml:"feedback_csv"`
	MirrorsCSV  string `yaml:"mirrors_csv"`
	TuneFBCSV   string `yaml:"tune_feedback_csv"`
}

func DefaultConfig() *Config {
	return &Config{
		Ring:        "demo",
		PVPrefix:    DefaultPrefix,
		Coupling:    DefaultCoupling,
		WaitTimeout: DefaultWaitTimeout,
		MetricsAddr: DefaultMetricsAddr,
		DataDir:     DefaultDataDir,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
