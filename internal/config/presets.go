package config

import "time"

var Presets = map[string]*Config{
	"demo": {
		Ring: "demo", PVPrefix: "VA",
		WaitTimeout: DefaultWaitTimeout, MetricsAddr: DefaultMetricsAddr, DataDir: DefaultDataDir,
	},
	"demo-coupled": {
		Ring: "demo", PVPrefix: "VA", Coupling: 0.01,
		WaitTimeout: DefaultWaitTimeout, MetricsAddr: DefaultMetricsAddr, DataDir: DefaultDataDir,
	},
	"demo-fast": {
		Ring: "demo", PVPrefix: "VA", DisableEmittance: true,
		WaitTimeout: 2 * time.Second, MetricsAddr: DefaultMetricsAddr, DataDir: DefaultDataDir,
	},
}

func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	return names
}
