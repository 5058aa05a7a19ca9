// Package config holds the settings of the evidence CLI.
package config

import "time"

// Config holds runtime settings for the evidence CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the evidence gRPC endpoint.
//   - RequestTimeout: deadline of one API call.
//   - OnlineCheckInterval: how often the client probes server health.
type Config struct {
	ServerEndpointAddr  string
	RequestTimeout      time.Duration
	OnlineCheckInterval time.Duration
}

func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.RequestTimeout = 10 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig applies defaults, then the JSON file, then flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
