package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the sniper.
type Config struct {
	General GeneralConfig `yaml:"general"`
	RPC     RPCConfig     `yaml:"rpc"`
	Stream  StreamConfig  `yaml:"stream"`
	Geyser  GeyserConfig  `yaml:"geyser"`
	Relay   RelayConfig   `yaml:"relay"`
	Enrich  EnrichConfig  `yaml:"enrich"`
	Server  ServerConfig  `yaml:"server"`
	Files   FilesConfig   `yaml:"files"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	DryRun      bool   `yaml:"dry_run"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

type RPCConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	WSEndpoint   string  `yaml:"ws_endpoint"`
	TimeoutMs    int     `yaml:"timeout_ms"`
	MaxRetries   int     `yaml:"max_retries"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	PrivateKey   string  `yaml:"private_key"` // base58 encoded wallet private key
}

type StreamConfig struct {
	// WatchAMM adds a second subscription for the AMM program.
	WatchAMM  bool `yaml:"watch_amm"`
	QueueSize int  `yaml:"queue_size"`
}

type GeyserConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	XToken   string `yaml:"x_token"`
}

type RelayConfig struct {
	Endpoint  string  `yaml:"endpoint"`
	TipSOL    float64 `yaml:"tip_sol"`
	TimeoutMs int     `yaml:"timeout_ms"`
}

type EnrichConfig struct {
	HistoryEndpoint string `yaml:"history_endpoint"`
	TimeoutMs       int    `yaml:"timeout_ms"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type FilesConfig struct {
	ParamsPath    string `yaml:"params_path"`
	BlacklistPath string `yaml:"blacklist_path"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply defaults
	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "curvex-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.RPC.Endpoint == "" {
		cfg.RPC.Endpoint = "https://api.mainnet-beta.solana.com"
	}
	if cfg.RPC.WSEndpoint == "" {
		cfg.RPC.WSEndpoint = "wss://api.mainnet-beta.solana.com"
	}
	if cfg.RPC.TimeoutMs == 0 {
		cfg.RPC.TimeoutMs = 10_000
	}
	if cfg.RPC.MaxRetries == 0 {
		cfg.RPC.MaxRetries = 3
	}
	if cfg.RPC.RateLimitRPS == 0 {
		cfg.RPC.RateLimitRPS = 10
	}
	if cfg.Stream.QueueSize == 0 {
		cfg.Stream.QueueSize = 1000
	}
	if cfg.Relay.Endpoint == "" {
		cfg.Relay.Endpoint = "https://mainnet.block-engine.jito.wtf/api/v1/transactions"
	}
	if cfg.Relay.TipSOL == 0 {
		cfg.Relay.TipSOL = 0.001
	}
	if cfg.Relay.TimeoutMs == 0 {
		cfg.Relay.TimeoutMs = 5000
	}
	if cfg.Enrich.HistoryEndpoint == "" {
		cfg.Enrich.HistoryEndpoint = "https://frontend-api.pump.fun"
	}
	if cfg.Enrich.TimeoutMs == 0 {
		cfg.Enrich.TimeoutMs = 5000
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Files.ParamsPath == "" {
		cfg.Files.ParamsPath = "config.json"
	}
	if cfg.Files.BlacklistPath == "" {
		cfg.Files.BlacklistPath = "blacklist.json"
	}
}
