package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id" env:"BAZAAR_CHAIN_ID"`
	Alloc   map[string]uint64 `json:"alloc"` // base58 address → lamports
}

// TLSConfig holds PEM paths for the RPC endpoint. Empty means plain HTTP.
type TLSConfig struct {
	CertFile string `json:"cert_file" env:"BAZAAR_TLS_CERT"`
	KeyFile  string `json:"key_file" env:"BAZAAR_TLS_KEY"`
	// ClientCA, when set, requires clients to present a certificate it signed.
	ClientCA string `json:"client_ca" env:"BAZAAR_TLS_CLIENT_CA"`
}

// Config holds all node configuration.
type Config struct {
	NodeID        string        `json:"node_id" env:"BAZAAR_NODE_ID"`
	DataDir       string        `json:"data_dir" env:"BAZAAR_DATA_DIR"`
	RPCPort       int           `json:"rpc_port" env:"BAZAAR_RPC_PORT"`
	RPCToken      string        `json:"rpc_token" env:"BAZAAR_RPC_TOKEN"`
	LogLevel      string        `json:"log_level" env:"BAZAAR_LOG_LEVEL"`
	BlockInterval time.Duration `json:"block_interval" env:"BAZAAR_BLOCK_INTERVAL"`
	MaxBlockTxs   int           `json:"max_block_txs" env:"BAZAAR_MAX_BLOCK_TXS"` // 0 → 500
	// Sequencer is the base58 key allowed to sign blocks. Empty accepts
	// whichever key the node starts with.
	Sequencer string        `json:"sequencer"`
	TLS       TLSConfig     `json:"tls"`
	Genesis   GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:        "bazaar0",
		DataDir:       "./data",
		RPCPort:       8899,
		LogLevel:      "info",
		BlockInterval: 400 * time.Millisecond,
		MaxBlockTxs:   500,
		Genesis: GenesisConfig{
			ChainID: "bazaar-dev",
			Alloc:   map[string]uint64{},
		},
	}
}

// Load reads a JSON config file from path over the defaults, then applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides cfg with any BAZAAR_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if c.Genesis.ChainID == "" {
		return errors.New("config: chain id is empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("config: rpc port %d out of range", c.RPCPort)
	}
	if c.BlockInterval <= 0 {
		return fmt.Errorf("config: block interval %s must be positive", c.BlockInterval)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errors.New("config: tls cert and key must be set together")
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
