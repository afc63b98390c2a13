// Package config loads and saves bwtd's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Network identifies which Bitcoin network the configured node runs.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkRegtest Network = "regtest"
	NetworkSignet  Network = "signet"
)

// RescanEntry pairs a wallet input with its rescan policy: either an
// explicit unix-second timestamp to rescan from, or "now" to treat the
// wallet as discovered at import time with no rescan.
type RescanEntry struct {
	// Since is a unix timestamp in seconds. Ignored when Now is true.
	Since int64 `yaml:"since,omitempty"`
	// Now means "do not rescan; treat as discovered at this moment".
	Now bool `yaml:"now,omitempty"`
}

// DescriptorEntry is one configured output descriptor wallet input.
type DescriptorEntry struct {
	Descriptor string      `yaml:"descriptor"`
	Rescan     RescanEntry `yaml:"rescan"`
}

// XpubEntry is one configured xpub wallet input, expanding into external
// (/0/*) and internal (/1/*) chain wallets.
type XpubEntry struct {
	Xpub   string      `yaml:"xpub"`
	Rescan RescanEntry `yaml:"rescan"`
}

// BareXpubEntry is one configured bare xpub wallet input, expanding into
// a single (/*) wallet with no change-chain split.
type BareXpubEntry struct {
	Xpub   string      `yaml:"xpub"`
	Rescan RescanEntry `yaml:"rescan"`
}

// NodeConfig holds the bitcoind JSON-RPC connection details.
type NodeConfig struct {
	URL        string        `yaml:"url"`
	CookieFile string        `yaml:"cookie_file,omitempty"`
	User       string        `yaml:"user,omitempty"`
	Pass       string        `yaml:"pass,omitempty"`
	Wallet     string        `yaml:"wallet"`
	Timeout    time.Duration `yaml:"timeout"`
}

// NotifyConfig holds the ambient status-broadcast hub settings.
type NotifyConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config holds all configuration for bwtd.
type Config struct {
	Network Network `yaml:"network"`

	Node    NodeConfig    `yaml:"node"`
	Notify  NotifyConfig  `yaml:"notify"`
	Logging LoggingConfig `yaml:"logging"`

	// GapLimit is the default lookahead window used once a wallet's
	// initial import has completed.
	GapLimit uint32 `yaml:"gap_limit"`
	// InitialImportSize is the larger lookahead window used before any
	// funding has been observed, to seed a rescan meaningfully.
	InitialImportSize uint32 `yaml:"initial_import_size"`
	// PollInterval is how often the sync coordinator calls Indexer.Sync
	// absent an external trigger.
	PollInterval time.Duration `yaml:"poll_interval"`

	Descriptors []DescriptorEntry `yaml:"descriptors,omitempty"`
	Xpubs       []XpubEntry       `yaml:"xpubs,omitempty"`
	BareXpubs   []BareXpubEntry   `yaml:"bare_xpubs,omitempty"`

	DataDir string `yaml:"data_dir"`
}

// IsTestnet reports whether the configured network is anything other
// than mainnet.
func (c *Config) IsTestnet() bool {
	return c.Network != NetworkMainnet
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkMainnet,
		Node: NodeConfig{
			URL:     "http://127.0.0.1:8332",
			Wallet:  "bwt",
			Timeout: 30 * time.Second,
		},
		Notify: NotifyConfig{
			ListenAddr: "127.0.0.1:9033",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		GapLimit:          20,
		InitialImportSize: 100,
		PollInterval:      5 * time.Second,
		DataDir:           "~/.bwt-go",
	}
}

// ConfigFileName is the default config file name within DataDir.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from path. If path is empty, it resolves
// to ConfigPath(dataDir); if no file exists there, a default config is
// written and returned, matching the node package's first-run behavior.
func LoadConfig(dataDir, path string) (*Config, error) {
	expandedDir := ExpandPath(dataDir)
	if path == "" {
		path = filepath.Join(expandedDir, ConfigFileName)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.DataDir = dataDir

		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("config: creating default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to path as YAML with a header comment.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("config: creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshaling config: %w", err)
	}

	header := []byte("# bwtd configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: writing config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(ExpandPath(dataDir), ConfigFileName)
}

// ExpandPath expands a leading "~" to the user's home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
