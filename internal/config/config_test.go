package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Network != NetworkMainnet {
		t.Errorf("expected NetworkMainnet, got %s", cfg.Network)
	}

	if cfg.Node.Wallet != "bwt" {
		t.Errorf("expected wallet bwt, got %s", cfg.Node.Wallet)
	}

	if cfg.Node.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Node.Timeout)
	}

	if cfg.GapLimit != 20 {
		t.Errorf("expected gap_limit 20, got %d", cfg.GapLimit)
	}

	if cfg.InitialImportSize != 100 {
		t.Errorf("expected initial_import_size 100, got %d", cfg.InitialImportSize)
	}

	if cfg.PollInterval != 5*time.Second {
		t.Errorf("expected poll_interval 5s, got %v", cfg.PollInterval)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Logging.Level)
	}
}

func TestConfigIsTestnet(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.IsTestnet() {
		t.Error("expected IsTestnet() to be false for mainnet")
	}

	cfg.Network = NetworkTestnet
	if !cfg.IsTestnet() {
		t.Error("expected IsTestnet() to be true for testnet")
	}

	cfg.Network = NetworkRegtest
	if !cfg.IsTestnet() {
		t.Error("expected IsTestnet() to be true for regtest")
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "bwt-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg, err := LoadConfig(tmpDir, "")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	configPath := filepath.Join(tmpDir, ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	if cfg.Network != NetworkMainnet {
		t.Errorf("expected NetworkMainnet, got %s", cfg.Network)
	}

	if cfg.DataDir != tmpDir {
		t.Errorf("expected DataDir %s, got %s", tmpDir, cfg.DataDir)
	}
}

func TestLoadConfigReadsExisting(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "bwt-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	customConfig := `network: testnet
node:
  url: http://127.0.0.1:18332
  wallet: mywallet
gap_limit: 42
logging:
  level: debug
`
	configPath := filepath.Join(tmpDir, ConfigFileName)
	if err := os.WriteFile(configPath, []byte(customConfig), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(tmpDir, "")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Network != NetworkTestnet {
		t.Errorf("expected NetworkTestnet, got %s", cfg.Network)
	}

	if cfg.Node.Wallet != "mywallet" {
		t.Errorf("expected wallet mywallet, got %s", cfg.Node.Wallet)
	}

	if cfg.GapLimit != 42 {
		t.Errorf("expected gap_limit 42, got %d", cfg.GapLimit)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.Logging.Level)
	}
}

func TestConfigSave(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "bwt-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.Network = NetworkTestnet
	cfg.Logging.Level = "debug"

	configPath := filepath.Join(tmpDir, "test-config.yaml")
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}

	content := string(data)
	if !contains(content, "# bwtd configuration") {
		t.Error("config file missing header comment")
	}

	if !contains(content, "network: testnet") {
		t.Error("config file missing network")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/.bwt-go", filepath.Join(home, ".bwt-go")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.expected {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestConfigPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		dataDir  string
		expected string
	}{
		{"~/.bwt-go", filepath.Join(home, ".bwt-go", ConfigFileName)},
		{"/tmp/test", filepath.Join("/tmp/test", ConfigFileName)},
	}

	for _, tt := range tests {
		got := ConfigPath(tt.dataDir)
		if got != tt.expected {
			t.Errorf("ConfigPath(%q) = %q, want %q", tt.dataDir, got, tt.expected)
		}
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsHelper(s, substr))
}

func containsHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
