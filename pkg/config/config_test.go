package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
database:
  host: "db.example.com"
  port: 5433
  user: "testuser"
  password: "testpass"
  database: "testdb"
  ssl_mode: "require"
redis:
  host: "redis.example.com"
  port: 6380
kafka:
  brokers:
    - "kafka1:9092"
    - "kafka2:9092"
trading:
  fee_rate: "0.0025"
  lot_size: 100
  unit_timeout_sec: 5
payments:
  min_deposit: 50
  max_deposit: 70000
market_data:
  source_url: "https://exchange.example.com/prices"
  cache_ttl_sec: 60
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	origDir, _ := os.Getwd()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	defer os.Chdir(origDir)

	cfg, err := Load("config")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %v, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %v, want 9000", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("Database.Host = %v, want db.example.com", cfg.Database.Host)
	}
	if cfg.Database.SSLMode != "require" {
		t.Errorf("Database.SSLMode = %v, want require", cfg.Database.SSLMode)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("len(Kafka.Brokers) = %d, want 2", len(cfg.Kafka.Brokers))
	}
	if cfg.Trading.FeeRate != "0.0025" {
		t.Errorf("Trading.FeeRate = %v, want 0.0025", cfg.Trading.FeeRate)
	}
	if cfg.Trading.LotSize != 100 {
		t.Errorf("Trading.LotSize = %v, want 100", cfg.Trading.LotSize)
	}
	if cfg.Payments.MaxDeposit != 70000 {
		t.Errorf("Payments.MaxDeposit = %v, want 70000", cfg.Payments.MaxDeposit)
	}
	if cfg.MarketData.SourceURL != "https://exchange.example.com/prices" {
		t.Errorf("MarketData.SourceURL = %v", cfg.MarketData.SourceURL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	tmpDir := t.TempDir()

	origDir, _ := os.Getwd()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	defer os.Chdir(origDir)

	cfg, err := Load("does-not-exist")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.MaxConns != 25 || cfg.Database.MinConns != 5 {
		t.Errorf("default pool sizing = %d/%d, want 25/5", cfg.Database.MaxConns, cfg.Database.MinConns)
	}
	if cfg.Trading.FeeRate != "0.005" {
		t.Errorf("default Trading.FeeRate = %s, want 0.005", cfg.Trading.FeeRate)
	}
	if cfg.Trading.LotSize != 1 {
		t.Errorf("default Trading.LotSize = %d, want 1", cfg.Trading.LotSize)
	}
	if cfg.Payments.MinDeposit != 10 {
		t.Errorf("default Payments.MinDeposit = %d, want 10", cfg.Payments.MinDeposit)
	}
	if cfg.MarketData.CacheTTLSec != 300 {
		t.Errorf("default MarketData.CacheTTLSec = %d, want 300", cfg.MarketData.CacheTTLSec)
	}
}
