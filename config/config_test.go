package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateSuccess(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateFailsOnBadRisk(t *testing.T) {
	cfg := Default()
	cfg.Profiles[0].Risk = -0.01 // invalid
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for negative risk")
	}
}

func TestValidateFailures(t *testing.T) {
	cases := map[string]func(*Config){
		"no symbols":        func(c *Config) { c.Symbols = nil },
		"ema order":         func(c *Config) { c.EmaFast, c.EmaSlow = 50, 35 },
		"strategy":          func(c *Config) { c.Strategy = "martingale" },
		"selection":         func(c *Config) { c.ProfileSelection = "random" },
		"duplicate profile": func(c *Config) { c.Profiles[1].Name = c.Profiles[0].Name },
		"max below min":     func(c *Config) { c.MaxTradeNotional = 5 },
		"fee":               func(c *Config) { c.FeeTaker = 0.5 },
		"loss limit":        func(c *Config) { c.DailyLossLimitPct = 1 },
		"sleep":             func(c *Config) { c.SleepSec = 0 },
		"batch size":        func(c *Config) { c.Sizing = SizingBatch; c.Profiles[2].BatchSize = 0 },
		"telegram ids":      func(c *Config) { c.Telegram.Token = "x" },
		"dynamic profiles": func(c *Config) {
			c.ProfileSelection = SelectDynamic
			c.Profiles = c.Profiles[:1]
		},
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadAppliesYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "papertrader.yaml")
	doc := `
symbols: [sol_usdt]
strategy: ema_cross
start_balance: 500
profiles:
  - name: moderado
    risk: 0.02
    atr_k: 2.5
    tp_r: 2.0
telegram:
  token: abc
  chat_ids: [1, 2]
`
	if err := os.WriteFile(yamlPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FEE_TAKER", "0.002")
	t.Setenv("RISK_MODERADO", "0.015")
	t.Setenv("TIMEFRAME_HTF", "1h  # regime")

	cfg, err := Load(yamlPath, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Symbols) != 1 || cfg.Symbols[0] != "sol_usdt" {
		t.Fatalf("expected yaml symbols, got %v", cfg.Symbols)
	}
	if cfg.Strategy != StrategyEMACross || cfg.StartBalance != 500 {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if cfg.FeeTaker != 0.002 {
		t.Fatalf("expected env fee 0.002, got %v", cfg.FeeTaker)
	}
	p, ok := cfg.Profile("moderado")
	if !ok || p.Risk != 0.015 || p.AtrK != 2.5 {
		t.Fatalf("unexpected profile %+v", p)
	}
	if cfg.HTF != "1h" {
		t.Fatalf("expected cleaned timeframe 1h, got %q", cfg.HTF)
	}
	if len(cfg.Telegram.ChatIDs) != 2 {
		t.Fatalf("expected 2 chat ids, got %v", cfg.Telegram.ChatIDs)
	}
	// untouched defaults survive
	if cfg.SpreadBps != 0.0003 || cfg.CooldownLosses != 2 {
		t.Fatalf("defaults lost: spread=%v losses=%v", cfg.SpreadBps, cfg.CooldownLosses)
	}
}

func TestLoadReadsDotenv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "SYMBOLS=BTC_USDT, eth_usdt\nDEMO_MAX_POSITIONS=3\nTELEGRAM_TOKEN=tok\nTELEGRAM_ALLOWED_IDS=10,20\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"SYMBOLS", "DEMO_MAX_POSITIONS", "TELEGRAM_TOKEN", "TELEGRAM_ALLOWED_IDS"} {
		k := k
		t.Cleanup(func() { os.Unsetenv(k) })
	}

	cfg, err := Load("", envPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "btc_usdt" || cfg.Symbols[1] != "eth_usdt" {
		t.Fatalf("unexpected symbols %v", cfg.Symbols)
	}
	if cfg.MaxPositions != 3 {
		t.Fatalf("expected 3 max positions, got %d", cfg.MaxPositions)
	}
	if len(cfg.Telegram.ChatIDs) != 2 || cfg.Telegram.ChatIDs[1] != 20 {
		t.Fatalf("unexpected chat ids %v", cfg.Telegram.ChatIDs)
	}
}

func TestLoadMissingDotenvIsIgnored(t *testing.T) {
	if _, err := Load("", filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}

func TestLoadRejectsBadChatID(t *testing.T) {
	t.Setenv("TELEGRAM_ALLOWED_IDS", "12,abc")
	if _, err := Load("", ""); err == nil {
		t.Fatal("expected error for a non-numeric chat id")
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()
	if cfg.EntryCooldown() != 10*time.Minute || cfg.SymbolLock() != 15*time.Minute {
		t.Fatalf("unexpected durations %v %v", cfg.EntryCooldown(), cfg.SymbolLock())
	}
	if cfg.SleepInterval() != 5*time.Second {
		t.Fatalf("unexpected sleep %v", cfg.SleepInterval())
	}
}
