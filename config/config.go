package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Strategy variants.
const (
	StrategyTrendReversion = "trend_reversion"
	StrategyEMACross       = "ema_cross"
	StrategyEMAATR         = "ema_atr"
)

// Profile selection modes.
const (
	SelectAll     = "all"     // every profile evaluates entries each bar
	SelectDynamic = "dynamic" // one profile per bar chosen from ADX and ATR percentile
)

// Sizing modes.
const (
	SizingRisk  = "risk"  // fixed-fractional risk of equity over R
	SizingBatch = "batch" // fixed capital split into lots
)

// ProfileConfig holds the per-profile knobs.
type ProfileConfig struct {
	Name      string  `yaml:"name"`
	Risk      float64 `yaml:"risk"`       // fraction of equity at risk per trade, e.g. 0.02
	AtrK      float64 `yaml:"atr_k"`      // stop distance in ATRs
	TpR       float64 `yaml:"tp_r"`       // take profit in R multiples
	BatchSize int     `yaml:"batch_size"` // lots per signal when sizing=batch
	Capital   float64 `yaml:"capital"`    // capital per signal when sizing=batch
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

type TelegramConfig struct {
	Token   string  `yaml:"token"`
	ChatIDs []int64 `yaml:"chat_ids"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the status API
}

// Config is the full runtime configuration.
type Config struct {
	// Market data
	Exchange string   `yaml:"exchange"`
	BaseURL  string   `yaml:"base_url"`
	Symbols  []string `yaml:"symbols"`
	LTF      string   `yaml:"ltf"`
	HTF      string   `yaml:"htf"`
	LTFLimit int      `yaml:"ltf_limit"`
	HTFLimit int      `yaml:"htf_limit"`

	// Strategy
	Strategy         string  `yaml:"strategy"`
	ProfileSelection string  `yaml:"profile_selection"`
	HMAConfirm       bool    `yaml:"hma_confirm"`
	EmaFast          int     `yaml:"ema_fast"`
	EmaSlow          int     `yaml:"ema_slow"`
	RsiPeriod        int     `yaml:"rsi_period"`
	RsiEntry         float64 `yaml:"rsi_entry"`
	MinAtrPct        float64 `yaml:"min_atr_pct"`   // ATR% floor of the trend/reversion variant
	ProfitTakeR      float64 `yaml:"profit_take_r"` // 0 disables the early 1R exit

	Profiles []ProfileConfig `yaml:"profiles"`

	// Portfolio
	Sizing           string  `yaml:"sizing"`
	StartBalance     float64 `yaml:"start_balance"`
	FeeTaker         float64 `yaml:"fee_taker"`
	FeeOnEntry       bool    `yaml:"fee_on_entry"`
	SpreadBps        float64 `yaml:"spread_bps"` // fraction, 0.0003 = 3 bps
	MinNotional      float64 `yaml:"min_notional"`
	MaxTradeNotional float64 `yaml:"max_trade_notional"`
	MaxPositions     int     `yaml:"max_positions"`
	QtyStep          float64 `yaml:"qty_step"`

	// Control loop
	EntryCooldownMin  int     `yaml:"entry_cooldown_min"`
	SymbolLockMin     int     `yaml:"symbol_lock_min"`
	DailyLossLimitPct float64 `yaml:"daily_loss_limit_pct"`
	CooldownLosses    int     `yaml:"cooldown_losses"`
	CooldownMin       int     `yaml:"cooldown_min"`
	AutoSummaryMin    int     `yaml:"auto_summary_min"`
	SleepSec          int     `yaml:"sleep_sec"`

	// Persistence and outputs
	CSVPath   string         `yaml:"csv_path"`
	StatePath string         `yaml:"state_path"`
	Redis     RedisConfig    `yaml:"redis"`
	Postgres  PostgresConfig `yaml:"postgres"`
	Telegram  TelegramConfig `yaml:"telegram"`
	Log       LogConfig      `yaml:"log"`
	HTTP      HTTPConfig     `yaml:"http"`
}

// Default mirrors the defaults of the original deployment.
func Default() Config {
	return Config{
		Exchange: "binance",
		BaseURL:  "https://api.binance.com",
		Symbols:  []string{"btc_usdt", "eth_usdt", "bnb_usdt"},
		LTF:      "5m",
		HTF:      "15m",
		LTFLimit: 600,
		HTFLimit: 200,

		Strategy:         StrategyTrendReversion,
		ProfileSelection: SelectAll,
		EmaFast:          35,
		EmaSlow:          50,
		RsiPeriod:        14,
		RsiEntry:         50,
		MinAtrPct:        0.1,
		ProfitTakeR:      1.0,

		Profiles: []ProfileConfig{
			{Name: "agresivo", Risk: 0.03, AtrK: 2.2, TpR: 1.8, BatchSize: 4, Capital: 100},
			{Name: "moderado", Risk: 0.02, AtrK: 2.6, TpR: 2.0, BatchSize: 6, Capital: 100},
			{Name: "conservador", Risk: 0.01, AtrK: 3.0, TpR: 2.2, BatchSize: 8, Capital: 100},
		},

		Sizing:           SizingRisk,
		StartBalance:     1000,
		FeeTaker:         0.001,
		SpreadBps:        0.0003,
		MinNotional:      10,
		MaxTradeNotional: 100,
		MaxPositions:     5,

		EntryCooldownMin:  10,
		SymbolLockMin:     15,
		DailyLossLimitPct: 0.03,
		CooldownLosses:    2,
		CooldownMin:       45,
		AutoSummaryMin:    15,
		SleepSec:          5,

		CSVPath:   "operaciones.csv",
		StatePath: "paper_state.json",
		Redis:     RedisConfig{Key: "papertrader:state"},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads an optional YAML file over the defaults, then an optional
// dotenv file, then applies environment overrides, and validates the result.
func Load(path, envPath string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := loadDotenv(envPath); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Profile returns the named profile.
func (c *Config) Profile(name string) (ProfileConfig, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return ProfileConfig{}, false
}

// ProfileNames lists profiles in configured order.
func (c *Config) ProfileNames() []string {
	out := make([]string, len(c.Profiles))
	for i, p := range c.Profiles {
		out[i] = p.Name
	}
	return out
}

func (c *Config) EntryCooldown() time.Duration { return minutes(c.EntryCooldownMin) }
func (c *Config) SymbolLock() time.Duration    { return minutes(c.SymbolLockMin) }
func (c *Config) PauseDuration() time.Duration { return minutes(c.CooldownMin) }
func (c *Config) SummaryEvery() time.Duration  { return minutes(c.AutoSummaryMin) }
func (c *Config) SleepInterval() time.Duration { return time.Duration(c.SleepSec) * time.Second }

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

// Validate checks that all numeric fields are within sensible bounds.
// It returns the first encountered error, allowing the caller to surface a
// clear configuration problem before any trading starts.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("at least one symbol is required")
	}
	if c.LTF == "" || c.HTF == "" {
		return errors.New("ltf and htf timeframes are required")
	}
	if c.LTFLimit < 100 {
		return fmt.Errorf("ltf_limit (%d) must be >= 100", c.LTFLimit)
	}
	if c.HTFLimit <= 0 {
		return errors.New("htf_limit must be positive")
	}
	switch c.Strategy {
	case StrategyTrendReversion, StrategyEMACross, StrategyEMAATR:
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}
	switch c.ProfileSelection {
	case SelectAll, SelectDynamic:
	default:
		return fmt.Errorf("unknown profile_selection %q", c.ProfileSelection)
	}
	switch c.Sizing {
	case SizingRisk, SizingBatch:
	default:
		return fmt.Errorf("unknown sizing %q", c.Sizing)
	}
	if c.EmaFast <= 0 || c.EmaSlow <= 0 || c.EmaFast >= c.EmaSlow {
		return fmt.Errorf("ema_fast (%d) must be positive and below ema_slow (%d)", c.EmaFast, c.EmaSlow)
	}
	if c.RsiPeriod <= 1 {
		return errors.New("rsi_period must be > 1")
	}
	if c.RsiEntry <= 0 || c.RsiEntry >= 100 {
		return fmt.Errorf("rsi_entry (%f) must be within (0, 100)", c.RsiEntry)
	}
	if c.MinAtrPct < 0 {
		return errors.New("min_atr_pct cannot be negative")
	}
	if c.ProfitTakeR < 0 {
		return errors.New("profit_take_r cannot be negative")
	}
	if len(c.Profiles) == 0 {
		return errors.New("at least one profile is required")
	}
	seen := make(map[string]bool, len(c.Profiles))
	for _, p := range c.Profiles {
		if p.Name == "" {
			return errors.New("profile name cannot be empty")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate profile %q", p.Name)
		}
		seen[p.Name] = true
		if c.Sizing == SizingRisk && (p.Risk <= 0 || p.Risk > 0.5) {
			return fmt.Errorf("profile %s: risk (%f) must be >0 and <=0.5", p.Name, p.Risk)
		}
		if p.AtrK <= 0 {
			return fmt.Errorf("profile %s: atr_k must be positive", p.Name)
		}
		if p.TpR <= 0 {
			return fmt.Errorf("profile %s: tp_r must be positive", p.Name)
		}
		if c.Sizing == SizingBatch && (p.BatchSize <= 0 || p.Capital <= 0) {
			return fmt.Errorf("profile %s: batch_size and capital must be positive", p.Name)
		}
	}
	if c.ProfileSelection == SelectDynamic {
		for _, name := range []string{"agresivo", "moderado", "conservador"} {
			if !seen[name] {
				return fmt.Errorf("dynamic profile selection requires profile %q", name)
			}
		}
	}
	if c.StartBalance <= 0 {
		return fmt.Errorf("start_balance (%f) must be positive", c.StartBalance)
	}
	if c.FeeTaker < 0 || c.FeeTaker > 0.05 {
		return fmt.Errorf("fee_taker (%f) must be between 0 and 0.05", c.FeeTaker)
	}
	if c.SpreadBps < 0 || c.SpreadBps > 0.05 {
		return fmt.Errorf("spread_bps (%f) must be between 0 and 0.05", c.SpreadBps)
	}
	if c.MinNotional < 0 {
		return errors.New("min_notional cannot be negative")
	}
	if c.MaxTradeNotional < 0 || (c.MaxTradeNotional > 0 && c.MaxTradeNotional < c.MinNotional) {
		return fmt.Errorf("max_trade_notional (%f) must be 0 or >= min_notional (%f)", c.MaxTradeNotional, c.MinNotional)
	}
	if c.MaxPositions <= 0 {
		return errors.New("max_positions must be positive")
	}
	if c.QtyStep < 0 {
		return errors.New("qty_step cannot be negative")
	}
	if c.EntryCooldownMin < 0 || c.SymbolLockMin < 0 || c.CooldownMin < 0 || c.AutoSummaryMin < 0 {
		return errors.New("cooldown, lock and summary minutes cannot be negative")
	}
	if c.DailyLossLimitPct < 0 || c.DailyLossLimitPct >= 1 {
		return fmt.Errorf("daily_loss_limit_pct (%f) must be within [0, 1)", c.DailyLossLimitPct)
	}
	if c.CooldownLosses < 0 {
		return errors.New("cooldown_losses cannot be negative")
	}
	if c.SleepSec <= 0 {
		return errors.New("sleep_sec must be positive")
	}
	if c.CSVPath == "" && c.Postgres.DSN == "" {
		return errors.New("a trade log sink (csv_path or postgres.dsn) is required")
	}
	if c.StatePath == "" && c.Redis.Addr == "" {
		return errors.New("a snapshot store (state_path or redis.addr) is required")
	}
	if c.Telegram.Token != "" && len(c.Telegram.ChatIDs) == 0 {
		return errors.New("telegram token set without chat_ids")
	}
	return nil
}

func normalizeSymbol(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
