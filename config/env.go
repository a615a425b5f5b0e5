package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// loadDotenv populates the process environment from envPath. A missing file
// is not an error; variables already set in the environment win.
func loadDotenv(envPath string) error {
	if envPath == "" {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", envPath, err)
	}
	return nil
}

// applyEnv overrides cfg from environment variables using the variable names
// of the original deployment (SYMBOLS, RISK_AGRESIVO, FEE_TAKER, ...).
func applyEnv(cfg *Config) error {
	v := viper.New()
	v.AutomaticEnv()

	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v.IsSet(k) {
				*dst = strings.TrimSpace(v.GetString(k))
				return
			}
		}
	}
	num := func(dst *float64, keys ...string) {
		for _, k := range keys {
			if v.IsSet(k) {
				*dst = v.GetFloat64(k)
				return
			}
		}
	}
	integer := func(dst *int, keys ...string) {
		for _, k := range keys {
			if v.IsSet(k) {
				*dst = int(v.GetFloat64(k))
				return
			}
		}
	}
	flag := func(dst *bool, keys ...string) {
		for _, k := range keys {
			if v.IsSet(k) {
				*dst = v.GetBool(k)
				return
			}
		}
	}

	str(&cfg.Exchange, "EXCHANGE")
	str(&cfg.BaseURL, "EXCHANGE_BASE_URL")
	if v.IsSet("SYMBOLS") {
		cfg.Symbols = splitCSV(v.GetString("SYMBOLS"))
	}
	str(&cfg.LTF, "TIMEFRAME_LTF")
	str(&cfg.HTF, "TIMEFRAME_HTF")
	cfg.LTF = cleanTimeframe(cfg.LTF)
	cfg.HTF = cleanTimeframe(cfg.HTF)
	integer(&cfg.LTFLimit, "LTF_LIMIT")
	integer(&cfg.HTFLimit, "HTF_LIMIT")

	str(&cfg.Strategy, "STRATEGY")
	str(&cfg.ProfileSelection, "PROFILE_SELECTION")
	flag(&cfg.HMAConfirm, "HMA_CONFIRM")
	integer(&cfg.EmaFast, "EMA_FAST")
	integer(&cfg.EmaSlow, "EMA_SLOW")
	integer(&cfg.RsiPeriod, "RSI_PERIOD")
	num(&cfg.RsiEntry, "RSI_ENTRY")
	num(&cfg.MinAtrPct, "MIN_ATR_PCT")
	num(&cfg.ProfitTakeR, "PROFIT_TAKE_R")

	for i := range cfg.Profiles {
		p := &cfg.Profiles[i]
		suffix := strings.ToUpper(p.Name)
		num(&p.Risk, "RISK_"+suffix)
		num(&p.AtrK, "ATR_K_"+suffix)
		num(&p.TpR, "TP_R_"+suffix)
		integer(&p.BatchSize, "BATCH_SIZE_"+suffix)
		num(&p.Capital, "CAPITAL_"+suffix)
	}

	str(&cfg.Sizing, "SIZING")
	num(&cfg.StartBalance, "PAPER_START_BALANCE")
	num(&cfg.FeeTaker, "FEE_TAKER")
	flag(&cfg.FeeOnEntry, "FEE_ON_ENTRY")
	num(&cfg.SpreadBps, "SPREAD_BPS")
	num(&cfg.MinNotional, "MIN_NOTIONAL_USDT")
	num(&cfg.MaxTradeNotional, "DEMO_MAX_TRADE_USDT")
	integer(&cfg.MaxPositions, "DEMO_MAX_POSITIONS")
	num(&cfg.QtyStep, "QTY_STEP")

	integer(&cfg.EntryCooldownMin, "ENTRY_COOLDOWN_MIN")
	integer(&cfg.SymbolLockMin, "SYMBOL_LOCK_MIN")
	num(&cfg.DailyLossLimitPct, "DAILY_LOSS_LIMIT_PCT", "DAILY_LOSS_LIMIT_PCT_MODERADO")
	integer(&cfg.CooldownLosses, "COOLDOWN_LOSSES", "COOLDOWN_LOSSES_MODERADO")
	integer(&cfg.CooldownMin, "COOLDOWN_MIN", "COOLDOWN_MIN_MODERADO")
	integer(&cfg.AutoSummaryMin, "AUTO_SUMMARY_MIN")
	integer(&cfg.SleepSec, "SLEEP_SEC")

	str(&cfg.CSVPath, "CSV_PATH")
	str(&cfg.StatePath, "STATE_PATH")
	str(&cfg.Redis.Addr, "REDIS_ADDR")
	str(&cfg.Redis.Password, "REDIS_PASSWORD")
	integer(&cfg.Redis.DB, "REDIS_DB")
	str(&cfg.Postgres.DSN, "DATABASE_URL")
	str(&cfg.Telegram.Token, "TELEGRAM_TOKEN")
	if v.IsSet("TELEGRAM_ALLOWED_IDS") {
		ids, err := parseIDs(v.GetString("TELEGRAM_ALLOWED_IDS"))
		if err != nil {
			return err
		}
		cfg.Telegram.ChatIDs = ids
	}
	str(&cfg.Log.Level, "LOG_LEVEL")
	str(&cfg.Log.File, "LOG_FILE")
	str(&cfg.HTTP.Addr, "HTTP_ADDR")

	for i, s := range cfg.Symbols {
		cfg.Symbols[i] = normalizeSymbol(s)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDs(s string) ([]int64, error) {
	var out []int64
	for _, part := range splitCSV(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_ALLOWED_IDS: %q is not a chat id: %w", part, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// cleanTimeframe keeps the first token, so "15m # comment" becomes "15m".
func cleanTimeframe(tf string) string {
	fields := strings.Fields(tf)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
