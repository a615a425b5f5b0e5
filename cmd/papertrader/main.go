// Command papertrader runs the paper-trading loop, or with the report
// subcommand prints performance statistics from a trade log.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/evdnx/papertrader/api"
	"github.com/evdnx/papertrader/config"
	"github.com/evdnx/papertrader/engine"
	"github.com/evdnx/papertrader/feed"
	"github.com/evdnx/papertrader/logger"
	"github.com/evdnx/papertrader/notify"
	"github.com/evdnx/papertrader/portfolio"
	"github.com/evdnx/papertrader/state"
	"github.com/evdnx/papertrader/tradelog"
	"github.com/evdnx/papertrader/types"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "report" {
		if err := report(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "report:", err)
			os.Exit(1)
		}
		return
	}
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "papertrader:", err)
		os.Exit(1)
	}
}

func run(args []string) (err error) {
	fs := flag.NewFlagSet("papertrader", flag.ExitOnError)
	cfgPath := fs.String("config", "", "optional YAML config file")
	envPath := fs.String("env", ".env", "optional dotenv file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath, *envPath)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Fields:     []logger.Field{logger.String("run_id", runID)},
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trades, closeTrades, err := openTradeLog(ctx, cfg, runID)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeTrades()) }()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatIDs)
		if err != nil {
			// Notifications are best effort; trading goes on without them.
			log.Warn("telegram_disabled", logger.Err(err))
		} else {
			log.Info("telegram_ready", logger.String("bot", tg.Username()), logger.Int("chats", len(cfg.Telegram.ChatIDs)))
			async := notify.NewAsync(tg, log, 256)
			defer func() {
				cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if cerr := async.Close(cctx); cerr != nil {
					log.Warn("notify_flush_incomplete", logger.Err(cerr))
				}
			}()
			notifier = async
		}
	}

	ledger := portfolio.NewPaperPortfolio(portfolio.Options{
		StartEquity: cfg.StartBalance,
		FeeRate:     cfg.FeeTaker,
		FeeOnEntry:  cfg.FeeOnEntry,
		MultiLot:    cfg.Sizing == config.SizingBatch,
	})

	eng, err := engine.New(cfg, engine.Deps{
		Feed:     feed.NewRetry(feed.NewBinance(cfg.BaseURL, 10*time.Second)),
		Ledger:   ledger,
		Trades:   trades,
		Store:    store,
		Notifier: notifier,
		Log:      log,
	})
	if err != nil {
		return err
	}
	if err := eng.Restore(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	if cfg.HTTP.Addr != "" {
		srv := api.NewServer(cfg.HTTP.Addr, eng, log)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			return srv.Shutdown(context.Background())
		})
	}
	return g.Wait()
}

func openTradeLog(ctx context.Context, cfg config.Config, runID string) (tradelog.Sink, func() error, error) {
	var sinks []tradelog.Sink
	if cfg.CSVPath != "" {
		csv, err := tradelog.NewCSV(cfg.CSVPath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, csv)
	}
	if cfg.Postgres.DSN != "" {
		pg, err := tradelog.NewPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, runID)
		if err != nil {
			for _, s := range sinks {
				s.Close()
			}
			return nil, nil, err
		}
		sinks = append(sinks, pg)
	}
	sink := tradelog.Multi(sinks...)
	return sink, sink.Close, nil
}

func openStore(ctx context.Context, cfg config.Config) (state.Store, func() error, error) {
	var (
		stores  state.Mirror
		closers []func() error
	)
	if cfg.StatePath != "" {
		stores = append(stores, state.NewFile(cfg.StatePath))
	}
	if cfg.Redis.Addr != "" {
		r := state.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Key)
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := r.Ping(pctx)
		cancel()
		if err != nil {
			return nil, nil, multierr.Append(fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err), r.Close())
		}
		stores = append(stores, r)
		closers = append(closers, r.Close)
	}
	closeAll := func() error {
		var err error
		for _, c := range closers {
			err = multierr.Append(err, c())
		}
		return err
	}
	if len(stores) == 1 {
		return stores[0], closeAll, nil
	}
	return stores, closeAll, nil
}

func report(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	csvPath := fs.String("csv", "operaciones.csv", "trade log CSV")
	dsn := fs.String("dsn", "", "read from Postgres instead of the CSV")
	runID := fs.String("run", "", "limit the Postgres report to one run id (default: every run)")
	start := fs.Float64("start", 1000, "starting balance for equity fallback")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		records []types.TradeRecord
		err     error
	)
	if *dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pg, err := tradelog.NewPostgres(ctx, *dsn, 2, *runID)
		if err != nil {
			return err
		}
		defer pg.Close()
		if records, err = pg.Records(ctx, *runID); err != nil {
			return err
		}
	} else if records, err = tradelog.ReadCSV(*csvPath); err != nil {
		return err
	}

	trades := tradelog.Join(records, *start)
	fmt.Println(tradelog.Summarize(trades, *start))
	fmt.Println()
	fmt.Print(tradelog.FormatGroups("By symbol", tradelog.BySymbol(trades)))
	fmt.Println()
	fmt.Print(tradelog.FormatGroups("By profile", tradelog.ByProfile(trades)))
	fmt.Println()
	fmt.Print(tradelog.FormatGroups("By day", tradelog.ByDay(trades)))
	return nil
}
