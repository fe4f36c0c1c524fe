// Command kalshibot runs the Kalshi BTC 15-minute binary auto-trader.
// It aggregates live BTC prices from six exchanges into a weighted
// consensus, derives trading signals from it and trades the active
// KXBTC15M contract, either against a paper account or for real.
//
// Usage:
//
//	kalshibot --config config.yaml
//
// Required environment variables:
//
//	KALSHI_API_KEY_ID  Kalshi API key id
//	KALSHI_PRIVATE_KEY RSA private key PEM (or KALSHI_PRIVATE_KEY_PATH)
//	ANTHROPIC_API_KEY  advisor key, optional (no advisor without it)
package main

import (
	"context"
	"log"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/transdsign-boop/kalshibot/config"
	"github.com/transdsign-boop/kalshibot/internal/advisor"
	"github.com/transdsign-boop/kalshibot/internal/consensus"
	"github.com/transdsign-boop/kalshibot/internal/domain"
	"github.com/transdsign-boop/kalshibot/internal/feed"
	"github.com/transdsign-boop/kalshibot/internal/kalshi"
	tradesignal "github.com/transdsign-boop/kalshibot/internal/signal"
	"github.com/transdsign-boop/kalshibot/internal/storage/events"
	"github.com/transdsign-boop/kalshibot/internal/storage/settings"
	"github.com/transdsign-boop/kalshibot/internal/storage/trades"
	"github.com/transdsign-boop/kalshibot/internal/trading"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	signer, err := kalshi.NewSignerFromPEM(cfg.KalshiKeyID, cfg.KalshiPrivateKeyPEM)
	if err != nil {
		return err
	}

	eventLog, err := events.NewWALStore(filepath.Join(cfg.DataDir, "events"))
	if err != nil {
		return err
	}
	defer eventLog.Close()

	tradeLog, err := trades.NewWALStore(filepath.Join(cfg.DataDir, "trades"))
	if err != nil {
		return err
	}
	defer tradeLog.Close()

	settingsStore, err := settings.NewStore(filepath.Join(cfg.DataDir, "settings.json"))
	if err != nil {
		return err
	}

	tunables, err := config.NewTunableStore(cfg.Tunables, settingsStore)
	if err != nil {
		return err
	}

	// Consensus book fed by one reconnecting runner per exchange.
	book := consensus.NewBook(feed.Specs(), logger)
	var wg sync.WaitGroup
	for _, stream := range feed.Streams() {
		runner := feed.NewRunner(stream, book, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Run(ctx)
		}()
	}

	venue := kalshi.NewClient(cfg.Host, signer, logger)
	marketFeed := kalshi.NewMarketFeed(cfg.WSHost, signer, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		marketFeed.Run(ctx)
	}()

	var executor trading.Executor
	if cfg.Paper() {
		paper, err := trading.NewPaperExecutor(
			int64(cfg.Tunables.PaperStartingBalance*100), venue, book, settingsStore, tradeLog, logger)
		if err != nil {
			return err
		}
		executor = paper
	} else {
		executor = trading.NewLiveExecutor(venue, logger)
	}

	cycle := trading.NewCycle(trading.CycleDeps{
		Series:   cfg.Series,
		Paper:    cfg.Paper(),
		Venue:    venue,
		Feed:     marketFeed,
		Executor: executor,
		Book:     book,
		Signals:  tradesignal.NewEngine(book, logger),
		Advisor:  advisor.NewClient("", cfg.AnthropicAPIKey, cfg.AnthropicModel, logger),
		Tunables: tunables,
		Status:   &domain.StatusTracker{},
		Events:   eventLog,
		Trades:   tradeLog,
		Logger:   logger,
	})

	logger.Info("kalshibot starting",
		zap.String("mode", cfg.Mode),
		zap.String("series", cfg.Series),
		zap.String("data_dir", cfg.DataDir))

	cycle.Run(ctx)
	wg.Wait()
	return nil
}
