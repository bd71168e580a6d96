package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"

	"orbitlen/config"
	"orbitlen/native/amm"
	"orbitlen/native/lending"
	"orbitlen/native/oracle"
	"orbitlen/observability/logging"
	"orbitlen/rpc"
	"orbitlen/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.toml", "path to node config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ORBITLEN_ENV"))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("orbitlend", env, cfg.LogPath)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "lending"))
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	clk := clock.New()
	feed := oracle.NewStaticFeed(clk)
	adapter := oracle.NewAdapter(feed, cfg.OracleMaxAge.Duration, clk)

	engine := lending.NewEngine(lending.NewKVState(db), adapter, lending.NewMemoryCustody(), cfg.Authority)
	engine.SetClock(clk)
	if err := engine.SetProtocolFee(cfg.ProtocolFeeDecimal()); err != nil {
		log.Fatalf("set protocol fee: %v", err)
	}
	if err := seed(cfg, feed, engine); err != nil {
		log.Fatalf("seed state: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           rpc.NewServer(engine, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddress)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

// seed publishes configured static prices and creates any declared banks
// that do not already exist.
func seed(cfg *config.Config, feed *oracle.StaticFeed, engine *lending.Engine) error {
	for _, price := range cfg.Prices {
		value, err := decimal.NewFromString(price.Value)
		if err != nil {
			return fmt.Errorf("price %s: %w", price.FeedRef, err)
		}
		feed.Publish(price.FeedRef, value)
	}
	ctx := context.Background()
	var pool *amm.Pool
	if receipt := strings.TrimSpace(cfg.VenueReceiptAsset); receipt != "" {
		pool = amm.NewPool(receipt)
	}
	for _, seedBank := range cfg.Banks {
		bankCfg, err := bankConfigFromSeed(seedBank)
		if err != nil {
			return fmt.Errorf("bank %s: %w", seedBank.AssetID, err)
		}
		_, err = engine.AddBank(ctx, cfg.Authority, seedBank.AssetID, bankCfg)
		if err != nil && !errors.Is(err, lending.ErrAlreadyExists) {
			return fmt.Errorf("bank %s: %w", seedBank.AssetID, err)
		}
		if pool != nil && strings.TrimSpace(seedBank.VenueRate) != "" {
			rate, err := decimal.NewFromString(seedBank.VenueRate)
			if err != nil {
				return fmt.Errorf("bank %s: VenueRate: %w", seedBank.AssetID, err)
			}
			if err := pool.SetRate(seedBank.AssetID, rate); err != nil {
				return fmt.Errorf("bank %s: VenueRate: %w", seedBank.AssetID, err)
			}
		}
	}
	if pool != nil {
		engine.SetVenue(pool)
	}
	return nil
}

func bankConfigFromSeed(seed config.BankSeed) (lending.BankConfig, error) {
	parse := func(name, raw string) (decimal.Decimal, error) {
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", name, err)
		}
		return value, nil
	}
	var (
		cfg  lending.BankConfig
		errs []error
	)
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"AssetWeightInit", seed.AssetWeightInit, &cfg.AssetWeightInit},
		{"AssetWeightMaint", seed.AssetWeightMaint, &cfg.AssetWeightMaint},
		{"LiabilityWeightInit", seed.LiabilityWeightInit, &cfg.LiabilityWeightInit},
		{"LiabilityWeightMaint", seed.LiabilityWeightMaint, &cfg.LiabilityWeightMaint},
		{"OptimalUtilization", seed.OptimalUtilization, &cfg.OptimalUtilization},
		{"PlateauRate", seed.PlateauRate, &cfg.PlateauRate},
		{"MaxRate", seed.MaxRate, &cfg.MaxRate},
		{"LiquidationBonus", seed.LiquidationBonus, &cfg.LiquidationBonus},
	}
	for _, f := range fields {
		value, err := parse(f.name, f.raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f.dst = value
	}
	if len(errs) > 0 {
		return lending.BankConfig{}, errors.Join(errs...)
	}
	cfg.PriceFeedRef = seed.PriceFeedRef
	cfg.OracleMaxAge = seed.OracleMaxAge.Duration
	return cfg, nil
}
