package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/netutil"

	"otcswap/config"
	"otcswap/core/events"
	"otcswap/core/state"
	"otcswap/crypto"
	"otcswap/gateway/middleware"
	nativecommon "otcswap/native/common"
	"otcswap/native/otc"
	"otcswap/observability"
	"otcswap/observability/logging"
	telemetry "otcswap/observability/otel"
	"otcswap/services/otcd/indexer"
	"otcswap/services/otcd/recon"
	"otcswap/services/otcd/server"
	"otcswap/services/otcd/sweeper"
	"otcswap/storage"
)

const serviceName = "otcd"

func main() {
	cfgPath := flag.String("config", "./otcd.toml", "path to the otcd configuration file")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "otcd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.Setup(serviceName, cfg.Environment, logging.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.FromConfig(serviceName, cfg.Environment, cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	st, err := state.NewManager(db)
	if err != nil {
		return err
	}
	engine := otc.NewEngine(st)

	pauses := nativecommon.NewPauses(cfg.Pauses...)
	engine.SetPauses(pauses)
	engine.SetMakerQuota(nativecommon.Quota{
		MaxCountPerEpoch:  cfg.MakerQuota.MaxOffersPerEpoch,
		MaxVolumePerEpoch: cfg.MakerQuota.MaxVolumePerEpoch,
		EpochSeconds:      cfg.MakerQuota.EpochSeconds,
	})
	if cfg.VaultDeposit.Amount > 0 {
		asset, err := crypto.ParseAddress(cfg.VaultDeposit.Asset)
		if err != nil {
			return fmt.Errorf("vault_deposit: %w", err)
		}
		engine.SetVaultDeposit(asset, cfg.VaultDeposit.Amount)
	}

	adminKey, created, err := crypto.LoadOrCreateKeystore(cfg.AdminKeystorePath, cfg.KeystorePassphrase)
	if err != nil {
		return fmt.Errorf("admin keystore: %w", err)
	}
	admin := adminKey.PubKey().Address().Bytes()
	if created {
		logger.Info("generated admin keystore", "path", cfg.AdminKeystorePath)
	}
	logger.Info("admin identity", "admin", crypto.FormatAccount(admin))

	fanout := &events.Fanout{}
	fanout.Add(observability.Events())
	var fills server.FillLister
	var ix *indexer.Indexer
	if cfg.Indexer.DSN != "" {
		idb, err := indexer.Open(cfg.Indexer.DSN)
		if err != nil {
			return err
		}
		ix = indexer.New(idb, logger)
		ix.SetDropRecorder(observability.Events())
		fanout.Add(ix)
		fills = ix
		go ix.Run(ctx)
	}
	engine.SetEmitter(fanout)

	if err := bootstrap(engine, cfg, admin, logger); err != nil {
		return err
	}

	if cfg.Sweeper.Enabled {
		sw := sweeper.New(engine, sweeper.Config{
			Admin:     admin,
			Interval:  time.Duration(cfg.Sweeper.IntervalSeconds) * time.Second,
			BatchSize: cfg.Sweeper.BatchSize,
			Logger:    logger,
		})
		go sw.Run(ctx)
	}

	if cfg.Recon.Enabled {
		if ix == nil {
			return errors.New("recon requires the indexer")
		}
		reconciler, err := recon.NewReconciler(recon.Config{
			Fills:     ix,
			Custody:   engine,
			OutputDir: cfg.Recon.OutputDir,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		scheduler := recon.NewScheduler(recon.SchedulerConfig{
			Reconciler: reconciler,
			RunHour:    cfg.Recon.RunHour,
			RunMinute:  cfg.Recon.RunMinute,
			Logger:     logger,
		})
		go scheduler.Start(ctx)
	}

	var idem *server.IdempotencyStore
	if cfg.Idempotency.Path != "" {
		idem, err = server.OpenIdempotencyStore(cfg.Idempotency.Path, time.Duration(cfg.Idempotency.TTLSeconds)*time.Second)
		if err != nil {
			return fmt.Errorf("open idempotency store: %w", err)
		}
		defer idem.Close()
	}

	srv, err := server.New(server.Config{
		Engine: engine,
		Fills:  fills,
		Auth: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
		}, logger),
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}, observability.ModuleMetrics(), logger),
		Observability: middleware.NewObservability(serviceName, observability.ModuleMetrics(), logger),
		Idempotency:   idem,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	if !cfg.Auth.Enabled {
		logger.Warn("authentication disabled; callers are taken from the " + middleware.HeaderCaller + " header")
	} else {
		logger.Info("authentication enabled",
			"issuer", cfg.Auth.Issuer,
			logging.MaskField("hmac_secret", cfg.Auth.HMACSecret))
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(srv.Handler(), serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := listen(cfg.ListenAddress, cfg.MaxConnections)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting otcd", "addr", ln.Addr().String(), "max_connections", cfg.MaxConnections)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// listen opens the API socket, capping concurrent connections when
// maxConns is positive.
func listen(addr string, maxConns int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}

// bootstrap applies genesis funding and the admin singletons on first start.
func bootstrap(engine *otc.Engine, cfg *config.Config, admin [20]byte, logger *slog.Logger) error {
	allocs := make([]otc.GenesisAllocation, 0, len(cfg.Genesis))
	for i, g := range cfg.Genesis {
		account, err := crypto.ParseAddress(g.Account)
		if err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
		asset, err := crypto.ParseAddress(g.Asset)
		if err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
		allocs = append(allocs, otc.GenesisAllocation{Account: account, Asset: asset, Amount: g.Amount})
	}
	applied, err := engine.ApplyGenesis(allocs)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis applied", "allocations", len(allocs))
	}

	_, err = engine.Stats()
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, otc.ErrAdminNotInitialized):
		return err
	}
	wallet := admin
	if cfg.Fee.Wallet != "" {
		parsed, err := crypto.ParseAddress(cfg.Fee.Wallet)
		if err != nil {
			return fmt.Errorf("fee wallet: %w", err)
		}
		wallet = parsed
	}
	mints, err := cfg.MintAddresses()
	if err != nil {
		return err
	}
	if err := engine.InitializeAdmin(admin, cfg.Fee.Percentage, wallet, cfg.RequireWhitelist, mints); err != nil {
		return fmt.Errorf("initialize admin: %w", err)
	}
	logger.Info("admin initialized",
		"admin", crypto.FormatAccount(admin),
		"feePercentage", cfg.Fee.Percentage,
		"requireWhitelist", cfg.RequireWhitelist,
	)
	return nil
}
