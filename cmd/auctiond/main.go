package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"stableguard/config"
	"stableguard/core/events"
	"stableguard/core/state"
	"stableguard/core/types"
	"stableguard/crypto"
	"stableguard/native/auction"
	"stableguard/observability"
	"stableguard/observability/logging"
	"stableguard/rpc"
	"stableguard/storage"
)

const envEnvironment = "SG_ENV"

// defaultVault derives the module vault address used when the configuration
// does not pin one explicitly.
func defaultVault() [20]byte {
	var out [20]byte
	sum := ethcrypto.Keccak256([]byte("stableguard/auction/vault"))
	copy(out[:], sum[12:])
	return out
}

func resolveAddress(configured string, fallback [20]byte) ([20]byte, error) {
	trimmed := strings.TrimSpace(configured)
	if trimmed == "" {
		return fallback, nil
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out, nil
}

// staticPrices serves reference prices from the configuration file.
type staticPrices map[string]*big.Int

func (p staticPrices) ReferencePrice(asset auction.Asset) (*big.Int, error) {
	price, ok := p[asset.Key()]
	if !ok {
		return nil, fmt.Errorf("no reference price for %s", asset.Key())
	}
	return new(big.Int).Set(price), nil
}

// logEmitter writes every engine event to the structured log.
type logEmitter struct {
	log *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	attrs := []any{slog.String("event", evt.EventType())}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for k, v := range payload.Attributes {
				attrs = append(attrs, slog.String(k, v))
			}
		}
	}
	l.log.Info("auction event", attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envEnvironment))
	logger := logging.Setup("auctiond", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	vault, err := resolveAddress(cfg.VaultAddress, defaultVault())
	if err != nil {
		logger.Error("Invalid vault address", slog.Any("error", err))
		os.Exit(1)
	}
	owner, err := resolveAddress(cfg.OwnerAddress, [20]byte{})
	if err != nil {
		logger.Error("Invalid owner address", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "auction"))
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db, vault)

	prices := make(staticPrices, len(cfg.ReferencePrices))
	for symbol, value := range cfg.ReferencePrices {
		price, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
		if !ok {
			logger.Error("Invalid reference price", slog.String("symbol", symbol))
			os.Exit(1)
		}
		prices[strings.ToUpper(strings.TrimSpace(symbol))] = price
	}

	engine := auction.NewEngine(vault, owner, cfg.Auction.EngineConfig())
	engine.SetState(manager)
	engine.SetTransfers(manager)
	engine.SetCustodySource(manager)
	engine.SetPriceSource(prices)
	engine.SetPauses(manager)
	engine.SetPauseControl(manager)
	engine.SetEmitter(observability.NewMetricsEmitter(logEmitter{log: logger}))

	height, err := manager.CurrentHeight()
	if err != nil {
		logger.Error("Failed to read chain height", slog.Any("error", err))
		os.Exit(1)
	}
	engine.SetBlockHeight(height)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Advance the synthetic block height so the same-block and flashloan
	// heuristics have a clock to key on.
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.BlockIntervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				height++
				engine.SetBlockHeight(height)
				if err := manager.SetCurrentHeight(height); err != nil {
					logger.Error("Failed to persist chain height", slog.Any("error", err))
				}
			}
		}
	}()

	server := rpc.NewServer(engine, rpc.ServerOpts{
		AuthToken: os.Getenv(cfg.RPCTokenEnv),
		RateLimit: cfg.RPCRateLimit,
		RateBurst: cfg.RPCRateBurst,
	})

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Mount("/rpc", server.Router())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting JSON-RPC server", slog.String("addr", cfg.RPCAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			stop()
		}
	}()

	var metricsServer *http.Server
	if strings.TrimSpace(cfg.MetricsAddress) != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Starting metrics server", slog.String("addr", cfg.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", slog.Any("error", err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("RPC shutdown failed", slog.Any("error", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics shutdown failed", slog.Any("error", err))
		}
	}
}
