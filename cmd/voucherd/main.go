package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"vouchernet/config"
	"vouchernet/core/events"
	"vouchernet/gateway"
	nativecommon "vouchernet/native/common"
	"vouchernet/native/voucher"
	"vouchernet/observability/logging"
	"vouchernet/storage/voucherstore"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the daemon configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.Setup("voucherd", cfg.Environment, logging.RotationConfig{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	treasury, err := parseTreasury(cfg.TreasuryAddress)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := voucherstore.NewStore(filepath.Join(cfg.DataDir, "vouchers.db"), nil)
	if err != nil {
		return fmt.Errorf("open voucher store: %w", err)
	}
	defer store.Close()

	registry := voucher.NewSupplyRegistry()
	entries, err := config.LoadSupplies(cfg.SupplyFile)
	if err != nil {
		return fmt.Errorf("load supply file: %w", err)
	}
	for _, entry := range entries {
		if err := registry.Register(entry.ID, entry.Terms); err != nil {
			return fmt.Errorf("register supply %s: %w", hex.EncodeToString(entry.ID[:]), err)
		}
	}
	logger.Info("supplies registered", "count", len(entries), "file", cfg.SupplyFile)

	system := nativecommon.NewSystemState()

	engine := voucher.NewEngine()
	engine.SetState(store)
	engine.SetSupplyReader(registry)
	engine.SetTransferor(store)
	engine.SetTreasury(treasury)
	engine.SetSystemView(system)
	engine.SetWindows(cfg.ComplainPeriodSecs, cfg.CancelPeriodSecs)
	engine.SetEmitter(events.NewLogEmitter(logger))

	server := gateway.New(engine, system, logger)
	if secret := strings.TrimSpace(cfg.AdminJWTSecret); secret != "" {
		server.SetAdminSecret([]byte(secret))
	} else {
		logger.Warn("AdminJWTSecret not set; admin endpoints will reject every request")
	}
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("gateway serve: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return <-errCh
}

func parseTreasury(encoded string) ([20]byte, error) {
	var out [20]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(encoded)), "0x"))
	if err != nil || len(raw) != len(out) {
		return out, fmt.Errorf("config: TreasuryAddress must be a 20-byte hex address")
	}
	copy(out[:], raw)
	return out, nil
}
