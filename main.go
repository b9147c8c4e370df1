package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"

	"naoris_farm/config"
	"naoris_farm/models"
	"naoris_farm/monitoring"
	"naoris_farm/naoris"
	"naoris_farm/orchestrator"
	"naoris_farm/proxycheck"
	"naoris_farm/store"
	"naoris_farm/useragent"
	"naoris_farm/utils"
)

func main() {
	// Load environment variables; a missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if err := utils.InitLogger(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := runSetup(cfg); err != nil {
			utils.Logger.Fatalw("Setup failed", "error", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accounts, err := loadAccounts(cfg.Files.Accounts)
	if err != nil {
		utils.Logger.Fatalw("Failed to load accounts", "file", cfg.Files.Accounts, "error", err)
	}
	proxies, err := utils.LoadLines(cfg.Files.Proxies)
	if err != nil {
		utils.Logger.Fatalw("Failed to load proxies", "file", cfg.Files.Proxies, "error", err)
	}
	units := models.ExpandAccounts(accounts)
	utils.Logger.Infow("Loaded accounts", "wallets", len(accounts), "devices", len(units), "proxies", len(proxies))
	if !cfg.Farm.UseProxy {
		utils.Logger.Warnw("Running without proxies")
	}

	tokens, err := store.NewFileStringMap(cfg.Files.Tokens)
	if err != nil {
		utils.Logger.Fatalw("Failed to open token store", "error", err)
	}
	uaStore, err := store.NewFileStringMap(cfg.Files.UserAgents)
	if err != nil {
		utils.Logger.Fatalw("Failed to open user-agent store", "error", err)
	}
	states := store.NewFileStateStore(cfg.Files.LocalState)
	agents := useragent.NewAllocator(uaStore)

	// Assign stable user agents up front, the way devices were provisioned
	for _, acct := range accounts {
		if _, err := agents.UserAgent(acct.WalletAddress); err != nil {
			utils.Logger.Fatalw("Failed to allocate user agent", "address", acct.WalletAddress, "error", err)
		}
	}

	base, err := naoris.ResolveEndpoint(ctx, cfg.Endpoints.Candidates, 10*time.Second, utils.Logger)
	if err != nil {
		utils.Logger.Fatalw("No API endpoint reachable", "error", err)
	}
	endpoints := naoris.Endpoints{
		Base:          base,
		WalletDetails: cfg.Endpoints.WalletDetails,
		ExtAPI:        cfg.Endpoints.ExtAPI,
		Ping:          cfg.Endpoints.Ping,
	}

	if cfg.Metrics.Enabled {
		monitoring.Start(cfg.Metrics.Addr, utils.Logger)
	}

	checker := proxycheck.NewChecker(cfg.HTTP.RequestTimeout, utils.Logger)
	orch := orchestrator.New(cfg, units, proxies, tokens, states, agents, checker, endpoints, utils.Logger)
	if err := orch.Validate(); err != nil {
		utils.Logger.Fatalw("Startup precondition failed", "error", err)
	}

	operation := func() error {
		err := orch.Run(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.Canceled):
			return backoff.Permanent(err)
		case errors.Is(err, naoris.ErrAuthUnrecoverable):
			return backoff.Permanent(err)
		default:
			return err
		}
	}
	err = backoff.RetryNotify(operation, backoff.WithContext(utils.NewExponentialBackoff(), ctx),
		func(err error, duration time.Duration) {
			utils.Logger.Warnw("Orchestrator stopped, restarting", "error", err, "in", duration)
		})
	if err != nil && !errors.Is(err, context.Canceled) {
		utils.Logger.Fatalw("Farm terminated", "error", err)
	}
	utils.Logger.Infow("Shutdown complete")
}

func loadAccounts(path string) ([]models.AccountRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []models.AccountRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}
