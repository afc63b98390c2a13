// Package main provides bwtd, a watch-only wallet/address indexer that
// sits between bitcoind and downstream consumers.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bwt-sh/bwt-go/internal/bwt"
	"github.com/bwt-sh/bwt-go/internal/config"
	"github.com/bwt-sh/bwt-go/internal/nodeapi"
	"github.com/bwt-sh/bwt-go/internal/notify"
	"github.com/bwt-sh/bwt-go/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.bwt-go", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		testnet     = flag.Bool("testnet", false, "Run on testnet (separate network and data)")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("bwtd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	effectiveDataDir := *dataDir
	if *testnet {
		effectiveDataDir = filepath.Join(*dataDir, "testnet")
	}

	var configPath string
	if *configFile != "" {
		configPath = *configFile
	}
	cfg, err := config.LoadConfig(effectiveDataDir, configPath)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}
	if *testnet && cfg.Network == config.NetworkMainnet {
		cfg.Network = config.NetworkTestnet
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	log = logging.New(&logging.Config{Level: level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	log.Info("config loaded", "path", config.ConfigPath(effectiveDataDir), "network", cfg.Network)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := nodeapi.NewClient(cfg.Node.URL, cfg.Node.Wallet, cfg.Node.User, cfg.Node.Pass, cfg.Node.CookieFile, cfg.Node.Timeout)

	if err := client.LoadWallet(ctx); err != nil {
		log.Fatal("failed to load bitcoind watch-only wallet", "wallet", cfg.Node.Wallet, "error", err)
	}
	log.Info("bitcoind wallet loaded", "wallet", cfg.Node.Wallet)

	wallets, err := bwt.WalletsFromConfig(cfg)
	if err != nil {
		log.Fatal("failed to build wallets from config", "error", err)
	}
	log.Info("wallets configured", "count", len(wallets))

	watcher, err := bwt.NewWalletWatcher(wallets)
	if err != nil {
		log.Fatal("failed to build wallet watcher", "error", err)
	}

	waiter := bwt.NewNodeWaiter(client)
	if err := waiter.Wait(ctx); err != nil {
		log.Fatal("failed waiting for node readiness", "error", err)
	}

	indexer := bwt.NewIndexer(client, watcher)
	log.Info("running initial sync")
	if err := indexer.InitialSync(ctx); err != nil {
		log.Fatal("initial sync failed", "error", err)
	}
	log.Info("initial sync complete")

	hub := notify.NewHub()
	go hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	notifyServer := &http.Server{Addr: cfg.Notify.ListenAddr, Handler: mux}
	go func() {
		if err := notifyServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("notify server stopped unexpectedly", "error", err)
		}
	}()
	log.Info("notify hub listening", "addr", cfg.Notify.ListenAddr)

	coordinator := bwt.NewSyncCoordinator(indexer, cfg.PollInterval)
	coordinator.Subscribe(hub)

	printBanner(log, cfg, wallets)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	shutdown := make(chan struct{})
	go func() {
		<-sigCh
		log.Info("shutdown requested")
		close(shutdown)
	}()

	coordinator.Run(ctx, shutdown)

	cancel()
	if err := notifyServer.Close(); err != nil {
		log.Error("error stopping notify server", "error", err)
	}
	log.Info("goodbye")
}

func printBanner(log *logging.Logger, cfg *config.Config, wallets []*bwt.Wallet) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  bwtd (%s)", cfg.Network)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Node: %s", cfg.Node.URL)
	log.Infof("  Wallets: %d", len(wallets))
	for _, w := range wallets {
		log.Infof("    %s", w.CanonicalDescriptor())
	}
	log.Info("")
	log.Infof("  Notify: ws://%s/ws", cfg.Notify.ListenAddr)
	log.Infof("  Data dir: %s", config.ExpandPath(cfg.DataDir))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
