package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	blockchain "vaultsync/blockchain/client"
	"vaultsync/config"
	"vaultsync/contentstore"
	"vaultsync/internal/messaging/producer"
	export "vaultsync/processing"
	"vaultsync/storage/eventcache"
	"vaultsync/storage/store"
	"vaultsync/vault"
)

const sessionConfigPath = "./config/session.defaults.yml"

func main() {
	var (
		ownerHex  = flag.String("owner", "", "vault owner address")
		viewerHex = flag.String("viewer", "", "viewer address (defaults to owner)")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.Info("Starting vault session daemon...")

	sessionCfg, err := config.LoadSessionConfig(sessionConfigPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load session configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Transaction journal: Postgres when a DSN is configured, in-memory
	// otherwise.
	var journal store.TxJournal
	if sessionCfg.Database.DSN != "" {
		logger.Info("Initializing transaction journal database...")
		pg, err := store.NewPostgresJournal(ctx, sessionCfg.Database.DSN,
			sessionCfg.Database.MinConnections, sessionCfg.Database.MaxConnections, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize transaction journal")
		}
		journal = pg
	} else {
		logger.Info("No database configured, journaling in memory")
		journal = store.NewMemoryJournal()
	}
	defer journal.Close()

	logger.Info("Initializing ledger client from configuration files...")
	client, err := blockchain.NewLedgerClientFromFile(sessionCfg.BlockchainClientConfigPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize ledger client")
	}
	defer client.Close()

	content := contentstore.NewIPFSStore(sessionCfg.ContentStore, logger)

	var cache vault.EventCache
	if sessionCfg.Reconciler.CachePath != "" {
		c, err := eventcache.New(sessionCfg.Reconciler.CachePath, logger)
		if err != nil {
			logger.WithError(err).Warn("Event cache unavailable, continuing without warm start")
		} else {
			cache = c
			defer c.Close()
		}
	}

	var exportSink producer.Producer
	if sessionCfg.Export.Enabled() {
		kp, err := producer.NewKafkaProducer(sessionCfg.Export, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize mutation export producer")
		}
		// The batcher coalesces reconciliation bursts and owns closing the
		// underlying producer.
		batcher := export.NewBatcher(sessionCfg.Export, kp, logger)
		exportSink = batcher
		defer batcher.Close()
	}

	if *ownerHex == "" {
		logger.Fatal("--owner is required")
	}
	owner := common.HexToAddress(*ownerHex)
	viewer := owner
	if *viewerHex != "" {
		viewer = common.HexToAddress(*viewerHex)
	}

	session := vault.NewSession(vault.Deps{
		Client:     client,
		Journal:    journal,
		Content:    content,
		Export:     exportSink,
		Cache:      cache,
		Reconciler: sessionCfg.Reconciler,
		Logger:     logger,
	}, viewer, owner)

	if err := session.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start session")
	}
	logger.WithFields(logrus.Fields{
		"session": session.ID(),
		"owner":   owner.Hex(),
		"viewer":  viewer.Hex(),
	}).Info("Session running. Press Ctrl+C to stop.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Received shutdown signal, initiating graceful shutdown...")
	cancel()
	session.Close()
	logger.Info("Vault session daemon shut down gracefully.")
}
