package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lnbits/scrum/config"
	"github.com/lnbits/scrum/storage"
)

func main() {
	cfg, err := config.LoadStorage(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	logger.Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	err = storage.Provision(ctx, cfg.Storage.ConnectionString,
		[]string{cfg.Storage.BoardsTable, cfg.Storage.TasksTable},
		[]string{cfg.Storage.PaymentsQueue},
		logger,
	)
	if err != nil {
		logger.Fatalf("provision: %v", err)
	}
	logger.Info("storage init complete")
}
