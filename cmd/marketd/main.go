package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openwatt/gridmarket/params"
	"github.com/openwatt/gridmarket/pkg/api"
	"github.com/openwatt/gridmarket/pkg/events"
	"github.com/openwatt/gridmarket/pkg/market"
	"github.com/openwatt/gridmarket/pkg/storage"
	"github.com/openwatt/gridmarket/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLogger(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if !common.IsHexAddress(cfg.Market.EscrowAddress) {
		sugar.Fatalw("invalid_escrow_address", "addr", cfg.Market.EscrowAddress)
	}
	escrow := common.HexToAddress(cfg.Market.EscrowAddress)

	if err := os.MkdirAll(filepath.Dir(cfg.Market.DataDir), 0o755); err != nil {
		sugar.Fatalw("data_dir_create_failed", "err", err)
	}
	store, err := storage.Open(cfg.Market.DataDir)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Market.DataDir, "err", err)
	}
	defer store.Close()

	ex, err := market.New(market.Config{
		UnitRate:     cfg.Market.UnitRate,
		Escrow:       escrow,
		Store:        store,
		EventLogPath: cfg.Market.EventLogPath,
	}, logger)
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}
	defer ex.Close()

	sugar.Infow("market_ready",
		"orders", ex.OrderCount(),
		"installations", ex.InstallationCount(),
		"unit_rate", cfg.Market.UnitRate,
		"escrow", escrow.Hex(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional Kafka fan-out for downstream consumers.
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer publisher.Close()
		go publisher.Run(ctx, ex.Subscribe(256))
		sugar.Infow("kafka_publisher_started", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	server := api.NewServer(ex, logger)
	go func() {
		if err := server.Start(cfg.Server.ListenAddr, cfg.Server.AllowedOrigins); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	sugar.Infow("shutting_down")
}
