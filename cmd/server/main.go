package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tachyon/api"
	"tachyon/config"
	"tachyon/infra/bookstore"
	"tachyon/infra/feedlog"
	"tachyon/infra/kafka"
	"tachyon/infra/logging"
	"tachyon/infra/outbox"
	"tachyon/jobs/broadcaster"
	"tachyon/service"
)

func main() {
	configPath := flag.String("config", "tachyon.toml", "path to TOML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flog, err := feedlog.Open(feedlog.Config{
		Dir:             cfg.FeedLog.Dir,
		SegmentSize:     cfg.FeedLog.SegmentSize,
		SegmentDuration: cfg.FeedLog.SegmentDuration,
		FlushInterval:   cfg.FeedLog.FlushInterval,
		Serializer:      feedlog.BinarySerializer{},
	})
	if err != nil {
		log.Fatal("open feed log", zap.Error(err))
	}
	defer flog.Close()

	store, err := bookstore.Open(cfg.Snapshot.Dir)
	if err != nil {
		log.Fatal("open book store", zap.Error(err))
	}
	defer store.Close()

	deps := service.Deps{
		FeedLog: flog,
		Store:   store,
	}

	var bcast *broadcaster.Broadcaster
	if len(cfg.Kafka.Brokers) > 0 {
		deps.Trades = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TradeTopic)
		defer deps.Trades.Close()

		deps.Outbox = outbox.New()
		bcast, err = broadcaster.New(deps.Outbox, cfg.Kafka.Brokers, cfg.Kafka.EventTopic, cfg.Kafka.BroadcastInterval, log)
		if err != nil {
			log.Fatal("start broadcaster", zap.Error(err))
		}
		defer bcast.Close()
	}

	svc := service.New(cfg.Engine.Venue, cfg.Engine.RetireRing, deps, log)

	if cfg.FeedLog.Replay {
		if err := svc.Replay(ctx, cfg.FeedLog.Dir); err != nil {
			log.Fatal("replay feed log", zap.Error(err))
		}
	}

	go runEpochs(ctx, svc, cfg.Engine.EpochInterval)
	go runSnapshots(ctx, svc, cfg.Snapshot.Interval, log)
	if bcast != nil {
		go bcast.Run(ctx)
	}

	srv := api.NewServer(cfg.Server.Addr, cfg.Server.AllowedOrigins, svc, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := svc.SnapshotBooks(); err != nil {
		log.Warn("final snapshot", zap.Error(err))
	}
}

func runEpochs(ctx context.Context, svc *service.BookService, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			svc.AdvanceEpoch()
		}
	}
}

func runSnapshots(ctx context.Context, svc *service.BookService, interval time.Duration, log *zap.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := svc.SnapshotBooks(); err != nil {
				log.Warn("snapshot books", zap.Error(err))
			}
		}
	}
}
