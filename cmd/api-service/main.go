package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MagnunAVF/shortener-core/internal/analytics"
	"github.com/MagnunAVF/shortener-core/internal/broker"
	"github.com/MagnunAVF/shortener-core/internal/cache"
	"github.com/MagnunAVF/shortener-core/internal/codegen"
	"github.com/MagnunAVF/shortener-core/internal/config"
	"github.com/MagnunAVF/shortener-core/internal/httpapi"
	"github.com/MagnunAVF/shortener-core/internal/idgen"
	applog "github.com/MagnunAVF/shortener-core/internal/logger"
	"github.com/MagnunAVF/shortener-core/internal/metrics"
	"github.com/MagnunAVF/shortener-core/internal/shortener"
	"github.com/MagnunAVF/shortener-core/internal/store"
	"github.com/MagnunAVF/shortener-core/internal/sweeper"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load("api-service")
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}
	applog.Init(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("API service stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("API service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := store.Open(cfg.DBDriver, cfg.DBURL, cfg.GormLogLevel)
	if err != nil {
		return err
	}
	if err := store.Migrate(db, cfg.DBDriver, cfg.DBURL); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	records := store.NewRecords(db)
	clicks := store.NewClicks(db)

	urlCache, err := newCache(ctx, cfg)
	if err != nil {
		return err
	}

	ids, err := idgen.New(cfg.NodeID)
	if err != nil {
		return err
	}

	// in-process batching only runs for the buffered sink; the other sinks
	// hand events to the analytics worker.
	batchCtx, stopBatcher := context.WithCancel(context.Background())
	defer stopBatcher()
	batcherDone := make(chan struct{})

	sink, closeSink, err := newSink(cfg)
	if err != nil {
		return err
	}
	defer closeSink()
	if buffered, ok := sink.(*analytics.BufferedSink); ok {
		batcher := analytics.NewBatcher(clicks, cfg.ClickBatchSize, cfg.ClickFlushInterval, m)
		go func() {
			defer close(batcherDone)
			batcher.Run(batchCtx, buffered.Messages())
		}()
	} else {
		close(batcherDone)
	}

	recorder := analytics.NewRecorder(sink, analytics.HeuristicClassifier{}, cfg.BackgroundTimeout, m)
	svc := shortener.NewService(shortener.Config{
		Records: records,
		Cache:   urlCache,
		Codes: codegen.New(records,
			codegen.WithLength(cfg.CodeLength),
			codegen.WithMaxAttempts(cfg.CodeMaxAttempts)),
		IDs:               ids,
		Clicks:            recorder,
		Analytics:         analytics.NewAggregator(clicks, time.Now),
		Metrics:           m,
		BaseURL:           cfg.AppDomain,
		BackgroundTimeout: cfg.BackgroundTimeout,
	})
	sweep := sweeper.New(svc.Store(), cfg.SweepGrace, cfg.SweepInterval, time.Now, m)
	app := httpapi.New(svc, m, reg).App()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting API service", "addr", cfg.Port, "click_sink", cfg.ClickSink, "cache", cfg.CacheBackend)
		return app.Listen(cfg.Port)
	})
	g.Go(func() error {
		sweep.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	err = g.Wait()

	// redirects already answered still owe their counter and click writes
	svc.Wait()
	recorder.Wait()
	stopBatcher()
	<-batcherDone

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newCache(ctx context.Context, cfg *config.Config) (shortener.Cache, error) {
	if cfg.CacheBackend == "memory" {
		return cache.NewMemory(cfg.CacheTTL), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return cache.NewRedis(rdb, cfg.CacheTTL), nil
}

func newSink(cfg *config.Config) (analytics.EventSink, func(), error) {
	switch cfg.ClickSink {
	case "amqp":
		conn, err := amqp091.Dial(cfg.RabbitMQURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
		}
		if err := broker.DeclareClickQueue(ch, cfg.ClickQueue); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return broker.NewAMQPPublisher(ch, cfg.ClickQueue), func() {
			ch.Close()
			conn.Close()
		}, nil
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("api-service"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to nats: %w", err)
		}
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("open jetstream: %w", err)
		}
		if err := broker.EnsureStream(js, cfg.NATSStream, cfg.NATSSubject); err != nil {
			nc.Close()
			return nil, nil, err
		}
		return broker.NewJetStreamPublisher(js, cfg.NATSSubject), func() { nc.Drain() }, nil
	default:
		return analytics.NewBufferedSink(cfg.ClickBufferSize), func() {}, nil
	}
}
