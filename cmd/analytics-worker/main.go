package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/MagnunAVF/shortener-core/internal/analytics"
	"github.com/MagnunAVF/shortener-core/internal/broker"
	"github.com/MagnunAVF/shortener-core/internal/config"
	applog "github.com/MagnunAVF/shortener-core/internal/logger"
	"github.com/MagnunAVF/shortener-core/internal/metrics"
	"github.com/MagnunAVF/shortener-core/internal/store"
)

const durableName = "analytics-worker"

func main() {
	cfg, err := config.Load("analytics-worker")
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}
	applog.Init(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Analytics worker stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("Analytics worker stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := store.Open(cfg.DBDriver, cfg.DBURL, cfg.GormLogLevel)
	if err != nil {
		return err
	}
	if err := store.Migrate(db, cfg.DBDriver, cfg.DBURL); err != nil {
		return err
	}

	var msgs <-chan analytics.Message
	switch cfg.ClickSink {
	case "amqp":
		conn, err := amqp091.Dial(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer conn.Close()

		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("open rabbitmq channel: %w", err)
		}
		defer ch.Close()

		if err := broker.DeclareClickQueue(ch, cfg.ClickQueue); err != nil {
			return err
		}
		// one full batch in flight at a time
		if msgs, err = broker.ConsumeAMQP(ctx, ch, cfg.ClickQueue, cfg.ClickBatchSize); err != nil {
			return err
		}
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(durableName))
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer nc.Drain()

		js, err := nc.JetStream()
		if err != nil {
			return fmt.Errorf("open jetstream: %w", err)
		}
		if err := broker.EnsureStream(js, cfg.NATSStream, cfg.NATSSubject); err != nil {
			return err
		}
		var sub *nats.Subscription
		if msgs, sub, err = broker.SubscribeJetStream(ctx, js, cfg.NATSSubject, durableName, cfg.ClickBatchSize); err != nil {
			return err
		}
		defer sub.Unsubscribe()
	default:
		return fmt.Errorf("analytics worker needs CLICK_SINK amqp or nats, got %q", cfg.ClickSink)
	}

	reg := prometheus.NewRegistry()
	batcher := analytics.NewBatcher(store.NewClicks(db), cfg.ClickBatchSize, cfg.ClickFlushInterval, metrics.New(reg))
	ops := opsApp(reg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ops.Listen(cfg.Port)
	})
	g.Go(func() error {
		slog.Info("Analytics worker started. Waiting for click events...", "click_sink", cfg.ClickSink, "batch_size", cfg.ClickBatchSize)
		batcher.Run(gctx, msgs)
		return ops.Shutdown()
	})
	return g.Wait()
}

// opsApp serves health and metrics for the worker.
func opsApp(reg *prometheus.Registry) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	return app
}
