package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"trialrun/internal/app/dispatch"
	"trialrun/internal/domain/execution"
	"trialrun/internal/httpapi"
	kafkainfra "trialrun/internal/infra/kafka"
	"trialrun/internal/registry"
	dockersandbox "trialrun/internal/sandbox/docker"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("engine stopped", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg, err := registry.New(cfg.RegistryImages()...)
	if err != nil {
		return err
	}

	runner, err := dockersandbox.New(log)
	if err != nil {
		return err
	}

	service := dispatch.NewService(reg, runner, cfg.ResourcePolicy(), cfg.Capacity, log)
	defer func() {
		if cerr := service.Close(); cerr != nil {
			log.Warn("close service", "error", cerr)
		}
	}()

	consumer, err := kafkainfra.NewConsumer(kafkainfra.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.RequestsTopic,
		GroupID: cfg.Kafka.GroupID,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := consumer.Close(); cerr != nil {
			log.Warn("close consumer", "error", cerr)
		}
	}()

	publisher, err := kafkainfra.NewPublisher(kafkainfra.PublisherConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.ResultsTopic,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := publisher.Close(); cerr != nil {
			log.Warn("close publisher", "error", cerr)
		}
	}()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.Handler(service, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := service.WarmImages(groupCtx); err != nil {
			// Not fatal: an image missing at boot may be pushed later and is
			// retried on first use.
			log.Warn("image warm-up incomplete", "error", err)
		}
		return nil
	})

	group.Go(func() error {
		log.Info("status api listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		log.Info("consuming execution requests",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.RequestsTopic,
			"capacity", cfg.Capacity,
		)
		err := service.ExecuteFromSource(groupCtx, consumer, 0, func(report execution.RunReport) {
			publishReport(groupCtx, log, publisher, report)
		})
		stop()
		return err
	})

	return group.Wait()
}

func publishReport(ctx context.Context, log *slog.Logger, publisher *kafkainfra.Publisher, report execution.RunReport) {
	if report.Err != nil {
		log.Error("execution failed before producing a result",
			"id", report.ID,
			"challenge", report.Request.ChallengeID,
			"error", report.Err,
		)
	}

	publishCtx := ctx
	if publishCtx.Err() != nil {
		// Still flush results for executions that finished during shutdown.
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	if err := publisher.PublishRunReport(publishCtx, report); err != nil {
		log.Error("publish run report", "id", report.ID, "error", err)
	}
}
