package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"bsf-dashboard/internal/config"
	"bsf-dashboard/internal/httpapi"
	"bsf-dashboard/internal/modules/readings"
	"bsf-dashboard/internal/modules/readings/controller"
	"bsf-dashboard/internal/modules/readings/scheduler"
	"bsf-dashboard/internal/modules/readings/source"
	"bsf-dashboard/internal/modules/readings/variants"
	"bsf-dashboard/internal/modules/readings/views"
	"bsf-dashboard/internal/mqtt"
)

const shutdownTimeout = 10 * time.Second

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"sourceDriver", cfg.SourceDriver,
		"dynamodbTable", cfg.DynamoDBTable,
		"awsRegion", cfg.AWSRegion,
		"dynamodbEndpoint", cfg.DynamoDBEndpoint,
		"fetchTimeout", cfg.FetchTimeout,
		"displayTZ", cfg.DisplayLocation.String(),
		"variantsFile", cfg.VariantsFile,
		"sqlitePath", cfg.SQLitePath,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
	)

	if err := views.LoadTemplates(); err != nil {
		return err
	}
	registry, err := variants.Load(cfg.VariantsFile)
	if err != nil {
		return err
	}

	src, err := OpenSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()
	logger.Info("row source ready", "source", src.Rows.Name())

	fetcher := source.NewFetcher(src.Rows, cfg.FetchTimeout, logger)
	pollers := newPollers(registry, fetcher, cfg, logger)

	var pinger httpapi.Pinger
	if src.Local != nil {
		pinger = src.Local
	}
	statuses := make([]httpapi.PollerStatus, 0, len(pollers))
	handles := make([]controller.Poller, 0, len(pollers))
	for _, p := range pollers {
		statuses = append(statuses, p)
		handles = append(handles, p)
	}
	mux := httpapi.NewMux(pinger, cfg.StaticDir, statuses)
	if err := readings.RegisterFeature(mux, registry, handles, logger); err != nil {
		return err
	}

	subscriber := startIngest(ctx, cfg, src, logger)

	srv := httpapi.NewServer(cfg, mux)
	g, gctx := errgroup.WithContext(ctx)

	for _, p := range pollers {
		p.Start(gctx)
	}

	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		for _, p := range pollers {
			p.Stop()
		}
		if subscriber != nil {
			logger.Info("mqtt disconnecting")
			subscriber.Disconnect()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("http shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func newPollers(registry *variants.Registry, fetcher scheduler.Fetcher, cfg config.Config, logger *slog.Logger) []*scheduler.Poller {
	all := registry.All()
	pollers := make([]*scheduler.Poller, 0, len(all))
	for _, v := range all {
		pollers = append(pollers, scheduler.New(v.Name, fetcher, v.PollPeriod,
			scheduler.WithLogger(logger),
			scheduler.WithLocation(cfg.DisplayLocation),
		))
	}
	return pollers
}

// startIngest connects the MQTT subscriber when a broker is configured and
// readings are stored locally. A broker that is down does not stop startup.
func startIngest(ctx context.Context, cfg config.Config, src *Source, logger *slog.Logger) *mqtt.Subscriber {
	if cfg.MQTTBroker == "" {
		return nil
	}
	if src.Local == nil {
		logger.Warn("MQTT_BROKER is set but the source is not sqlite; telemetry ingest disabled",
			"source", cfg.SourceDriver)
		return nil
	}

	subscriber, err := mqtt.NewSubscriber(cfg, logger.With("component", "mqtt"))
	if err != nil {
		logger.Warn("mqtt subscriber not created", "error", err)
		return nil
	}
	// The handler must be set before Connect: the broker may deliver queued
	// messages right after CONNACK.
	readings.RegisterIngest(subscriber, src.Local, logger)

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := subscriber.Connect(connectCtx); err != nil {
		logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
	}
	return subscriber
}
