package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tom-Camp/fe/internal/cache"
	"github.com/Tom-Camp/fe/internal/config"
	"github.com/Tom-Camp/fe/internal/fetch"
	"github.com/Tom-Camp/fe/internal/httpapi"
	"github.com/Tom-Camp/fe/internal/modules/devices"
	"github.com/Tom-Camp/fe/internal/modules/devices/service"
	devicesviews "github.com/Tom-Camp/fe/internal/modules/devices/views"
	"github.com/Tom-Camp/fe/internal/mqtt"
	"github.com/Tom-Camp/fe/internal/telemetry"
)

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"displayZone", cfg.DisplayZone.String(),
		"fetchTimeout", cfg.FetchTimeout,
		"fetchMaxRetries", cfg.FetchMaxRetries,
		"cacheBackend", cfg.CacheBackend,
		"germinatorCacheTTL", cfg.GerminatorCacheTTL,
		"coopCacheTTL", cfg.CoopCacheTTL,
		"cacheSweepInterval", cfg.CacheSweepInterval,
		"mqttBroker", cfg.MQTTBroker,
		"mqttTopic", cfg.MQTTTopic,
	)

	if err := devicesviews.LoadTemplates(); err != nil {
		return err
	}

	backend, err := cache.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("cache close", "error", err)
		}
	}()
	logger.Info("cache ready", "backend", backend.Name())

	if p, ok := backend.(cache.Purger); ok {
		sweepCtx, stopSweep := context.WithCancel(ctx)
		swept := make(chan struct{})
		go func() {
			defer close(swept)
			cache.Sweep(sweepCtx, p, cfg.CacheSweepInterval, logger)
		}()
		// Runs before the backend is closed.
		defer func() {
			stopSweep()
			<-swept
		}()
	}

	svc := newService(cfg, backend, logger)

	mux := httpapi.NewMux(logger, httpapi.HealthCheck{Name: "cache", Check: backend.Ping})
	devices.RegisterFeature(mux, svc, logger)

	var subscriber *mqtt.Subscriber
	if cfg.MQTTEnabled() {
		subscriber = mqtt.NewSubscriber(cfg, logger)
		// Set the handler before Connect; queued notices may arrive right
		// after CONNACK.
		devices.RegisterRefreshHandler(subscriber, svc, logger)

		// A short connect timeout keeps startup going when the broker is down.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing without refresh notices)", "error", err)
		}
	}

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if subscriber != nil {
			subscriber.Disconnect()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if subscriber != nil {
		logger.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

func newService(cfg config.Config, backend cache.Backend, logger *slog.Logger) *service.Service {
	retry := fetch.DefaultRetryPolicy()
	retry.MaxRetries = cfg.FetchMaxRetries
	client := fetch.NewClient(
		&http.Client{Timeout: cfg.FetchTimeout},
		fetch.WithRetryPolicy(retry),
		fetch.WithLogger(logger),
	)

	endpoints := make(map[telemetry.DeviceClass]service.Endpoint, len(telemetry.Classes()))
	for _, class := range telemetry.Classes() {
		endpoints[class] = service.Endpoint{URL: cfg.DeviceURL(class), TTL: cfg.CacheTTL(class)}
	}

	source := service.NewSource(client, backend, backend.Name(), endpoints, logger)
	normalizer := telemetry.NewNormalizer(cfg.DisplayZone, logger)
	return service.NewService(source, normalizer, logger)
}
