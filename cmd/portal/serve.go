package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/actransporte/portal/internal/api"
	"github.com/actransporte/portal/internal/broadcast"
	"github.com/actransporte/portal/internal/conf"
	"github.com/actransporte/portal/internal/docstore"
	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/events"
	"github.com/actransporte/portal/internal/identity"
	"github.com/actransporte/portal/internal/logger"
	"github.com/actransporte/portal/internal/mqtt"
	"github.com/actransporte/portal/internal/notification"
	"github.com/actransporte/portal/internal/observability"
	"github.com/actransporte/portal/internal/offlinecache"
)

const (
	shutdownTimeout   = 10 * time.Second
	assetFetchTimeout = 30 * time.Second
	installRetryWait  = 30 * time.Second
	sentryFlushWait   = 3 * time.Second
	maxStoredNotices  = 500
)

func runServe(cmd *cobra.Command) error {
	settings, err := conf.Load(cfgFile)
	if err != nil {
		return err
	}

	log := logger.NewSlogLogger(os.Stdout, parseLogLevel(settings.Main.LogLevel), []logger.Field{
		logger.String("service", settings.Main.Name),
	})

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN); err != nil {
			log.Warn("sentry init failed, telemetry disabled", logger.Error(err))
		} else {
			defer errors.FlushSentry(sentryFlushWait)
		}
	}

	store, err := docstore.Open(settings.Docstore, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("docstore close failed", logger.Error(err))
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	bus := events.NewBus()
	defer bus.Stop()

	notification.Initialize(notification.ServiceConfig{
		Retention:  settings.Notices.Retention.Std(),
		MaxNotices: maxStoredNotices,
	}, log)
	defer notification.GetService().Stop()

	pusher, err := notification.NewPusher(settings.Notices.PushURLs, log)
	if err != nil {
		log.Warn("push notification sender disabled", logger.Error(err))
	}
	consumer := notification.NewRouteEventConsumer(notification.GetService(), pusher, log)
	bus.Subscribe(consumer.Handle)

	sink, mqttClient := buildSink(cmd.Context(), settings, store, log)
	if mqttClient != nil {
		defer mqttClient.Disconnect()
	}

	routes := broadcast.NewManager(sink, settings.Geo, log, metrics.Broadcast, bus)
	defer routes.Shutdown()

	ident := identity.NewService(store, settings.Identity, log)

	cache, err := buildCache(settings, log, metrics)
	if err != nil {
		return err
	}

	server := api.NewServer(settings, store, ident, routes, cache, metrics, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		installAndActivate(gctx, cache, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("portal stopped")
	return err
}

// buildSink assembles the location sink chain: the document store is the
// primary, MQTT (when enabled) a best-effort secondary.
func buildSink(ctx context.Context, settings *conf.Settings, store docstore.Store, log logger.Logger) (broadcast.Sink, mqtt.Client) {
	primary := broadcast.NewDocstoreSink(store)
	if !settings.MQTT.Enabled {
		return primary, nil
	}

	client, err := mqtt.NewClient(settings.MQTT, log)
	if err != nil {
		log.Warn("mqtt client unavailable, fan-out disabled", logger.Error(err))
		return primary, nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, settings.MQTT.ConnectWait.Std())
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		// The paho client keeps reconnecting in the background.
		log.Warn("mqtt broker not reachable yet", logger.Error(err))
	}
	return broadcast.NewMultiSink(log, primary, broadcast.NewMQTTSink(client, settings.MQTT.TopicPrefix)), client
}

// buildCache assembles the offline asset gateway over the configured
// upstream.
func buildCache(settings *conf.Settings, log logger.Logger, metrics *observability.Metrics) (*offlinecache.Manager, error) {
	fetcher, err := offlinecache.NewHTTPFetcher(settings.Cache.AssetRoot, assetFetchTimeout)
	if err != nil {
		return nil, err
	}
	return offlinecache.NewManager(offlinecache.Config{
		Version:             settings.Cache.Version,
		Manifest:            settings.Cache.Manifest,
		OfflinePage:         settings.Cache.OfflinePage,
		PassThroughPrefixes: []string{"/api/", "/metrics", "/healthz"},
		SkipWaiting:         true,
	}, offlinecache.NewMemoryStorage(), fetcher, log, metrics.Cache), nil
}

// installAndActivate populates and activates the asset cache, retrying
// while the upstream is unreachable. A failed install never disturbs a
// previously activated generation.
func installAndActivate(ctx context.Context, cache *offlinecache.Manager, log logger.Logger) {
	for {
		installCtx, cancel := context.WithTimeout(ctx, conf.GetSettings().Cache.InstallTimeout.Std())
		err := cache.Install(installCtx)
		cancel()
		if err == nil {
			if err := cache.Activate(ctx); err != nil {
				log.Error("cache activation failed", logger.Error(err))
			}
			return
		}

		log.Warn("cache install failed, retrying",
			logger.Error(err),
			logger.Duration("wait", installRetryWait))
		select {
		case <-ctx.Done():
			return
		case <-time.After(installRetryWait):
		}
	}
}

func parseLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.LogLevelDebug
	case "warn":
		return logger.LogLevelWarn
	case "error":
		return logger.LogLevelError
	default:
		return logger.LogLevelInfo
	}
}
