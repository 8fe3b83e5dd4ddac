// Package analysis assembles the recognition service: the shared camera pool,
// inference workers, record store and the HTTP server in front of them.
package analysis

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omniface/omniface-go/internal/api"
	"github.com/omniface/omniface-go/internal/api/auth"
	"github.com/omniface/omniface-go/internal/attendance"
	"github.com/omniface/omniface-go/internal/buildinfo"
	"github.com/omniface/omniface-go/internal/camera"
	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/datastore"
	"github.com/omniface/omniface-go/internal/diskmanager"
	"github.com/omniface/omniface-go/internal/inference"
	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/modelcache"
	"github.com/omniface/omniface-go/internal/mqtt"
	"github.com/omniface/omniface-go/internal/observability"
	"github.com/omniface/omniface-go/internal/session"
)

const (
	// directoryTTL is how long person and department lookups are cached
	directoryTTL = 5 * time.Minute

	mqttConnectTimeout = 10 * time.Second
)

// GetLogger returns the analysis logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}

// RealtimeRecognition starts every component, serves recognition streams and
// blocks until SIGINT or SIGTERM, then shuts down in reverse order.
func RealtimeRecognition(settings *conf.Settings, build *buildinfo.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := GetLogger()
	log.Info("starting omniface",
		logger.String("version", build.GetVersion()),
		logger.String("build_date", build.GetBuildDate()),
		logger.String("instance_id", build.GetInstanceID()),
		logger.String("timezone", settings.Location().String()))

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("error initializing metrics: %w", err)
	}

	if _, err := observability.InitSentry(settings, build); err != nil {
		log.Warn("error reporting disabled", logger.Error(err))
	}
	defer observability.FlushSentry()

	store, err := openDataStore(settings, metrics)
	if err != nil {
		return err
	}
	defer closeDataStore(store)

	models, releaseModels, err := inference.LoadModels(settings)
	if err != nil {
		return fmt.Errorf("error loading face models: %w", err)
	}
	defer releaseModels()

	cameras := camera.NewPool(
		camera.GocvOpener{
			Width:  settings.Camera.Width,
			Height: settings.Camera.Height,
			FPS:    settings.Camera.FPS,
		},
		camera.WithMetrics(metrics.Camera),
		camera.WithReadRetryDelay(settings.Camera.ReadRetryDelay),
		camera.WithDeviceProbe(settings.Camera.ProbeCount, settings.Camera.ListCacheTTL))
	defer cameras.Close()

	workers := inference.NewRegistry(models, settings.Recognition.Threshold, metrics.Recognition)
	defer workers.Close()

	deps := session.Deps{
		Cameras: cameras,
		Models:  modelcache.New(conf.ResolvePath(settings.Models.Root), metrics.Recognition),
		Workers: workers,
		Metrics: metrics.Recognition,
	}
	if store != nil {
		deps.Store = store
		deps.Directory = datastore.NewDirectory(store, directoryTTL)
		deps.Ledger = attendance.NewLedger(store)
	} else {
		log.Warn("no record store enabled, attendance and exits are not persisted")
		deps.Ledger = attendance.NewLedger(nil)
	}

	if events := startEventPublisher(ctx, settings, metrics); events != nil {
		deps.Events = events
		defer events.Close()
	}

	engine := session.NewEngine(deps, session.ConfigFromSettings(settings))

	tokens, err := auth.NewTokenService(settings.Security.JWT)
	if err != nil {
		return err
	}

	serverOpts := []api.ServerOption{
		api.WithEngine(engine),
		api.WithCameraPool(cameras),
		api.WithWorkers(workers),
		api.WithTokens(tokens),
		api.WithMetrics(metrics),
		api.WithVersion(build.GetVersion()),
	}
	if store != nil {
		serverOpts = append(serverOpts, api.WithDataStore(store))
	}
	server, err := api.New(settings, serverOpts...)
	if err != nil {
		return err
	}

	retention, err := diskmanager.NewRetention(settings)
	if err != nil {
		return err
	}
	retention.Start()
	defer retention.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Serve)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		return server.Shutdown()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// openDataStore opens the configured store. Nil means records are not kept.
func openDataStore(settings *conf.Settings, metrics *observability.Metrics) (datastore.Interface, error) {
	store := datastore.New(settings, metrics.Datastore)
	if store == nil {
		return nil, nil
	}
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("error opening record store: %w", err)
	}
	return store, nil
}

func closeDataStore(store datastore.Interface) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		GetLogger().Error("failed to close record store", logger.Error(err))
	}
}

// startEventPublisher connects to the broker when MQTT is enabled. A broker
// that is down at startup is retried in the background by the client.
func startEventPublisher(ctx context.Context, settings *conf.Settings, metrics *observability.Metrics) *mqtt.Publisher {
	if !settings.MQTT.Enabled {
		return nil
	}

	client := mqtt.NewClient(settings, metrics.MQTT)
	connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		GetLogger().Warn("mqtt broker unavailable, events are dropped until it connects",
			logger.String("broker", settings.MQTT.Broker),
			logger.Error(err))
	}
	return mqtt.NewPublisher(client, settings.MQTT.Topic)
}
