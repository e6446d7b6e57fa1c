package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/kiosksync/internal/config"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/db"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/devicesync"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/jobs"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/loopplan"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/metrics"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/notify"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/power"
	redisclient "github.com/Nixie-Tech-LLC/kiosksync/internal/redis"
	"github.com/Nixie-Tech-LLC/kiosksync/internal/version"
)

// Services bundles everything the routes need.
type Services struct {
	Store       db.Store
	Loops       *loopplan.Service
	Collections *loopplan.CollectionService
	Sync        *devicesync.Service
	Power       *power.Scheduler
	Metrics     *metrics.Metrics
}

// buildServices wires the services on top of store. The returned cleanup closes the
// optional redis and MQTT connections; it is nil when err is not.
func buildServices(cfg *config.Config, store db.Store) (*Services, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	m := metrics.New()
	trackerOpts := []version.Option{version.WithGraceWindow(cfg.Sync.GraceWindow)}
	if cfg.Redis.Enabled() {
		rdb, err := redisclient.InitRedis(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		trackerOpts = append(trackerOpts, version.WithCache(redisclient.NewMarkerCache(rdb, cfg.Sync.MarkerCacheTTL)))
	}
	tracker := version.NewTracker(store, trackerOpts...)

	catalog, err := loopplan.NewCatalog(store, cfg.Sync.CatalogCacheTTL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	loc := cfg.Location()
	resolver := loopplan.NewResolver(store, catalog,
		loopplan.WithEnricher(loopplan.DefaultRegistry(loc, store)),
		loopplan.WithEnrichTimeout(cfg.Sync.EnrichTimeout),
		loopplan.WithMetrics(m),
	)

	var publisher power.CommandPublisher
	if cfg.MQTT.Enabled() {
		p, err := notify.Connect(cfg.MQTT)
		if err != nil {
			// forced states are still logged; devices pick them up on the next evaluation
			log.Warn().Err(err).Msg("mqtt unavailable, power commands will not be pushed")
		} else {
			publisher = p
			closers = append(closers, p.Close)
		}
	}

	return &Services{
		Store:       store,
		Loops:       loopplan.NewService(store, catalog, tracker, m),
		Collections: loopplan.NewCollectionService(store, tracker),
		Sync:        devicesync.NewService(store, resolver, tracker, devicesync.WithLocation(loc), devicesync.WithMetrics(m)),
		Power:       power.NewScheduler(store, publisher, m),
		Metrics:     m,
	}, cleanup, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := db.NewStore(db.DB)
	svc, cleanup, err := buildServices(cfg, store)
	if err != nil {
		return err
	}
	defer cleanup()

	janitor := jobs.NewJanitor(store, cfg.Jobs.LogRetention)
	if err := janitor.Start(cfg.Jobs.Schedule); err != nil {
		return err
	}

	if cfg.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	RegisterRoutes(r, cfg, svc)

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ServerAddress).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	janitor.Stop(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}
