// Package daemon is the composition root: it constructs the storage
// provider, the operation queue, the schema loader, and the settings
// store, then hosts the admin web service and the background jobs.
package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/prefstore/prefstore/internal/config"
	"github.com/prefstore/prefstore/internal/schema"
	"github.com/prefstore/prefstore/internal/storage"
	"github.com/prefstore/prefstore/internal/storage/memkv"
	"github.com/prefstore/prefstore/internal/storage/queue"
	"github.com/prefstore/prefstore/internal/storage/sqlitekv"
	"github.com/prefstore/prefstore/internal/store"
	"github.com/prefstore/prefstore/internal/web"
)

// Daemon represents the running service.
type Daemon struct {
	cfg        *config.Config
	provider   storage.Provider
	store      *store.Store
	webService *web.Service
	scheduler  *cron.Cron
}

// New wires the service together from the configuration. With ephemeral
// set, settings live in memory and are lost on exit.
func New(cfg *config.Config, ephemeral bool) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	var (
		provider storage.Provider
		err      error
	)

	if ephemeral {
		provider = memkv.NewWithQuota(cfg.DB.SyncQuota)
	} else {
		provider, err = sqlitekv.Open(cfg.DB.Path, sqlitekv.WithSyncQuota(cfg.DB.SyncQuota))
		if err != nil {
			return nil, errors.Wrap(err, "failed to open storage backend")
		}
	}

	loader, err := schema.NewLoader(
		schema.FileSource(cfg.Schema.Path),
		schema.WithCacheTTL(cfg.Schema.CacheTTL),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema loader")
	}

	st := store.New(loader, queue.New(provider),
		store.WithArea(storage.AreaName(cfg.Store.Area)),
		store.WithDebounce(cfg.Store.Debounce),
		store.WithRetryDelay(cfg.Store.RetryDelay),
	)

	if err := st.Initialize(context.Background()); err != nil {
		return nil, errors.Wrap(err, "failed to initialize settings store")
	}

	d := &Daemon{
		cfg:        cfg,
		provider:   provider,
		store:      st,
		webService: web.New(st),
		scheduler:  cron.New(),
	}

	if err := d.scheduleJobs(); err != nil {
		return nil, err
	}

	return d, nil
}

// scheduleJobs registers the safety-net flush. The debounce already
// persists edits; this job only catches batches stranded by a crash of
// the retry path or long error windows.
func (d *Daemon) scheduleJobs() error {
	if d.cfg.Cron.SafetyFlush == "" {
		return nil
	}

	_, err := d.scheduler.AddFunc(d.cfg.Cron.SafetyFlush, func() {
		if len(d.store.GetPendingChanges()) == 0 {
			return
		}

		if err := d.store.ForceSave(context.Background(), nil); err != nil {
			log.Warn().Err(err).Msg("safety-net flush failed")
			return
		}

		log.Info().Msg("safety-net flush persisted stranded changes")
	})
	if err != nil {
		return errors.Wrap(err, "failed to schedule safety-net flush")
	}

	return nil
}

// Store exposes the settings store to embedders.
func (d *Daemon) Store() *store.Store {
	return d.store
}

// Start runs the web service and blocks until a shutdown signal.
func (d *Daemon) Start() error {
	d.scheduler.Start()

	errCh := make(chan error, 1)

	go func() {
		errCh <- d.webService.Start(d.cfg.Listen)
	}()

	log.Info().Str("listen", d.cfg.Listen).Msg("settings service started")

	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		d.stop()
		return err
	case sig := <-irqSig:
		log.Info().Msgf("shutdown request (signal: %v)", sig)
		d.stop()
		return nil
	}
}

func (d *Daemon) stop() {
	<-d.scheduler.Stop().Done()

	if err := d.webService.Shutdown(); err != nil {
		log.Error().Err(err).Msg("web service shutdown failed")
	}

	// Destroy flushes pending changes and releases the queue.
	d.store.Destroy()

	if err := d.provider.Close(); err != nil {
		log.Error().Err(err).Msg("storage backend close failed")
	}

	log.Info().Msg("settings service stopped")
}
