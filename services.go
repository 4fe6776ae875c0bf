package main

import (
	"database/sql"

	"github.com/mbolis/survey-kiosk/backend"
	"github.com/mbolis/survey-kiosk/config"
	"github.com/mbolis/survey-kiosk/connectivity"
	"github.com/mbolis/survey-kiosk/counter"
	"github.com/mbolis/survey-kiosk/kiosk"
	"github.com/mbolis/survey-kiosk/outbox"
	"github.com/mbolis/survey-kiosk/store"
	"github.com/mbolis/survey-kiosk/syncer"
)

type services struct {
	store   *store.SQLite
	monitor *connectivity.Monitor
	engine  *syncer.Engine
	kiosk   *kiosk.Service
}

// newServices wires the whole kiosk on top of db, sync included.
func newServices(cfg config.Config, db *sql.DB) (*services, error) {
	b, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	monitor := connectivity.NewMonitor(cfg.ProbeUrl, cfg.ProbeInterval, cfg.ProbeTimeout)
	return wire(cfg, db, b, monitor)
}

// newLocalServices wires the kiosk for commands that never reach the backend.
func newLocalServices(cfg config.Config, db *sql.DB) (*services, error) {
	return wire(cfg, db, nil, connectivity.NewMonitor("", 0, 0))
}

func wire(cfg config.Config, db *sql.DB, b backend.Backend, monitor *connectivity.Monitor) (*services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st := store.NewSQLite(db)
	m := outbox.New(st)
	engine := syncer.New(m, b, monitor).WithRetention(cfg.OutboxRetention)
	svc := kiosk.New(st, m, counter.New(st, loc), engine, monitor)

	return &services{
		store:   st,
		monitor: monitor,
		engine:  engine,
		kiosk:   svc,
	}, nil
}

func newBackend(cfg config.Config) (backend.Backend, error) {
	supabase := backend.NewSupabase(cfg.BackendUrl, cfg.BackendKey, cfg.Bucket, nil)
	if cfg.BlobStore != config.BlobStoreCOS {
		return supabase, nil
	}

	uploader, err := backend.NewCOSUploader(cfg.COSBucketUrl, cfg.COSSecretID, cfg.COSSecretKey)
	if err != nil {
		return nil, err
	}
	return backend.WithUploader(supabase, uploader), nil
}
