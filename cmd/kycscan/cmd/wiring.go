package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/kycscan/internal/audit"
	"github.com/MeKo-Tech/kycscan/internal/config"
	"github.com/MeKo-Tech/kycscan/internal/files"
	"github.com/MeKo-Tech/kycscan/internal/pipeline"
	"github.com/MeKo-Tech/kycscan/internal/recognizer"
	"github.com/MeKo-Tech/kycscan/internal/storage"
)

// app is a fully wired pipeline plus the resources it holds open.
type app struct {
	pipeline *pipeline.Pipeline
	closers  []func() error
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildApp wires store, file storage, audit sink and OCR engine into a
// pipeline according to cfg.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		_ = a.Close()
		return nil, err
	}

	profiles, err := cfg.Profiles()
	if err != nil {
		return fail(fmt.Errorf("failed to load document profiles: %w", err))
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, store.Close)

	local, err := files.NewLocal(cfg.Files.Root)
	if err != nil {
		return fail(fmt.Errorf("failed to open file storage: %w", err))
	}

	sink, closeSink, err := openAuditSink(cfg.Audit)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, closeSink)

	engine, err := recognizer.NewHTTPEngine(cfg.ToEngineConfig(), nil)
	if err != nil {
		return fail(fmt.Errorf("failed to create OCR engine client: %w", err))
	}

	pl, err := pipeline.NewBuilder().
		WithConfig(cfg.ToPipelineConfig()).
		WithEngine(engine).
		WithProfiles(profiles).
		WithStore(store).
		WithFiles(local).
		WithAuditSink(sink).
		Build()
	if err != nil {
		return fail(fmt.Errorf("failed to build pipeline: %w", err))
	}
	a.pipeline = pl

	slog.Debug("Pipeline ready",
		"store", cfg.Store.Driver,
		"audit", cfg.Audit.Sink,
		"engine", cfg.Engine.URL,
		"document_types", len(profiles.Types()))
	return a, nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (storage.Store, error) {
	switch sc.Driver {
	case config.DriverPostgres:
		db, err := storage.OpenDB(sc.DSN, sc.MaxOpenConns)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		pg := storage.NewPostgres(db)
		if sc.AutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("failed to migrate postgres schema: %w", err)
			}
		}
		return pg, nil
	default:
		return storage.NewMemory(), nil
	}
}

func openAuditSink(ac config.AuditConfig) (audit.Sink, func() error, error) {
	logSink := audit.LogSink{Logger: slog.Default().With("component", "audit")}
	if ac.Sink == config.SinkLog || ac.Sink == "" {
		return logSink, func() error { return nil }, nil
	}

	nc, err := audit.Connect(ac.NATSURL, audit.NATSOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect audit sink: %w", err)
	}
	closeConn := func() error {
		return nc.Drain()
	}
	natsSink := audit.NewNATSSink(nc, ac.NATSSubject)
	if ac.Sink == config.SinkBoth {
		return audit.Multi{logSink, natsSink}, closeConn, nil
	}
	return natsSink, closeConn, nil
}
