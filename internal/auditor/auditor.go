// Package auditor re-checks the persisted session outside the API process
// and exposes the outcome as metrics.
package auditor

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"boardbank/internal/ledger"
	"boardbank/internal/metrics"
)

const loadTimeout = 30 * time.Second

type Auditor struct {
	store ledger.Store
	log   *slog.Logger
}

func New(store ledger.Store, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{store: store, log: logger}
}

// Once loads the saved session, audits it and records the result.
func (a *Auditor) Once(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	s, err := a.store.Load(loadCtx)
	if err != nil {
		a.log.Error("load session failed", "err", err)
		metrics.RecordAudit(false)
		return err
	}
	if err := ledger.Audit(s); err != nil {
		a.log.Error("audit failed", "err", err, "players", len(s.Players), "companies", len(s.Companies))
		metrics.RecordAudit(false)
		return err
	}
	metrics.RecordAudit(true)
	a.log.Info("audit passed", "players", len(s.Players), "companies", len(s.Companies), "log_entries", len(s.Log))
	return nil
}

// Run audits right away and then on every tick until ctx is done.
func (a *Auditor) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	_ = a.Once(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = a.Once(ctx)
		}
	}
}

// MetricsHandler serves /metrics and /healthz for the worker.
func MetricsHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}` + "\n"))
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}
