// Package metrics exposes client counters over Prometheus. Everything
// registers on a private registry so tests can run in parallel and the
// binary never collides with global collectors.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the client's counters.
type Metrics struct {
	registry *prometheus.Registry

	Polls           prometheus.Counter
	PollErrors      prometheus.Counter
	NoopCycles      prometheus.Counter
	Reconciliations prometheus.Counter
	EchoesCreated   prometheus.Counter
	EchoesResolved  prometheus.Counter
	Sends           prometheus.Counter
	SendFailures    prometheus.Counter
}

// New creates the counter set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaychat",
			Name:      name,
			Help:      help,
		})
		reg.MustRegister(c)
		return c
	}
	return &Metrics{
		registry:        reg,
		Polls:           counter("polls_total", "Message fetches attempted."),
		PollErrors:      counter("poll_errors_total", "Message fetches that failed."),
		NoopCycles:      counter("noop_cycles_total", "Fetches short-circuited by an unchanged fingerprint."),
		Reconciliations: counter("reconciliations_total", "Batches merged into the local sequence."),
		EchoesCreated:   counter("echoes_created_total", "Optimistic pending messages created."),
		EchoesResolved:  counter("echoes_resolved_total", "Pending messages superseded by server copies."),
		Sends:           counter("sends_total", "Messages sent."),
		SendFailures:    counter("send_failures_total", "Sends rejected or failed."),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled. Blocks.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
