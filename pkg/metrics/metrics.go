// Package metrics exports parser table counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psaab/frpd/pkg/frp"
)

// Metrics holds the daemon's collectors in a private registry.
type Metrics struct {
	reg *prometheus.Registry

	commands  *prometheus.CounterVec
	hwOps     *prometheus.CounterVec
	hwErrors  *prometheus.CounterVec
	liveSlots prometheus.Gauge
	inSync    prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frpd_commands_total",
			Help: "Parser table commands by operation and result.",
		}, []string{"op", "result"}),
		hwOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frpd_hardware_operations_total",
			Help: "Parser hardware operations by type.",
		}, []string{"op"}),
		hwErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frpd_hardware_errors_total",
			Help: "Failed parser hardware operations by type.",
		}, []string{"op"}),
		liveSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "frpd_table_live_slots",
			Help: "Live instruction slots, excluding the catch-all.",
		}),
		inSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "frpd_table_in_sync",
			Help: "1 if the last hardware write succeeded.",
		}),
	}
	m.reg.MustRegister(m.commands, m.hwOps, m.hwErrors, m.liveSlots, m.inSync)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Result returns the result label for a command error.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, frp.ErrValidation):
		return "invalid"
	case errors.Is(err, frp.ErrCapacity):
		return "no_space"
	case errors.Is(err, frp.ErrConflict):
		return "conflict"
	case errors.Is(err, frp.ErrNotFound):
		return "not_found"
	default:
		return "hardware"
	}
}

// ObserveCommand counts one applied command.
func (m *Metrics) ObserveCommand(op frp.Op, err error) {
	m.commands.WithLabelValues(op.String(), Result(err)).Inc()
}

// SetTable records the committed table state.
func (m *Metrics) SetTable(live int, inSync bool) {
	m.liveSlots.Set(float64(live))
	if inSync {
		m.inSync.Set(1)
	} else {
		m.inSync.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
