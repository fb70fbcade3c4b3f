// Package metrics exposes Prometheus counters for cycles and orders.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pilot_cycles_total", Help: "Completed scheduler cycles by terminal status"},
		[]string{"status"},
	)
	ProfileStatusTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pilot_profile_status_total", Help: "Profile passes by terminal status"},
		[]string{"status"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pilot_orders_total", Help: "Order placements by account mode and result"},
		[]string{"mode", "result"},
	)
	RejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pilot_rejects_total", Help: "Rejected proposals and vetoed plans by category"},
		[]string{"category"},
	)
	GateStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "pilot_gate_status", Help: "1 for the reliability gate status of the latest cycle"},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, ProfileStatusTotal, OrdersTotal, RejectsTotal, GateStatus)
}

// SetGate flags the given gate status and clears the others.
func SetGate(status string, all ...string) {
	for _, s := range all {
		GateStatus.WithLabelValues(s).Set(0)
	}
	GateStatus.WithLabelValues(status).Set(1)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a standalone metrics listener.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
