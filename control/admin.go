// control/admin.go
// Author: momentics <momentics@gmail.com>
//
// HTTP admin surface: Prometheus scrape endpoint, liveness and state dumps.

package control

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/evsock/api"
)

// NewAdminHandler routes /metrics to m, /debug/state to dbg and /healthz to
// a static OK. Either source may be nil, which leaves its route unmounted.
func NewAdminHandler(m *Metrics, dbg api.Debug) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if reg := m.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	if dbg != nil {
		r.Get("/debug/state", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(dbg.DumpState()); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		})
	}
	return r
}
