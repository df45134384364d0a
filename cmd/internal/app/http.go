package app

import (
	"net/http"
	"time"
)

func (a *App) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.ReadinessRequireDB && a.pool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if a.pool != nil {
			if err := PingDB(r.Context(), a.pool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				a.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if a.metrics != nil {
		mux.Handle("/metrics", a.metrics.Handler())
	}

	a.auth.Register(mux)
}

// buildHandler assembles the middleware chain, outermost first:
// request id, admission, security headers, CORS, request logging, mux.
// Admission sits ahead of CORS so preflights and denied origins are counted.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()
	a.registerHTTP(mux)

	var h http.Handler = mux
	h = WithRequestLogging(h, a.log, a.metrics)
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	h = a.admission.Middleware(h)
	h = WithRequestID(h)
	return h
}
