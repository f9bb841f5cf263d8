package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/auth"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storagecrypt_http_requests_total",
			Help: "HTTP requests served by the daemon",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storagecrypt_http_request_duration_seconds",
			Help:    "Duration of HTTP requests served by the daemon",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// metricsMiddleware labels requests with the matched chi route pattern so
// account names do not end up in label values.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Router exposes the daemon API.
func (d *Daemon) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Get("/status", d.handleStatus)
	r.Group(func(r chi.Router) {
		if len(d.apiSecret) > 0 {
			r.Use(d.requireToken)
		}
		r.Post("/sync", d.handleSyncAll)
		r.Post("/accounts/{backend}/{name}/sync", d.handleSyncAccount)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// requireToken rejects requests without a valid bearer token carrying the
// sync scope.
func (d *Daemon) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := auth.ParseToken(raw, d.apiSecret, d.clock.Now())
		if err != nil {
			d.logger.Warn(r.Context(), "rejected token", "error", err)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if claims.Scope != auth.ScopeSync {
			writeError(w, http.StatusForbidden, "token scope does not allow sync")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (d *Daemon) serveHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              d.statusAddr,
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		d.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	d.logger.Info(ctx, "Starting HTTP server", "address", d.statusAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type accountStatus struct {
	Backend      models.BackendType `json:"backend"`
	Name         string             `json:"name"`
	SyncState    models.SyncState   `json:"sync_state"`
	LastChangeID string             `json:"last_change_id"`
	QuotaUsed    int64              `json:"quota_used"`
	QuotaTotal   int64              `json:"quota_total"`
}

type statusResponse struct {
	Running   bool            `json:"running"`
	LastCycle *CycleStatus    `json:"last_cycle,omitempty"`
	Accounts  []accountStatus `json:"accounts"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	all, err := d.accounts.All(r.Context())
	if err != nil {
		d.logger.Error(r.Context(), "status failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	running, last := d.snapshot()
	resp := statusResponse{Running: running, LastCycle: last, Accounts: make([]accountStatus, 0, len(all))}
	for _, a := range all {
		resp.Accounts = append(resp.Accounts, accountStatus{
			Backend:      a.Backend,
			Name:         a.Name,
			SyncState:    a.SyncState,
			LastChangeID: a.LastChangeID,
			QuotaUsed:    a.Quota.Used,
			QuotaTotal:   a.Quota.Total,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Daemon) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	d.Trigger(true)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (d *Daemon) handleSyncAccount(w http.ResponseWriter, r *http.Request) {
	backend := models.BackendType(chi.URLParam(r, "backend"))
	name := chi.URLParam(r, "name")

	a, err := d.accounts.Get(r.Context(), backend, name)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "unknown account")
		return
	}

	planned, err := d.accounts.Plan(r.Context(), backend, name)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	d.Trigger(false)

	status := "scheduled"
	if !planned {
		status = "already scheduled"
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": status})
}
