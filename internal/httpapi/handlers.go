// Package httpapi is the HTTP boundary of the auth core: bearer
// authentication, permission gates, the auth endpoints and the mapping of
// the error taxonomy onto status codes.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"surveyhub.org/internal/auth"
	"surveyhub.org/internal/obs"
)

const serviceName = "surveyhub-api"

// ReadyProbe is a readiness check (ping the database).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps wires the API to the auth services.
type Deps struct {
	Session  *auth.Session
	Resolver *auth.PermissionResolver
	Store    auth.Store
	Ready    ReadyProbe
	Logger   *zap.Logger
	// Limiter throttles the credential endpoints; nil uses 5 req/s, burst 10.
	Limiter *RateLimiter
	Version string
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	session  *auth.Session
	resolver *auth.PermissionResolver
	store    auth.Store
	limiter  *RateLimiter
	logger   *zap.Logger
}

func New(d Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: d.Ready,
		version:    d.Version,
		session:    d.Session,
		resolver:   d.Resolver,
		store:      d.Store,
		limiter:    d.Limiter,
		logger:     d.Logger,
	}
	if a.logger == nil {
		a.logger = obs.Logger()
	}
	if a.limiter == nil {
		a.limiter = NewRateLimiter(5, 10)
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.routeAuth()
	a.routeAdmin()

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(a.logger)(h)
	h = RequestID(h)
	return otelhttp.NewHandler(h, serviceName)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		a.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
