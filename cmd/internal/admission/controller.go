package admission

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"huozhong/cmd/internal/audit"
	"huozhong/cmd/internal/metrics"
)

// Scope names.
const (
	ScopeClient   = "client"
	ScopeEndpoint = "endpoint"
)

// Controller applies the client and endpoint scopes.
type Controller struct {
	cfg      Config
	match    matcher
	client   *Limiter
	endpoint *Limiter

	log     *slog.Logger
	audit   audit.Recorder
	metrics *metrics.Perimeter
	now     func() time.Time
}

// Deps are the Controller's collaborators. All are optional.
type Deps struct {
	Log     *slog.Logger
	Audit   audit.Recorder
	Metrics *metrics.Perimeter
	Clock   func() time.Time
}

// NewController builds both limiters from cfg.
func NewController(cfg Config, deps Deps) *Controller {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	c := &Controller{
		cfg:     cfg,
		match:   newMatcher(cfg.Endpoints, cfg.EndpointDefault),
		log:     deps.Log,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		now:     deps.Clock,
	}
	c.client = NewLimiter(ScopeClient,
		WithLimiterClock(deps.Clock),
		WithSweepInterval(cfg.SweepInterval),
		WithSweepHook(c.sweepHook(ScopeClient)),
	)
	c.endpoint = NewLimiter(ScopeEndpoint,
		WithLimiterClock(deps.Clock),
		WithSweepInterval(cfg.SweepInterval),
		WithSweepHook(c.sweepHook(ScopeEndpoint)),
	)
	return c
}

func (c *Controller) sweepHook(scope string) func(int) {
	return func(n int) {
		c.metrics.TrackedKeys(scope, n)
		c.log.Debug("admission.sweep", "scope", scope, "keys", n)
	}
}

// EndpointKey returns the endpoint-scope key and limits for ip and path.
func (c *Controller) EndpointKey(ip, path string) (string, Limits) {
	prefix, lim := c.match.match(path)
	return ip + "|" + prefix, lim
}

// Admit runs the client scope, then the endpoint scope. A client-scope
// admission stays recorded when the endpoint scope rejects.
func (c *Controller) Admit(ip, path string) error {
	if err := c.client.Admit(ip, c.cfg.Client); err != nil {
		c.metrics.Admission(ScopeClient, "rejected")
		return err
	}
	c.metrics.Admission(ScopeClient, "admitted")

	key, lim := c.EndpointKey(ip, path)
	if err := c.endpoint.Admit(key, lim); err != nil {
		c.metrics.Admission(ScopeEndpoint, "rejected")
		return err
	}
	c.metrics.Admission(ScopeEndpoint, "admitted")
	return nil
}

// ClientStatus reports the client-scope windows of ip.
func (c *Controller) ClientStatus(ip string) Status {
	return c.client.Status(ip, c.cfg.Client)
}

// EndpointStatus reports the endpoint-scope windows of ip on path.
func (c *Controller) EndpointStatus(ip, path string) Status {
	key, lim := c.EndpointKey(ip, path)
	return c.endpoint.Status(key, lim)
}

// Sweep runs both sweeps immediately.
func (c *Controller) Sweep() {
	c.client.Sweep()
	c.endpoint.Sweep()
}

// Middleware rejects over-limit requests with 429 before next runs.
func (c *Controller) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, c.cfg.TrustProxy)
		err := c.Admit(ip, r.URL.Path)
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}

		var le *LimitError
		if !errors.As(err, &le) {
			c.log.Error("admission.fail", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		c.reject(w, r, ip, le)
	})
}

func (c *Controller) reject(w http.ResponseWriter, r *http.Request, ip string, le *LimitError) {
	typ := audit.RateLimitExceeded
	details := map[string]any{"window": le.Window}
	msg := "too many requests, please retry later"
	if le.Scope == ScopeEndpoint {
		typ = audit.APIRateLimitExceeded
		prefix, _ := c.match.match(r.URL.Path)
		details["endpoint"] = prefix
		msg = "too many requests to " + prefix + ", please retry later"
	}

	c.log.Warn("admission.reject",
		"scope", le.Scope,
		"ip", ip,
		"path", r.URL.Path,
		"window", le.Window,
		"retry_after_s", le.RetryAfterSeconds(),
	)
	c.audit.Record(r.Context(), audit.NewEvent(typ, ip, "", details, c.now()))

	w.Header().Set("Retry-After", strconv.FormatInt(le.RetryAfterSeconds(), 10))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": "rate_limited", "message": msg},
	})
}
