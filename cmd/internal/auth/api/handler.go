package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"huozhong/cmd/identity"
	"huozhong/cmd/internal/admission"
	"huozhong/cmd/internal/audit"
	"huozhong/cmd/internal/auth/rbac"
	"huozhong/cmd/internal/metrics"
	"huozhong/cmd/internal/verifycode"
	"huozhong/cmd/security/credential"
	"huozhong/cmd/security/token"
)

// RateLimitInspector exposes admission window state to admins.
type RateLimitInspector interface {
	ClientStatus(ip string) admission.Status
	EndpointStatus(ip, path string) admission.Status
}

// Deps are the collaborators of Handler. Store, Tokens, Codes and Issuer are required.
type Deps struct {
	Log     *slog.Logger
	Store   identity.Store
	Tokens  *token.Authority
	Gate    *rbac.Gate
	Codes   *verifycode.FileStore
	Issuer  *verifycode.Issuer
	Limits  RateLimitInspector
	Audit   audit.Recorder
	Metrics *metrics.Perimeter
	Clock   func() time.Time
}

// Handler wires the perimeter HTTP endpoints.
type Handler struct {
	log *slog.Logger
	cfg Config

	store   identity.Store
	tokens  *token.Authority
	gate    *rbac.Gate
	codes   *verifycode.FileStore
	issuer  *verifycode.Issuer
	limits  RateLimitInspector
	audit   audit.Recorder
	metrics *metrics.Perimeter
	now     func() time.Time
}

// NewHandler validates deps and constructs a Handler.
func NewHandler(cfg Config, deps Deps) (*Handler, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("api: nil identity store")
	case deps.Tokens == nil:
		return nil, errors.New("api: nil token authority")
	case deps.Codes == nil || deps.Issuer == nil:
		return nil, errors.New("api: nil verification code store")
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Gate == nil {
		deps.Gate = rbac.NewGate(deps.Store)
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	return &Handler{
		log:     deps.Log,
		cfg:     cfg,
		store:   deps.Store,
		tokens:  deps.Tokens,
		gate:    deps.Gate,
		codes:   deps.Codes,
		issuer:  deps.Issuer,
		limits:  deps.Limits,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		now:     deps.Clock,
	}, nil
}

// Register wires perimeter routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/user/register", h.handleRegister)
	mux.HandleFunc("/api/user/login", h.handleLogin)
	mux.HandleFunc("/api/user/login/teacher", h.handleTeacherLogin)
	mux.HandleFunc("/api/user/email-code", h.handleEmailCode)
	mux.HandleFunc("/api/user/me", h.handleMe)
	mux.HandleFunc("/api/user/info/", h.handleUpdateInfo)
	mux.HandleFunc("/api/admin/rate-limits", h.handleRateLimits)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req credentialRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	id := identity.NormalizeID(req.ID)
	hash := strings.TrimSpace(req.Password)
	if id == "" || hash == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id and password are required")
		return
	}

	ctx := r.Context()
	u, err := h.store.GetByID(ctx, id)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "id is not on the roster")
			return
		}
		h.writeFailure(w, "auth.register.lookup.fail", err)
		return
	}
	if err := h.gate.RequireRole(u, identity.RoleStudent); err != nil {
		writeError(w, http.StatusForbidden, "forbidden", "not a student account")
		return
	}
	if u.HasCredential() {
		writeError(w, http.StatusConflict, "already_registered", "already registered, please log in")
		return
	}

	if err := h.store.SetCredentialHashIfUnset(ctx, u.ID, hash); err != nil {
		if identity.IsConflict(err) {
			writeError(w, http.StatusConflict, "already_registered", "already registered, please log in")
			return
		}
		h.writeFailure(w, "auth.register.fail", err)
		return
	}
	h.log.Info("auth.register.ok", "subject_id", u.ID)
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req credentialRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	id := identity.NormalizeID(req.ID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id and password are required")
		return
	}

	ctx := r.Context()
	ip := admission.ClientIP(r, h.cfg.TrustProxy)

	u, err := h.store.GetByID(ctx, id)
	if err != nil {
		if identity.IsNotFound(err) {
			h.loginFailed(ctx, "password", ip, id, "not_found")
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "account does not exist")
			return
		}
		h.writeFailure(w, "auth.login.lookup.fail", err)
		return
	}
	if err := h.gate.RequireRole(u, identity.RoleStudent, identity.RoleAdmin); err != nil {
		h.loginFailed(ctx, "password", ip, u.ID, "role")
		writeError(w, http.StatusForbidden, "forbidden", "this account cannot log in with a password")
		return
	}
	if !u.HasCredential() {
		h.loginFailed(ctx, "password", ip, u.ID, "credential_not_set")
		writeError(w, http.StatusUnauthorized, "credential_not_set", "password not set, please register first")
		return
	}
	if !credential.Verify(req.Password, u.CredentialHash) {
		h.loginFailed(ctx, "password", ip, u.ID, "bad_credential")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	h.issueToken(w, r, "password", ip, u)
}

func (h *Handler) handleEmailCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req emailCodeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	email := identity.NormalizeEmail(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	ctx := r.Context()
	u, err := h.store.GetByEmail(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "email is not on the roster")
			return
		}
		h.writeFailure(w, "auth.email_code.lookup.fail", err)
		return
	}
	if err := h.gate.RequireRole(u, identity.RoleTeacher); err != nil {
		writeError(w, http.StatusForbidden, "forbidden", "only teacher accounts can log in by email")
		return
	}

	if err := h.issuer.Issue(ctx, email); err != nil {
		h.metrics.Code("delivery_failed")
		h.writeFailure(w, "auth.email_code.fail", err)
		return
	}
	h.metrics.Code("issued")
	h.audit.Record(ctx, audit.NewEvent(audit.VerificationCodeIssued,
		admission.ClientIP(r, h.cfg.TrustProxy), u.ID, map[string]any{"email": email}, h.now()))

	msg := "verification code generated (mail delivery disabled)"
	if h.cfg.DeliveryEnabled {
		msg = "verification code sent"
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (h *Handler) handleTeacherLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req teacherLoginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	email := identity.NormalizeEmail(req.Email)
	if email == "" || strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and code are required")
		return
	}

	ctx := r.Context()
	ip := admission.ClientIP(r, h.cfg.TrustProxy)

	if err := h.codes.Verify(email, req.Code); err != nil {
		if verifycode.IsVerificationFailure(err) {
			h.metrics.Code("rejected")
			h.loginFailed(ctx, "email_code", ip, "", codeFailureReason(err))
		}
		h.writeFailure(w, "auth.teacher_login.verify.fail", err)
		return
	}
	h.metrics.Code("verified")

	u, err := h.store.GetByEmail(ctx, email)
	if err != nil {
		h.writeFailure(w, "auth.teacher_login.lookup.fail", err)
		return
	}
	if err := h.gate.RequireRole(u, identity.RoleTeacher); err != nil {
		h.loginFailed(ctx, "email_code", ip, u.ID, "role")
		h.writeFailure(w, "auth.teacher_login.role", err)
		return
	}

	h.issueToken(w, r, "email_code", ip, u)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	u, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleUpdateInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	targetID := identity.NormalizeID(strings.TrimPrefix(r.URL.Path, "/api/user/info/"))
	if targetID == "" || strings.Contains(targetID, "/") {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}

	caller, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	if err := h.gate.RequireSelfOrAdmin(caller, targetID); err != nil {
		h.writeFailure(w, "auth.update_info.forbidden", err)
		return
	}

	var req updateInfoRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	upd := identity.ProfileUpdate{Name: req.Name, Email: req.Email}
	if req.Role != nil {
		if err := h.gate.RequireRole(caller, identity.RoleAdmin); err != nil {
			h.writeFailure(w, "auth.update_info.role_forbidden", err)
			return
		}
		role, ok := identity.ParseRole(*req.Role)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown role")
			return
		}
		upd.Role = &role
	}

	out, err := h.store.UpdateProfile(r.Context(), targetID, upd)
	if err != nil {
		h.writeFailure(w, "auth.update_info.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(out))
}

func (h *Handler) handleRateLimits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	caller, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	if err := h.gate.RequireRole(caller, identity.RoleAdmin); err != nil {
		h.writeFailure(w, "auth.rate_limits.forbidden", err)
		return
	}
	if h.limits == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "rate limiting disabled")
		return
	}

	ip := strings.TrimSpace(r.URL.Query().Get("ip"))
	if ip == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "ip is required")
		return
	}

	resp := rateLimitResponse{IP: ip, Client: h.limits.ClientStatus(ip)}
	if path := strings.TrimSpace(r.URL.Query().Get("path")); path != "" {
		st := h.limits.EndpointStatus(ip, path)
		resp.Endpoint = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---- helpers ----

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request, flow, ip string, u identity.Identity) {
	tok, exp, err := h.tokens.Issue(u.ID, h.cfg.TokenTTL, h.now())
	if err != nil {
		h.writeFailure(w, "auth.login.issue.fail", err)
		return
	}

	h.metrics.Login(flow, "success")
	h.audit.Record(r.Context(), audit.NewEvent(audit.LoginSuccess, ip, u.ID, map[string]any{"flow": flow}, h.now()))
	h.log.Info("auth.login.ok", "flow", flow, "subject_id", u.ID, "role", string(u.Role))

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok,
		TokenType:   "bearer",
		ExpiresAt:   exp.UTC(),
	})
}

func (h *Handler) loginFailed(ctx context.Context, flow, ip, subjectID, reason string) {
	h.metrics.Login(flow, "failure")
	h.audit.Record(ctx, audit.NewEvent(audit.LoginFailed, ip, subjectID, map[string]any{
		"flow":   flow,
		"reason": reason,
	}, h.now()))
	h.log.Warn("auth.login.fail", "flow", flow, "subject_id", subjectID, "reason", reason)
}

// requireAuth resolves the bearer token to a live identity or writes 401.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	raw := bearerToken(r)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return identity.Identity{}, false
	}
	sub, err := h.tokens.Verify(raw, h.now())
	if err != nil {
		h.metrics.TokenVerify(tokenFailureOutcome(err))
		h.writeFailure(w, "auth.token.fail", err)
		return identity.Identity{}, false
	}
	h.metrics.TokenVerify("ok")

	u, err := h.store.GetByID(r.Context(), sub)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "user no longer exists")
			return identity.Identity{}, false
		}
		h.writeFailure(w, "auth.me.fail", err)
		return identity.Identity{}, false
	}
	return u, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func tokenFailureOutcome(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "malformed"
	}
}

func codeFailureReason(err error) string {
	switch {
	case errors.Is(err, verifycode.ErrCodeExpired):
		return "code_expired"
	case errors.Is(err, verifycode.ErrCodeAbsent):
		return "code_absent"
	default:
		return "code_mismatch"
	}
}

func formatSeconds(s int64) string { return strconv.FormatInt(s, 10) }
