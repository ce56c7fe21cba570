package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kitchenpos/backend/internal/domain"
	"kitchenpos/backend/internal/metrics"
	"kitchenpos/backend/internal/service"
	"kitchenpos/backend/internal/store"
	"kitchenpos/backend/internal/xid"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
	logger        zerolog.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger zerolog.Logger) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
		logger:        logger.With().Str("component", "http").Logger(),
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

var (
	staffRoles      = []string{domain.RoleServer, domain.RoleManager, domain.RoleAdmin}
	backOfficeRoles = []string{domain.RoleManager, domain.RoleAdmin}
	adminRoles      = []string{domain.RoleAdmin}
)

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.withRequestID, a.withLogging, a.withSecurity)

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Post("/auth/customer", a.handleCustomerSignIn)
		r.Get("/auth/csrf-token", a.handleCSRFToken)
		r.With(a.requireAuth()).Get("/auth/me", a.handleMe)

		r.Get("/menu-items", a.handleListItems)
		r.Get("/item-categories", a.handleListCategories)
		r.With(a.optionalAuth).Post("/orders", a.handleSaveOrder)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(staffRoles...))
			r.Get("/orders", a.handleListOrders)
			r.Get("/orders/{id}/items", a.handleOrderItems)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(backOfficeRoles...))
			r.Post("/menu-items", a.handleSaveItem)
			r.Delete("/menu-items/{id}", a.handleDeleteItem)
			r.Get("/menu-items/{id}/ingredients", a.handleItemIngredients)
			r.Delete("/orders/{id}", a.handleDeleteOrder)

			r.Get("/ingredients", a.handleListIngredients)
			r.Post("/ingredients", a.handleSaveIngredient)
			r.Delete("/ingredients/{id}", a.handleDeleteIngredient)

			r.Get("/reports/sales", a.handleSalesReport)
			r.Get("/reports/ingredient-usage", a.handleIngredientUsageReport)
			r.Get("/reports/restock", a.handleRestockReport)
			r.Get("/reports/excess-items", a.handleExcessItemsReport)
			r.Get("/reports/ordered-together", a.handleOrderedTogetherReport)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(adminRoles...))
			r.Get("/users", a.handleListUsers)
			r.Post("/users", a.handleSaveUser)
			r.Delete("/users/{id}", a.handleDeleteUser)
		})
	})

	return r
}

func bearerToken(r *http.Request) (string, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return "", false
	}
	return strings.TrimSpace(authorization[len("Bearer "):]), true
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			actor, err := a.auth.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, errors.New("invalid or expired token"))
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

// optionalAuth attaches the actor when a valid token is present and lets
// anonymous requests through otherwise.
func (a *API) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if actor, err := a.auth.Authenticate(r.Context(), token); err == nil {
				r = r.WithContext(service.WithActor(r.Context(), actor))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCustomerSignIn issues a customer token for an email address and
// provisions the customer account on first use. Staff must use a password.
func (a *API) handleCustomerSignIn(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := a.service.ResolveOrCreateRole(r.Context(), req.Email)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if user.Role != domain.RoleCustomer {
		writeError(w, http.StatusForbidden, errors.New("staff accounts must sign in with a password"))
		return
	}

	resp, err := a.auth.IssueToken(user.Email, user.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"user": actor.Subject,
		"role": actor.Role,
	})
}

// handleCSRFToken returns a stateless token for the X-CSRF-Token header.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// csrfExemptPaths are called without a prior token fetch.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
	"/api/v1/auth/customer",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListItems(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.ListCategories(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleSaveItem(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemSaveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := a.service.SaveItem(r.Context(), req.Item, req.Ingredients)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	status := http.StatusOK
	if req.ID == 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"item": item})
}

func (a *API) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.service.DeleteItem(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleItemIngredients(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ingredients, err := a.service.ListIngredientsByItem(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingredients": ingredients})
}

func (a *API) handleListIngredients(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		ingredients, err := a.service.ListIngredients(r.Context())
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ingredients": ingredients})
		return
	}

	ids, err := parseIDList(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ingredients, err := a.service.GetIngredientsByIDs(r.Context(), ids)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingredients": ingredients})
}

func (a *API) handleSaveIngredient(w http.ResponseWriter, r *http.Request) {
	var req domain.Ingredient
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ingredient, err := a.service.SaveIngredient(r.Context(), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	status := http.StatusOK
	if req.ID == 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"ingredient": ingredient})
}

func (a *API) handleDeleteIngredient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.service.DeleteIngredient(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.service.ListOrders(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// handleSaveOrder is open to walk-in customers for new orders. Changing an
// existing order needs a staff token.
func (a *API) handleSaveOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderSaveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.ID != 0 {
		actor, ok := service.ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		if !isRoleAllowed(actor.Role, staffRoles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}
	}

	order, err := a.service.SaveOrder(r.Context(), req.Order, req.Items)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	status := http.StatusOK
	if req.ID == 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"order": order})
}

func (a *API) handleOrderItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	items, err := a.service.ListItemsByOrder(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.service.DeleteOrder(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.service.ListUsers(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleSaveUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserSaveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := a.service.SaveUser(r.Context(), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	status := http.StatusOK
	if req.ID == 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"user": user})
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.service.DeleteUser(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reportRange reads start and end from the query string. Both accept RFC 3339
// or a bare date; a bare end date covers the whole day.
func reportRange(r *http.Request) (time.Time, time.Time, error) {
	query := r.URL.Query()
	start, err := parseReportTime(query.Get("start"), false)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseReportTime(query.Get("end"), true)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
	}
	return start, end, nil
}

func parseReportTime(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("is required")
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", raw)
	}
	if endOfDay {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	start, end, err := reportRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := a.service.SalesReport(r.Context(), start, end)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleIngredientUsageReport(w http.ResponseWriter, r *http.Request) {
	start, end, err := reportRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := a.service.IngredientUsageReport(r.Context(), start, end)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleRestockReport(w http.ResponseWriter, r *http.Request) {
	rows, err := a.service.RestockReport(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleExcessItemsReport(w http.ResponseWriter, r *http.Request) {
	start, end, err := reportRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := a.service.ExcessItemsReport(r.Context(), start, end)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleOrderedTogetherReport(w http.ResponseWriter, r *http.Request) {
	start, end, err := reportRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := a.service.OrderedTogetherReport(r.Context(), start, end)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if !xid.Valid(requestID) {
			requestID = xid.New("req")
		}
		w.Header().Set("X-Request-ID", requestID)

		logger := a.logger.With().Str("request_id", requestID).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func (a *API) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()

		next.ServeHTTP(ww, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, route, status)

		zerolog.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(startedAt)).
			Msg("request")
	})
}

func (a *API) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func parseIDList(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeStoreError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; details go to the log only.
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
