package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"kitchenpos/backend/internal/lock"
	"kitchenpos/backend/internal/service"
	"kitchenpos/backend/internal/store/memory"
)

// newTestAPI builds a full API with the seeded in-memory store so handler
// tests run the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, lock.NewLocalLocker(), zerolog.Nop())
	auth := NewAuthManager("test-secret-key", time.Hour, repo, svc)

	return New(svc, auth, "*", zerolog.Nop())
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s: expected 200, got %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatalf("login as %s returned empty token", username)
	}
	return body.AccessToken
}

func loginAsAdmin(t *testing.T, handler http.Handler) string {
	return login(t, handler, "admin", "admin123")
}

func fetchCSRFToken(t *testing.T, handler http.Handler) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token: expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf body: %v", err)
	}
	return body["csrf_token"]
}

// do sends a request with optional bearer token and a CSRF token on writes.
func do(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, handler))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := do(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := do(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleMe(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAsAdmin(t, handler)

	rec := do(t, handler, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["user"] != "admin" || body["role"] != "admin" {
		t.Fatalf("unexpected identity: %v", body)
	}
}

func TestCustomerSignInRefusesStaffEmail(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := do(t, handler, http.MethodPost, "/api/v1/auth/customer", "", map[string]string{"email": "diner@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for new customer, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["role"] != "customer" || body["access_token"] == "" {
		t.Fatalf("unexpected customer sign-in: %v", body)
	}

	rec = do(t, handler, http.MethodPost, "/api/v1/auth/customer", "", map[string]string{"email": "admin@kitchenpos.local"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff email, got %d", rec.Code)
	}
}

func TestRoleGates(t *testing.T) {
	handler := newTestAPI(t).Handler()

	if rec := do(t, handler, http.MethodGet, "/api/v1/reports/restock", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	manager := login(t, handler, "manager", "manager123")
	if rec := do(t, handler, http.MethodGet, "/api/v1/reports/restock", manager, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected manager to read reports, got %d", rec.Code)
	}
	if rec := do(t, handler, http.MethodGet, "/api/v1/users", manager, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for manager on users, got %d", rec.Code)
	}

	rec := do(t, handler, http.MethodGet, "/api/v1/menu-items", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected public menu, got %d", rec.Code)
	}
}

func TestSaveItemReconcilesIngredientsOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAsAdmin(t, handler)

	rec := do(t, handler, http.MethodPost, "/api/v1/menu-items", token, map[string]any{
		"category_id": 1,
		"name":        "Veggie Burger",
		"price":       "8.25",
		"ingredients": map[string]int{"1": 1, "4": 2},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Item struct {
			ID int64 `json:"id"`
		} `json:"item"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode item: %v", err)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/menu-items/"+itoa(created.Item.ID)+"/ingredients", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var recipe struct {
		Ingredients []struct {
			ID       int64 `json:"id"`
			Quantity int   `json:"quantity"`
		} `json:"ingredients"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&recipe)
	if len(recipe.Ingredients) != 2 || recipe.Ingredients[1].Quantity != 2 {
		t.Fatalf("unexpected recipe: %+v", recipe.Ingredients)
	}

	rec = do(t, handler, http.MethodPost, "/api/v1/menu-items", token, map[string]any{
		"name":        "Ghost Dish",
		"price":       "1.00",
		"ingredients": map[string]int{"999": 1},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown ingredient, got %d", rec.Code)
	}
}

func TestAnonymousOrderCreateAndStaffOnlyUpdate(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := do(t, handler, http.MethodPost, "/api/v1/orders", "", map[string]any{
		"price": "12.48",
		"items": map[string]int{"1": 1, "2": 1},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Order struct {
			ID int64 `json:"id"`
		} `json:"order"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&created)

	update := map[string]any{"id": created.Order.ID, "price": "12.48", "status": "completed"}
	if rec := do(t, handler, http.MethodPost, "/api/v1/orders", "", update); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous update, got %d", rec.Code)
	}

	token := loginAsAdmin(t, handler)
	if rec := do(t, handler, http.MethodPost, "/api/v1/orders", token, update); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for staff update, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/orders/"+itoa(created.Order.ID)+"/items", token, nil)
	var lines struct {
		Items []struct {
			ID int64 `json:"id"`
		} `json:"items"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&lines)
	if len(lines.Items) != 2 {
		t.Fatalf("expected order lines kept on update without items, got %+v", lines.Items)
	}
}

func TestStoreErrorsMapToStatus(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAsAdmin(t, handler)

	if rec := do(t, handler, http.MethodPost, "/api/v1/orders", "", map[string]any{"items": map[string]int{"1": 1}}); rec.Code != http.StatusCreated {
		t.Fatalf("expected order create, got %d", rec.Code)
	}

	if rec := do(t, handler, http.MethodDelete, "/api/v1/menu-items/1", token, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 deleting ordered item, got %d", rec.Code)
	}
	if rec := do(t, handler, http.MethodDelete, "/api/v1/ingredients/1", token, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 deleting used ingredient, got %d", rec.Code)
	}
	if rec := do(t, handler, http.MethodDelete, "/api/v1/orders/9999", token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting unknown order, got %d", rec.Code)
	}
	if rec := do(t, handler, http.MethodGet, "/api/v1/menu-items/abc/ingredients", token, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestReportsOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAsAdmin(t, handler)

	if rec := do(t, handler, http.MethodPost, "/api/v1/orders", "", map[string]any{
		"time":  "2024-06-01T12:00:00Z",
		"items": map[string]int{"1": 1, "2": 1},
	}); rec.Code != http.StatusCreated {
		t.Fatalf("expected order create, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec := do(t, handler, http.MethodGet, "/api/v1/reports/sales?start=2024-06-01&end=2024-06-01", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var sales struct {
		Rows []struct {
			ItemName   string `json:"item_name"`
			OrderCount int64  `json:"order_count"`
		} `json:"rows"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&sales)
	if len(sales.Rows) != 3 || sales.Rows[0].OrderCount != 1 || sales.Rows[2].OrderCount != 0 {
		t.Fatalf("unexpected sales rows: %+v", sales.Rows)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/reports/ordered-together?start=2024-06-01T00:00:00Z&end=2024-06-02T00:00:00Z", token, nil)
	var pairs struct {
		Rows []struct {
			Item1Name string `json:"item1_name"`
			Item2Name string `json:"item2_name"`
		} `json:"rows"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&pairs)
	if len(pairs.Rows) != 1 || pairs.Rows[0].Item1Name != "Classic Burger" {
		t.Fatalf("unexpected pair rows: %+v", pairs.Rows)
	}

	if rec := do(t, handler, http.MethodGet, "/api/v1/reports/excess-items?start=2024-06-01", token, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing end, got %d", rec.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
