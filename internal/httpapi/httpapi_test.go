package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/service"
	"tokopos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopTreeCache{})
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
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
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token, got empty string")
	}
	return resp.AccessToken
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
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

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	handler := newTestAPI(t).Handler()

	// The loginLimiter allows 5 attempts per minute; httptest requests all
	// arrive from RemoteAddr "192.0.2.1:1234".
	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "badpass",
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCashierCannotWriteCatalog(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/categories", token, map[string]string{
		"name": "Frozen",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Reads stay open to cashiers.
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/categories", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTransactionFlow(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/transactions", token, map[string]any{})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.TransactionResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	txID := created.Transaction.ID

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/transactions/"+txID+"/details", token, map[string]any{
		"product_id": "prd-mie",
		"quantity":   2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add detail: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var withDetail domain.TransactionResponse
	if err := json.NewDecoder(rec.Body).Decode(&withDetail); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if !withDetail.Transaction.TotalAmount.Equal(decimal.RequireFromString("7000")) {
		t.Fatalf("expected total 7000, got %s", withDetail.Transaction.TotalAmount)
	}
	if withDetail.Transaction.PaymentStatus != "unpaid" {
		t.Fatalf("expected unpaid, got %s", withDetail.Transaction.PaymentStatus)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/transactions/"+txID+"/payments", token, map[string]any{
		"payment_method_id": "pm-cash",
		"amount":            "3000",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add payment: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var partial domain.TransactionResponse
	if err := json.NewDecoder(rec.Body).Decode(&partial); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if partial.Transaction.PaymentStatus != "partial" {
		t.Fatalf("expected partial, got %s", partial.Transaction.PaymentStatus)
	}
	if !partial.Remaining.Equal(decimal.RequireFromString("4000")) {
		t.Fatalf("expected remaining 4000, got %s", partial.Remaining)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/transactions/"+txID+"/settle", token, map[string]any{
		"payment_method_id": "pm-qris",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("settle: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var settled domain.TransactionResponse
	if err := json.NewDecoder(rec.Body).Decode(&settled); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if settled.Transaction.PaymentStatus != "paid" {
		t.Fatalf("expected paid, got %s", settled.Transaction.PaymentStatus)
	}
	if !settled.Remaining.IsZero() {
		t.Fatalf("expected remaining 0, got %s", settled.Remaining)
	}

	// A second settle has nothing left to collect.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/transactions/"+txID+"/settle", token, map[string]any{
		"payment_method_id": "pm-cash",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on settled transaction, got %d", rec.Code)
	}
}

func TestMovementValidationSurfacesField(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/inventory/movements", token, map[string]any{
		"product_id":      "prd-mie",
		"type":            "sale",
		"quantity_change": 5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["field"] != "quantity_change" {
		t.Fatalf("expected field quantity_change, got %v", body["field"])
	}
}

func TestNonAdjustmentMovementsImmutable(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/inventory/movements", token, map[string]any{
		"product_id":      "prd-gula",
		"type":            "restock",
		"quantity_change": 10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record restock: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Movement domain.InventoryMovement `json:"movement"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode movement: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/inventory/movements/"+created.Movement.ID, token, map[string]any{
		"quantity_change": 12,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 editing a restock, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/inventory/movements/"+created.Movement.ID, token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 deleting a restock, got %d", rec.Code)
	}
}

func TestMovementBulkDelete(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	ids := make([]string, 0, 3)
	for _, change := range []int{3, -2} {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/inventory/movements", token, map[string]any{
			"product_id":      "prd-kopi",
			"type":            "adjustment",
			"quantity_change": change,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("record adjustment: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
		}
		var created struct {
			Movement domain.InventoryMovement `json:"movement"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
			t.Fatalf("decode movement: %v", err)
		}
		ids = append(ids, created.Movement.ID)
	}
	ids = append(ids, "mov-missing")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/inventory/movements/bulk-delete", token, map[string]any{
		"ids": ids,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk delete: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var result domain.BulkDeleteResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Deleted != 2 || result.Skipped != 1 {
		t.Fatalf("expected deleted=2 skipped=1, got %+v", result)
	}
}

func TestUnknownProductIs404(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products/prd-missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStockAuditEndpoint(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products/prd-teh/stock-audit", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["consistent"] != true {
		t.Fatalf("expected consistent seed stock, got %v", body)
	}
}

func TestCreateCashierThenLogin(t *testing.T) {
	handler := newTestAPI(t).Handler()
	adminToken := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/users/cashiers", adminToken, map[string]string{
		"username": "kasir2",
		"password": "rahasia1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create cashier: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	token := login(t, handler, "kasir2", "rahasia1")
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/payment-methods", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with new cashier token, got %d", rec.Code)
	}
}

func TestPreflightAndSecurityHeaders(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff header, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard CORS origin, got %q", got)
	}
}

func TestRejectsUnknownJSONFields(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/customers", token, map[string]any{
		"name":     "Budi",
		"loyalty?": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}
