package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sukoopos/backend/internal/cache"
	"sukoopos/backend/internal/domain"
	"sukoopos/backend/internal/service"
	"sukoopos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path. The
// seeded store ships owner/owner123 and kasir/kasir123 accounts.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopReportCache{}, time.Minute)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

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

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "owner",
		"password": "owner123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.AccessToken == "" || body.Role != domain.RoleOwner {
		t.Fatalf("unexpected login response: %+v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "owner",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "kasir", "kasir123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["products"] == nil {
		t.Fatalf("expected products key in response, got %v", body)
	}
}

func TestCreateSaleEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "kasir", "kasir123")
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(domain.SaleRequest{
		CartItems:     []domain.CartItem{{ProductID: 1, Qty: 2}},
		PaymentMethod: "cash",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode sale response: %v", err)
	}
	if resp.Transaction.Total != 30000 {
		t.Fatalf("expected total 30000, got %d", resp.Transaction.Total)
	}
	if !strings.HasPrefix(resp.Transaction.InvoiceNo, "SK-") {
		t.Fatalf("unexpected invoice: %s", resp.Transaction.InvoiceNo)
	}
}

func TestCreateSaleRequiresCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "kasir", "kasir123")

	payload, _ := json.Marshal(domain.SaleRequest{
		CartItems:     []domain.CartItem{{ProductID: 1, Qty: 1}},
		PaymentMethod: "cash",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}
}

func TestCreateSaleInsufficientStockConflict(t *testing.T) {
	api := newTestAPI(t)
	ownerToken := loginAs(t, api, "owner", "owner123")
	kasirToken := loginAs(t, api, "kasir", "kasir123")
	csrf := fetchCSRFToken(t, api)

	opname, _ := json.Marshal(domain.StockAdjustRequest{Qty: 1, Note: "count"})
	opnameReq := httptest.NewRequest(http.MethodPost, "/api/v1/stocks/1/opname", bytes.NewReader(opname))
	opnameReq.Header.Set("Content-Type", "application/json")
	opnameReq.Header.Set("Authorization", "Bearer "+ownerToken)
	opnameReq.Header.Set("X-CSRF-Token", csrf)
	opnameRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(opnameRec, opnameReq)
	if opnameRec.Code != http.StatusOK {
		t.Fatalf("opname failed: %d (body: %s)", opnameRec.Code, opnameRec.Body.String())
	}

	payload, _ := json.Marshal(domain.SaleRequest{
		CartItems:     []domain.CartItem{{ProductID: 1, Qty: 2}},
		PaymentMethod: "cash",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+kasirToken)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for insufficient stock, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCreateSaleMalformedJSONReturns400(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "kasir", "kasir123")
	csrf := fetchCSRFToken(t, api)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestCreateProductForbiddenForCashier(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "kasir", "kasir123")
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(domain.ProductCreateRequest{
		Name:     "Es Teh",
		Category: "non-coffee",
		Price:    10000,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier product create, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSalesReportRolesAndFormats(t *testing.T) {
	api := newTestAPI(t)
	kasirToken := loginAs(t, api, "kasir", "kasir123")
	ownerToken := loginAs(t, api, "owner", "owner123")

	kasirReq := httptest.NewRequest(http.MethodGet, "/api/v1/reports/sales?period=daily", nil)
	kasirReq.Header.Set("Authorization", "Bearer "+kasirToken)
	kasirRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(kasirRec, kasirReq)
	if kasirRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier report, got %d", kasirRec.Code)
	}

	jsonReq := httptest.NewRequest(http.MethodGet, "/api/v1/reports/sales?period=daily", nil)
	jsonReq.Header.Set("Authorization", "Bearer "+ownerToken)
	jsonRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(jsonRec, jsonReq)
	if jsonRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner report, got %d (body: %s)", jsonRec.Code, jsonRec.Body.String())
	}
	var report domain.SalesReport
	if err := json.NewDecoder(jsonRec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.StartDate == "" {
		t.Fatalf("expected report window in response")
	}

	csvReq := httptest.NewRequest(http.MethodGet, "/api/v1/reports/sales?period=daily&format=csv", nil)
	csvReq.Header.Set("Authorization", "Bearer "+ownerToken)
	csvRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(csvRec, csvReq)
	if csvRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for csv report, got %d", csvRec.Code)
	}
	if ct := csvRec.Header().Get("Content-Type"); !strings.Contains(ct, "text/csv") {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	if !strings.Contains(csvRec.Body.String(), "summary,transactions") {
		t.Fatalf("unexpected csv body:\n%s", csvRec.Body.String())
	}
}

func TestCreateCashierAndLogin(t *testing.T) {
	api := newTestAPI(t)
	ownerToken := loginAs(t, api, "owner", "owner123")
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(map[string]string{
		"username": "kasirbaru",
		"password": "rahasia1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/cashiers", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	if token := loginAs(t, api, "kasirbaru", "rahasia1"); token == "" {
		t.Fatalf("expected new cashier to log in")
	}
}

func TestTransactionLookupAndReceipt(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "kasir", "kasir123")
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(domain.SaleRequest{
		CartItems:     []domain.CartItem{{ProductID: 3, Qty: 1}},
		PaymentMethod: "qris",
	})
	saleReq := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(payload))
	saleReq.Header.Set("Content-Type", "application/json")
	saleReq.Header.Set("Authorization", "Bearer "+token)
	saleReq.Header.Set("X-CSRF-Token", csrf)
	saleRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(saleRec, saleReq)
	if saleRec.Code != http.StatusCreated {
		t.Fatalf("sale failed: %d (body: %s)", saleRec.Code, saleRec.Body.String())
	}
	var sale domain.SaleResponse
	if err := json.NewDecoder(saleRec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	lookupReq := httptest.NewRequest(http.MethodGet, "/api/v1/transactions?invoice_no="+sale.Transaction.InvoiceNo, nil)
	lookupReq.Header.Set("Authorization", "Bearer "+token)
	lookupRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(lookupRec, lookupReq)
	if lookupRec.Code != http.StatusOK {
		t.Fatalf("invoice lookup failed: %d", lookupRec.Code)
	}

	receiptReq := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/transactions/%d/receipt", sale.Transaction.ID), nil)
	receiptReq.Header.Set("Authorization", "Bearer "+token)
	receiptRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(receiptRec, receiptReq)
	if receiptRec.Code != http.StatusOK {
		t.Fatalf("receipt failed: %d (body: %s)", receiptRec.Code, receiptRec.Body.String())
	}
	var receiptResp domain.ReceiptResponse
	if err := json.NewDecoder(receiptRec.Body).Decode(&receiptResp); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if !strings.Contains(receiptResp.PreviewText, sale.Transaction.InvoiceNo) {
		t.Fatalf("receipt preview missing invoice:\n%s", receiptResp.PreviewText)
	}
}

func TestListUsersRequiresOwner(t *testing.T) {
	api := newTestAPI(t)
	kasirToken := loginAs(t, api, "kasir", "kasir123")
	ownerToken := loginAs(t, api, "owner", "owner123")

	kasirReq := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	kasirReq.Header.Set("Authorization", "Bearer "+kasirToken)
	kasirRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(kasirRec, kasirReq)
	if kasirRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier users list, got %d", kasirRec.Code)
	}

	ownerReq := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	ownerReq.Header.Set("Authorization", "Bearer "+ownerToken)
	ownerRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(ownerRec, ownerReq)
	if ownerRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner users list, got %d", ownerRec.Code)
	}
}
