package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GibsonWaheire/POS-salon/internal/domain"
	"github.com/GibsonWaheire/POS-salon/internal/service"
	"github.com/GibsonWaheire/POS-salon/internal/store/memory"
)

// newTestAPI builds a full API over the seeded in-memory store with a real
// AuthManager and Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil)
	auth := NewAuthManager("test-secret-key", time.Hour, svc)

	return New(svc, auth, "*", "paystack-test-secret")
}

func loginAs(t *testing.T, handler http.Handler, staffID, pin string) string {
	t.Helper()

	payload, _ := json.Marshal(domain.LoginRequest{StaffID: staffID, PIN: pin})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = fmt.Sprintf("198.51.100.%d:4000", len(staffID))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d (body: %s)", staffID, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("login response missing access token")
	}
	return resp.AccessToken
}

func authedRequest(method, path, token string, body any) *http.Request {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

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

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	handler := newTestAPI(t).Handler()

	payload, _ := json.Marshal(domain.LoginRequest{StaffID: "staff-manager", PIN: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	handler := newTestAPI(t).Handler()

	payload, _ := json.Marshal(domain.LoginRequest{StaffID: "staff-manager", PIN: "wrong"})
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

func TestHandleLogin_DemoSessionIsShortLived(t *testing.T) {
	handler := newTestAPI(t).Handler()

	payload, _ := json.Marshal(domain.LoginRequest{StaffID: "staff-demo", PIN: "9999*"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if !resp.Demo {
		t.Error("expected demo:true")
	}
	if resp.DemoExpiresAt == nil {
		t.Fatal("expected demo_expires_at")
	}
	if until := time.Until(*resp.DemoExpiresAt); until > demoSessionTTL+time.Minute {
		t.Errorf("demo session too long: %s", until)
	}
}

func TestSales_RequireAuth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sales", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSaleLifecycle(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "staff-stylist", "1357!")

	// Create: one Haircut at 500 KES with 40% commission rate.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sales", token, domain.SaleCreateRequest{
		StaffID:  "staff-stylist",
		Services: []domain.SaleServiceInput{{ServiceID: "svc-cut", Quantity: 1}},
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.SaleCreateResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Sale.TotalAmount != 500 || created.Sale.Subtotal != 431.03 || created.Sale.TaxAmount != 68.97 {
		t.Errorf("sale totals = %v/%v/%v", created.Sale.TotalAmount, created.Sale.Subtotal, created.Sale.TaxAmount)
	}
	if created.Sale.CommissionAmount != 172.41 {
		t.Errorf("commission = %v, want 172.41", created.Sale.CommissionAmount)
	}

	// Complete with cash.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sales/"+created.Sale.ID+"/complete", token,
		domain.SaleCompleteRequest{PaymentMethod: "cash"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("complete sale: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var completed domain.SaleCompleteResponse
	if err := json.NewDecoder(rec.Body).Decode(&completed); err != nil {
		t.Fatalf("decode complete response: %v", err)
	}
	if completed.Sale.Status != domain.SaleStatusCompleted {
		t.Errorf("status = %q", completed.Sale.Status)
	}
	if completed.Payment.ReceiptNumber == "" {
		t.Error("payment receipt number missing")
	}

	// Completing twice conflicts.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sales/"+created.Sale.ID+"/complete", token,
		domain.SaleCompleteRequest{PaymentMethod: "cash"}))
	if rec.Code != http.StatusConflict {
		t.Fatalf("second completion: expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Receipt data returns the finalized amounts.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/sales/"+created.Sale.ID+"/receipt-data", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("receipt data: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var receipt service.ReceiptData
	if err := json.NewDecoder(rec.Body).Decode(&receipt); err != nil {
		t.Fatalf("decode receipt data: %v", err)
	}
	if receipt.Total != 500 || receipt.VATAmount != 68.97 {
		t.Errorf("receipt = %+v", receipt)
	}
}

func TestSaleComplete_InsufficientStockConflicts(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "staff-stylist", "1357!")

	// Relaxer Kit has 8 in stock; ask for 9.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sales", token, domain.SaleCreateRequest{
		StaffID:  "staff-stylist",
		Products: []domain.SaleProductInput{{ProductID: "prod-relaxer", Quantity: 9}},
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.SaleCreateResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sales/"+created.Sale.ID+"/complete", token,
		domain.SaleCompleteRequest{PaymentMethod: "cash"}))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestProducts_MutationNeedsManagerRole(t *testing.T) {
	handler := newTestAPI(t).Handler()
	stylist := loginAs(t, handler, "staff-stylist", "1357!")
	manager := loginAs(t, handler, "staff-manager", "2468#")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/products", stylist, domain.ProductCreateRequest{
		Name: "Edge Control", SellingPrice: 350, StockQuantity: 10,
	}))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stylist create: expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/products", manager, domain.ProductCreateRequest{
		Name: "Edge Control", SellingPrice: 350, StockQuantity: 10,
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("manager create: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestReports_RequireManagerRole(t *testing.T) {
	handler := newTestAPI(t).Handler()
	stylist := loginAs(t, handler, "staff-stylist", "1357!")
	manager := loginAs(t, handler, "staff-manager", "2468#")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/reports/daily", stylist, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stylist: expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/reports/daily", manager, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("manager: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCommissionPayFlow(t *testing.T) {
	handler := newTestAPI(t).Handler()
	stylist := loginAs(t, handler, "staff-stylist", "1357!")
	manager := loginAs(t, handler, "staff-manager", "2468#")

	// Earn a commission first.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sales", stylist, domain.SaleCreateRequest{
		StaffID:  "staff-stylist",
		Services: []domain.SaleServiceInput{{ServiceID: "svc-braiding", Quantity: 1}},
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.SaleCreateResponse
	_ = json.NewDecoder(rec.Body).Decode(&created)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sales/"+created.Sale.ID+"/complete", stylist,
		domain.SaleCompleteRequest{PaymentMethod: "cash"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("complete sale: %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/commissions/pending", manager, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("pending: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var pending domain.PendingCommissionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&pending); err != nil {
		t.Fatalf("decode pending: %v", err)
	}
	if len(pending.PendingCommissions) != 1 || pending.PendingCommissions[0].StaffID != "staff-stylist" {
		t.Fatalf("pending = %+v", pending)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/commissions/pay", manager,
		domain.CommissionPaymentRequest{StaffID: "staff-stylist"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("pay: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var payResp struct {
		Payment domain.CommissionPayment `json:"payment"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payResp); err != nil {
		t.Fatalf("decode pay response: %v", err)
	}
	if payResp.Payment.ReceiptNumber == "" || len(payResp.Payment.Items) == 0 {
		t.Fatalf("payment = %+v", payResp.Payment)
	}

	// Payslip data for the recorded disbursement.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet,
		"/api/v1/commissions/payments/"+payResp.Payment.ID+"/payslip-data", manager, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("payslip: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var payslip service.PayslipData
	if err := json.NewDecoder(rec.Body).Decode(&payslip); err != nil {
		t.Fatalf("decode payslip: %v", err)
	}
	if payslip.StaffName != "Grace Achieng" {
		t.Errorf("payslip staff = %q", payslip.StaffName)
	}
}

func TestStaffEndpoints_ManagerOnly(t *testing.T) {
	handler := newTestAPI(t).Handler()
	stylist := loginAs(t, handler, "staff-stylist", "1357!")
	manager := loginAs(t, handler, "staff-manager", "2468#")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/staff", stylist, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stylist list staff: expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/staff", manager, domain.StaffCreateRequest{
		Name: "New Stylist", Role: "stylist", PIN: "4455!",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("manager create staff: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Weak PIN is rejected with a validation error.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/staff", manager, domain.StaffCreateRequest{
		Name: "Bad PIN", Role: "stylist", PIN: "12345",
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("weak pin: expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "staff-stylist", "1357!")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales",
		bytes.NewReader([]byte(`{"staff_id":"staff-stylist","bogus_field":true}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}
