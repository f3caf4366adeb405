package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func paystackSign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(handler http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("x-paystack-signature", signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPaystackWebhook_ChargeSuccessActivatesOnce(t *testing.T) {
	handler := newTestAPI(t).Handler()

	body := []byte(`{"event":"charge.success","data":{"reference":"PS-REF-100","customer":{"email":"owner@salon.co.ke"},"plan":{"name":"pro"}}}`)
	sig := paystackSign("paystack-test-secret", body)

	rec := postWebhook(handler, body, sig)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["handled"] != true || resp["created"] != true {
		t.Fatalf("first delivery = %v", resp)
	}

	// Gateway redelivery with the same reference must not create a second
	// subscription, and still gets a 200 acknowledgement.
	rec = postWebhook(handler, body, sig)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	resp = map[string]any{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode replay response: %v", err)
	}
	if resp["created"] != false {
		t.Fatalf("replay = %v", resp)
	}
}

func TestPaystackWebhook_RejectsBadSignature(t *testing.T) {
	handler := newTestAPI(t).Handler()
	body := []byte(`{"event":"charge.success","data":{"reference":"PS-REF-200"}}`)

	rec := postWebhook(handler, body, "deadbeef")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong signature: expected 401, got %d", rec.Code)
	}

	rec = postWebhook(handler, body, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature: expected 401, got %d", rec.Code)
	}

	// A valid signature over a different body does not transfer.
	otherSig := paystackSign("paystack-test-secret", []byte(`{}`))
	rec = postWebhook(handler, body, otherSig)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("transplanted signature: expected 401, got %d", rec.Code)
	}
}

func TestPaystackWebhook_IgnoresOtherEvents(t *testing.T) {
	handler := newTestAPI(t).Handler()

	body := []byte(`{"event":"transfer.success","data":{"reference":"PS-REF-300"}}`)
	rec := postWebhook(handler, body, paystackSign("paystack-test-secret", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["handled"] != false {
		t.Fatalf("response = %v", resp)
	}
}

func TestPaystackWebhook_MissingReference(t *testing.T) {
	handler := newTestAPI(t).Handler()

	body := []byte(`{"event":"charge.success","data":{"customer":{"email":"owner@salon.co.ke"}}}`)
	rec := postWebhook(handler, body, paystackSign("paystack-test-secret", body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
