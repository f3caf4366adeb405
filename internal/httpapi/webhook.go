package httpapi

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
)

// paystackEvent is the slice of the gateway payload this system acts on.
// Unknown fields are ignored: the gateway adds fields without notice.
type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
		Plan struct {
			Name string `json:"name"`
		} `json:"plan"`
	} `json:"data"`
}

// handlePaystackWebhook verifies the HMAC-SHA512 signature over the raw body
// before anything is parsed. Signature failures are rejected; verified events
// are always acknowledged with 200 so the gateway stops retrying, whether or
// not the event type is one this system handles.
func (a *API) handlePaystackWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if a.paystackSecret == "" {
		writeError(w, http.StatusServiceUnavailable, errors.New("webhook not configured"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("unreadable body"))
		return
	}

	if !validPaystackSignature(a.paystackSecret, body, r.Header.Get("x-paystack-signature")) {
		writeError(w, http.StatusUnauthorized, errors.New("invalid signature"))
		return
	}

	var event paystackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("malformed event payload"))
		return
	}

	if event.Event != "charge.success" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "handled": false})
		return
	}

	reference := strings.TrimSpace(event.Data.Reference)
	if reference == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing payment reference"))
		return
	}
	accountID := strings.TrimSpace(event.Data.Customer.Email)
	if accountID == "" {
		accountID = reference
	}
	planName := strings.TrimSpace(event.Data.Plan.Name)
	if planName == "" {
		planName = "standard"
	}

	created, err := a.service.ActivateSubscription(r.Context(), accountID, planName, reference)
	if err != nil {
		log.Printf("[webhook] paystack activation failed reference=%s: %v", reference, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "handled": true, "created": created})
}

func validPaystackSignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
