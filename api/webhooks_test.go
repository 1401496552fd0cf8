package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MAGICGrants/campaign-site/service/flags"
)

func testHandler(t *testing.T) http.Handler {
	t.Helper()
	return New(nil).Handler()
}

func postBody(t *testing.T, handler http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func checkAck(t *testing.T, w *httptest.ResponseRecorder, wantCode int, wantSuccess bool) {
	t.Helper()
	if w.Code != wantCode {
		t.Errorf("status = %d, want %d", w.Code, wantCode)
	}
	var ack struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(w.Body).Decode(&ack); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if ack.Success != wantSuccess {
		t.Errorf("success = %v, want %v", ack.Success, wantSuccess)
	}
}

func TestBTCPayWebhookRejectsMissingSignature(t *testing.T) {
	w := postBody(t, testHandler(t), "/api/btcpay/webhook", `{}`, nil)
	checkAck(t, w, http.StatusBadRequest, false)
}

func TestBTCPayWebhookRejectsInvalidSignature(t *testing.T) {
	flags.BTCPayWebhookSecret.Update("whsec")

	body := `{"type":"InvoiceSettled","invoiceId":"inv1"}`
	mac := hmac.New(sha256.New, []byte("wrong-secret"))
	mac.Write([]byte(body))
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	w := postBody(t, testHandler(t), "/api/btcpay/webhook", body, map[string]string{"BTCPay-Sig": sig})
	checkAck(t, w, http.StatusUnauthorized, false)
}

func TestCoinbaseWebhookRejectsInvalidSignature(t *testing.T) {
	flags.CoinbaseWebhookSecret.Update("whsec")

	w := postBody(t, testHandler(t), "/api/coinbasecommerce/webhook",
		`{"event":{"type":"charge:confirmed"}}`,
		map[string]string{"X-CC-Webhook-Signature": "00112233"})
	checkAck(t, w, http.StatusUnauthorized, false)
}

func TestCoinbaseWebhookRejectsMissingSignature(t *testing.T) {
	w := postBody(t, testHandler(t), "/api/coinbasecommerce/webhook", `{}`, nil)
	checkAck(t, w, http.StatusBadRequest, false)
}

func TestStripeWebhookRejectsUnknownFund(t *testing.T) {
	w := postBody(t, testHandler(t), "/api/stripe/nonexistent-webhook", `{}`, nil)
	checkAck(t, w, http.StatusBadRequest, false)
}

func TestStripeWebhookRejectsInvalidSignature(t *testing.T) {
	flags.StripeWebhookSecrets.Update(map[string]string{"monero": "whsec_test"})

	w := postBody(t, testHandler(t), "/api/stripe/monero-webhook", `{}`,
		map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"})
	checkAck(t, w, http.StatusUnauthorized, false)
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/btcpay/webhook", nil)
	w := httptest.NewRecorder()
	testHandler(t).ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
	if allow := w.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("Allow = %q, want POST", allow)
	}
}
