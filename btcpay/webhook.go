package btcpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Webhook event types delivered by BTCPay Server.
const (
	// EventInvoicePaymentSettled fires once per settled payment on an
	// invoice. Only the static funding-address flow uses it.
	EventInvoicePaymentSettled = "InvoicePaymentSettled"
	// EventInvoiceSettled fires once the whole invoice is fully paid,
	// possibly across several payment methods.
	EventInvoiceSettled = "InvoiceSettled"
)

// WebhookEvent is the raw delivery payload. Metadata stays untyped here:
// values can be JSON null and the emptiness of the object is meaningful for
// deciding whether the event originated from this platform at all.
type WebhookEvent struct {
	Type               string `json:"type"`
	InvoiceID          string `json:"invoiceId"`
	StoreID            string `json:"storeId"`
	DeliveryID         string `json:"deliveryId"`
	OriginalDeliveryID string `json:"originalDeliveryId"`
	IsRedelivery       bool   `json:"isRedelivery"`
	ManuallyMarked     bool   `json:"manuallyMarked"`
	Timestamp          int64  `json:"timestamp"`

	Metadata map[string]any `json:"metadata"`

	PaymentMethodID string `json:"paymentMethodId"`
	Payment         struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"payment"`
}

// PaymentCryptoCode extracts the bare currency from the payment method id,
// which may carry a variant suffix like "BTC-LightningNetwork".
func (ev *WebhookEvent) PaymentCryptoCode() string {
	if code, _, found := strings.Cut(ev.PaymentMethodID, "-"); found {
		return code
	}
	return ev.PaymentMethodID
}

// VerifySignature checks the BTCPay-Sig header against an HMAC-SHA256 of the
// raw request body. The header has the form "sha256=<hex digest>".
func VerifySignature(body []byte, header string, secret string) bool {
	_, claimed, found := strings.Cut(header, "=")
	if !found {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(claimed))
}
