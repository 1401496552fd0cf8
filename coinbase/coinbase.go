// Package coinbase handles webhook deliveries from Coinbase Commerce, the
// secondary crypto charge processor. Only the charge:confirmed event matters;
// checkout creation happens elsewhere.
package coinbase

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const EventChargeConfirmed = "charge:confirmed"

type WebhookEvent struct {
	ID           string `json:"id"`
	ScheduledFor string `json:"scheduled_for"`
	Event        struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			ID      string `json:"id"`
			Code    string `json:"code"`
			Pricing struct {
				Local      Money `json:"local"`
				Settlement Money `json:"settlement"`
			} `json:"pricing"`
			Metadata map[string]any `json:"metadata"`
		} `json:"data"`
	} `json:"event"`
}

type Money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// VerifySignature checks the X-CC-Webhook-Signature header, a bare hex
// HMAC-SHA256 digest of the raw request body.
func VerifySignature(body []byte, header string, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
