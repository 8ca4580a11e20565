package fpp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"fpp-app-layer/internal/domain"
)

// WebhookVerifier checks the HMAC signature of inbound webhook deliveries
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier creates a verifier for the app secret
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Sign returns the base64 HMAC-SHA256 of payload
func (v *WebhookVerifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify compares the payload signature with hmacHeader in constant time
func (v *WebhookVerifier) Verify(payload []byte, hmacHeader string) error {
	if hmacHeader == "" {
		return domain.NewError(domain.KindInvalidWebhook, "Missing webhook signature")
	}
	ok, err := SafeCompare(v.Sign(payload), hmacHeader)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewError(domain.KindInvalidWebhook, "Webhook signature does not match")
	}
	return nil
}
