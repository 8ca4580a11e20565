package domain

import "strings"

// Platform header names
const (
	HeaderHmac             = "X-Fpp-Hmac-Sha256"
	HeaderTopic            = "X-Fpp-Topic"
	HeaderShopDomain       = "X-Fpp-Shop-Domain"
	HeaderAccessToken      = "X-Fpp-Access-Token"
	HeaderDeprecatedReason = "X-Fpp-API-Deprecated-Reason"
	HeaderRequestID        = "X-Request-Id"
	HeaderRetryAfter       = "Retry-After"
	HeaderReauthorize      = "X-Fpp-API-Request-Failure-Reauthorize"
	HeaderReauthorizeURL   = "X-Fpp-API-Request-Failure-Reauthorize-Url"
	HeaderAuthorization    = "Authorization"
	HeaderUserAgent        = "User-Agent"
	HeaderContentType      = "Content-Type"
)

// DeliveryMethod is the transport a webhook subscription delivers through
type DeliveryMethod string

const (
	DeliveryMethodHTTP        DeliveryMethod = "http"
	DeliveryMethodEventBridge DeliveryMethod = "eventbridge"
	DeliveryMethodPubSub      DeliveryMethod = "pubsub"
)

// NormalizeTopic converts "products/create" style topics to "PRODUCTS_CREATE"
func NormalizeTopic(topic string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(topic)), "/", "_")
}

// WebhookEvent is a verified inbound webhook delivery
type WebhookEvent struct {
	Topic   string `json:"topic" bson:"topic"`
	Shop    string `json:"shop" bson:"shop"`
	Payload []byte `json:"payload" bson:"payload"`
}
