package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"

	"fpp-app-layer/internal/config"
	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/infrastructure/fpp"
	"fpp-app-layer/internal/infrastructure/metrics"
	"fpp-app-layer/internal/ports"

	"github.com/rs/zerolog"
)

const (
	// maxWebhookBodyBytes caps the payload read from an inbound delivery
	maxWebhookBodyBytes = 5 << 20
	// unverifiedTopic labels deliveries rejected before their HMAC was checked
	unverifiedTopic = "unverified"
)

// WebhookRegistryEntry is the callback path and handler for one topic
type WebhookRegistryEntry struct {
	Path    string
	Handler ports.WebhookHandlerFunc
}

// RegisterOptions describes one subscription to create or update
type RegisterOptions struct {
	Topic          string
	Path           string
	AccessToken    string
	Shop           string
	DeliveryMethod domain.DeliveryMethod
}

// RegisterAllOptions describes the shop every registered topic is subscribed for
type RegisterAllOptions struct {
	AccessToken    string
	Shop           string
	DeliveryMethod domain.DeliveryMethod
}

// RegisterResult is the outcome of registering one topic
type RegisterResult struct {
	Success bool  `json:"success"`
	Result  any   `json:"result,omitempty"`
	Err     error `json:"-"`
}

// RegisterReturn maps normalized topics to their registration outcome
type RegisterReturn map[string]RegisterResult

// WebhookRegistry maps topics to handlers, keeps platform subscriptions in sync
// and verifies and dispatches inbound deliveries.
type WebhookRegistry struct {
	mu       sync.RWMutex
	entries  map[string]WebhookRegistryEntry
	cfg      *config.Config
	clients  ports.ClientProvider
	verifier *fpp.WebhookVerifier
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	events   ports.WebhookEventPublisher
	maxBody  int64
}

// NewWebhookRegistry creates an empty registry; m may be nil
func NewWebhookRegistry(cfg *config.Config, clients ports.ClientProvider, logger zerolog.Logger, m *metrics.Metrics) *WebhookRegistry {
	return &WebhookRegistry{
		entries:  make(map[string]WebhookRegistryEntry),
		cfg:      cfg,
		clients:  clients,
		verifier: fpp.NewWebhookVerifier(cfg.APISecretKey),
		logger:   logger,
		metrics:  m,
		maxBody:  maxWebhookBodyBytes,
	}
}

// SetPublisher forwards every successfully handled delivery to p
func (r *WebhookRegistry) SetPublisher(p ports.WebhookEventPublisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = p
}

// AddHandler registers entry for topic, replacing any previous entry
func (r *WebhookRegistry) AddHandler(topic string, entry WebhookRegistryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[domain.NormalizeTopic(topic)] = entry
}

// AddHandlers registers several topics at once
func (r *WebhookRegistry) AddHandlers(entries map[string]WebhookRegistryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic, entry := range entries {
		r.entries[domain.NormalizeTopic(topic)] = entry
	}
}

// RegisterHandler adds h for every topic it serves, delivered at path
func (r *WebhookRegistry) RegisterHandler(path string, h ports.WebhookHandler) {
	for _, topic := range h.Topics() {
		r.AddHandler(topic, WebhookRegistryEntry{Path: path, Handler: h.Handle})
	}
}

// GetHandler returns the entry registered for topic
func (r *WebhookRegistry) GetHandler(topic string) (WebhookRegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[domain.NormalizeTopic(topic)]
	return entry, ok
}

// Topics returns the registered topics in sorted order
func (r *WebhookRegistry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// IsWebhookPath reports whether any topic is delivered at path
func (r *WebhookRegistry) IsWebhookPath(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.entries {
		if entry.Path == path {
			return true
		}
	}
	return false
}

func (r *WebhookRegistry) validateDeliveryMethod(method domain.DeliveryMethod) error {
	switch method {
	case domain.DeliveryMethodHTTP:
		return nil
	case domain.DeliveryMethodEventBridge, domain.DeliveryMethodPubSub:
		if domain.VersionCompatible(domain.January22, r.cfg.APIVersion) {
			return nil
		}
		return domain.NewError(domain.KindUnsupportedClientType,
			"Webhook delivery method %s requires API version %s or newer, configured %s",
			method, domain.January22, r.cfg.APIVersion)
	default:
		return domain.NewError(domain.KindUnsupportedClientType, "Unknown webhook delivery method %q", method)
	}
}

// Register makes sure the platform delivers opts.Topic to the desired address.
// An existing subscription that already points at the address is left untouched.
func (r *WebhookRegistry) Register(ctx context.Context, opts RegisterOptions) (RegisterReturn, error) {
	topic := domain.NormalizeTopic(opts.Topic)
	method := opts.DeliveryMethod
	if method == "" {
		method = domain.DeliveryMethodHTTP
	}

	if err := r.validateDeliveryMethod(method); err != nil {
		return nil, err
	}

	client, err := r.clients.GetGraphQLClient(opts.Shop, opts.AccessToken)
	if err != nil {
		return nil, err
	}

	address := opts.Path
	if method == domain.DeliveryMethodHTTP {
		address = "https://" + r.cfg.HostName + opts.Path
	}

	checkResp, err := client.Query(ctx, buildCheckQuery(topic, r.cfg.APIVersion), nil)
	if err != nil {
		return nil, err
	}

	var check webhookCheckResponse
	if err := checkResp.Decode(&check); err != nil {
		return nil, domain.WrapError(domain.KindHttpRequest, err, "Invalid webhook subscription response for %s", topic)
	}

	existingID, existingAddress := check.existing()
	if existingID != "" && existingAddress == address {
		r.logger.Debug().
			Str("shop", opts.Shop).
			Str("topic", topic).
			Str("address", address).
			Msg("Webhook subscription already up to date")
		r.metrics.WebhookRegistration(topic, true)
		return RegisterReturn{topic: {Success: true, Result: checkResp.Body}}, nil
	}

	name, document, err := buildMutation(topic, address, method, existingID)
	if err != nil {
		return nil, err
	}

	resp, err := client.Query(ctx, document, nil)
	if err != nil {
		return nil, err
	}

	success := r.mutationSucceeded(resp, name, opts.Shop, topic)
	r.metrics.WebhookRegistration(topic, success)

	r.logger.Info().
		Str("shop", opts.Shop).
		Str("topic", topic).
		Str("mutation", name).
		Bool("success", success).
		Msg("Registered webhook subscription")

	return RegisterReturn{topic: {Success: success, Result: resp.Body}}, nil
}

func (r *WebhookRegistry) mutationSucceeded(resp *domain.Response, name, shop, topic string) bool {
	var payload webhookMutationResponse
	if err := resp.Decode(&payload); err != nil {
		return false
	}

	result := payload.Data[name]
	if result == nil {
		return false
	}
	for _, userErr := range result.UserErrors {
		r.logger.Warn().
			Str("shop", shop).
			Str("topic", topic).
			Strs("field", userErr.Field).
			Str("message", userErr.Message).
			Msg("Webhook subscription user error")
	}
	return result.WebhookSubscription != nil
}

// RegisterAll registers every topic in the registry; one failing topic does not stop the others
func (r *WebhookRegistry) RegisterAll(ctx context.Context, opts RegisterAllOptions) (RegisterReturn, error) {
	results := make(RegisterReturn)
	var errs []error

	for _, topic := range r.Topics() {
		entry, ok := r.GetHandler(topic)
		if !ok {
			continue
		}

		res, err := r.Register(ctx, RegisterOptions{
			Topic:          topic,
			Path:           entry.Path,
			AccessToken:    opts.AccessToken,
			Shop:           opts.Shop,
			DeliveryMethod: opts.DeliveryMethod,
		})
		if err != nil {
			r.metrics.WebhookRegistration(topic, false)
			r.logger.Error().Err(err).Str("shop", opts.Shop).Str("topic", topic).Msg("Failed to register webhook")
			results[topic] = RegisterResult{Success: false, Err: err}
			errs = append(errs, fmt.Errorf("%s: %w", topic, err))
			continue
		}
		maps.Copy(results, res)
	}

	return results, errors.Join(errs...)
}

// Process verifies an inbound delivery and runs its handler.
// A response is always written before any error is returned.
func (r *WebhookRegistry) Process(w http.ResponseWriter, req *http.Request) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, r.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return r.reject(w, unverifiedTopic, http.StatusBadRequest, domain.WrapError(domain.KindInvalidWebhook, err,
				"Webhook body exceeds %d bytes", tooLarge.Limit))
		}
		return r.reject(w, unverifiedTopic, http.StatusBadRequest,
			domain.WrapError(domain.KindInvalidWebhook, err, "Failed to read webhook body"))
	}
	if len(body) == 0 {
		return r.reject(w, unverifiedTopic, http.StatusBadRequest,
			domain.NewError(domain.KindInvalidWebhook, "No body was received when processing webhook"))
	}

	hmacHeader := req.Header.Get(domain.HeaderHmac)
	topic := req.Header.Get(domain.HeaderTopic)
	shop := req.Header.Get(domain.HeaderShopDomain)

	var missing []string
	if hmacHeader == "" {
		missing = append(missing, domain.HeaderHmac)
	}
	if topic == "" {
		missing = append(missing, domain.HeaderTopic)
	}
	if shop == "" {
		missing = append(missing, domain.HeaderShopDomain)
	}
	if len(missing) > 0 {
		return r.reject(w, unverifiedTopic, http.StatusBadRequest, domain.NewError(domain.KindInvalidWebhook,
			"Missing one or more of the required HTTP headers to process webhooks: [%s]", strings.Join(missing, ", ")))
	}

	// headers are attacker controlled until the signature checks out
	if err := r.verifier.Verify(body, hmacHeader); err != nil {
		return r.reject(w, unverifiedTopic, http.StatusForbidden,
			domain.WrapError(domain.KindInvalidWebhook, err, "Could not validate request for topic %s", topic))
	}

	normalized := domain.NormalizeTopic(topic)
	entry, ok := r.GetHandler(normalized)
	if !ok {
		return r.reject(w, normalized, http.StatusForbidden,
			domain.NewError(domain.KindInvalidWebhook, "No webhook is registered for topic %s", topic))
	}

	if err := entry.Handler(req.Context(), normalized, shop, body); err != nil {
		r.metrics.WebhookDelivery(normalized, http.StatusInternalServerError)
		r.logger.Error().Err(err).Str("shop", shop).Str("topic", normalized).Msg("Webhook handler failed")
		http.Error(w, "Failed to process webhook", http.StatusInternalServerError)
		return err
	}

	r.metrics.WebhookDelivery(normalized, http.StatusOK)
	r.logger.Info().Str("shop", shop).Str("topic", normalized).Msg("Processed webhook")

	r.mu.RLock()
	events := r.events
	r.mu.RUnlock()
	if events != nil {
		events.Publish(&domain.WebhookEvent{Topic: normalized, Shop: shop, Payload: body})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"received": "true"})
	return nil
}

func (r *WebhookRegistry) reject(w http.ResponseWriter, topic string, status int, err error) error {
	r.metrics.WebhookDelivery(topic, status)
	r.logger.Warn().Err(err).Str("topic", topic).Int("status", status).Msg("Rejected webhook")
	http.Error(w, err.Error(), status)
	return err
}
