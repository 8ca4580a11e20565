package pubsub

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"fpp-app-layer/internal/domain"

	"github.com/rs/zerolog"
)

// Subscription receives webhook events matching its filter until its context ends
type Subscription struct {
	ID     string
	Filter *Filter
	Events chan *domain.WebhookEvent
	Done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// Filter restricts a subscription to some topics and one shop.
// Empty fields match everything.
type Filter struct {
	Topics []string
	Shop   string
}

// WebhookPubSub fans processed webhook deliveries out to live subscribers,
// such as the webhookEvents GraphQL subscription.
type WebhookPubSub struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	logger        zerolog.Logger
	nextID        int64
	bufferSize    int
}

// NewWebhookPubSub creates a new webhook pub/sub system
func NewWebhookPubSub(logger zerolog.Logger) *WebhookPubSub {
	return &WebhookPubSub{
		subscriptions: make(map[string]*Subscription),
		logger:        logger,
		bufferSize:    10,
	}
}

// Subscribe creates a subscription that is removed when ctx is cancelled
func (ps *WebhookPubSub) Subscribe(ctx context.Context, filter *Filter) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)

	ps.mu.Lock()
	ps.nextID++
	sub := &Subscription{
		ID:     fmt.Sprintf("sub-%d", ps.nextID),
		Filter: normalizeFilter(filter),
		Events: make(chan *domain.WebhookEvent, ps.bufferSize),
		Done:   make(chan struct{}),
		ctx:    subCtx,
		cancel: cancel,
	}
	ps.subscriptions[sub.ID] = sub
	ps.mu.Unlock()

	ps.logger.Debug().
		Str("subscriptionId", sub.ID).
		Interface("filter", sub.Filter).
		Msg("Webhook event subscription created")

	go func() {
		<-subCtx.Done()
		ps.Unsubscribe(sub.ID)
	}()

	return sub
}

// Unsubscribe closes and removes a subscription
func (ps *WebhookPubSub) Unsubscribe(id string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub, ok := ps.subscriptions[id]
	if !ok {
		return
	}

	close(sub.Events)
	close(sub.Done)
	sub.cancel()
	delete(ps.subscriptions, id)

	ps.logger.Debug().Str("subscriptionId", id).Msg("Webhook event subscription removed")
}

// Publish delivers event to every matching subscriber without blocking.
// Subscribers whose buffer is full miss the event.
func (ps *WebhookPubSub) Publish(event *domain.WebhookEvent) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	delivered := 0
	for _, sub := range ps.subscriptions {
		if !sub.Filter.matches(event) {
			continue
		}
		select {
		case sub.Events <- event:
			delivered++
		default:
			ps.logger.Warn().
				Str("subscriptionId", sub.ID).
				Str("topic", event.Topic).
				Msg("Subscriber buffer full, dropping webhook event")
		}
	}

	if delivered > 0 {
		ps.logger.Debug().
			Str("topic", event.Topic).
			Str("shop", event.Shop).
			Int("subscribers", delivered).
			Msg("Published webhook event")
	}
}

// Count returns the number of live subscriptions
func (ps *WebhookPubSub) Count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscriptions)
}

func normalizeFilter(filter *Filter) *Filter {
	if filter == nil {
		return nil
	}
	topics := make([]string, 0, len(filter.Topics))
	for _, topic := range filter.Topics {
		topics = append(topics, domain.NormalizeTopic(topic))
	}
	return &Filter{Topics: topics, Shop: filter.Shop}
}

func (f *Filter) matches(event *domain.WebhookEvent) bool {
	if f == nil {
		return true
	}
	if len(f.Topics) > 0 && !slices.Contains(f.Topics, event.Topic) {
		return false
	}
	return f.Shop == "" || f.Shop == event.Shop
}
