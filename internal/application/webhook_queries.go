package application

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"fpp-app-layer/internal/domain"
)

const pubSubScheme = "pubsub://"

// WebhookEndpoint is the delivery target of an existing subscription
type WebhookEndpoint interface {
	Address() string
}

// HTTPEndpoint delivers to an HTTPS callback
type HTTPEndpoint struct {
	CallbackURL string `json:"callbackUrl"`
}

func (e HTTPEndpoint) Address() string { return e.CallbackURL }

// EventBridgeEndpoint delivers to an Amazon EventBridge partner source
type EventBridgeEndpoint struct {
	ARN string `json:"arn"`
}

func (e EventBridgeEndpoint) Address() string { return e.ARN }

// PubSubEndpoint delivers to a Google Pub/Sub topic
type PubSubEndpoint struct {
	PubSubProject string `json:"pubSubProject"`
	PubSubTopic   string `json:"pubSubTopic"`
}

func (e PubSubEndpoint) Address() string {
	return fmt.Sprintf("%s%s:%s", pubSubScheme, e.PubSubProject, e.PubSubTopic)
}

// webhookSubscriptionNode decodes both the current endpoint union and the
// legacy callbackUrl shape returned by older API versions.
type webhookSubscriptionNode struct {
	ID       string
	Endpoint WebhookEndpoint
}

func (n *webhookSubscriptionNode) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string          `json:"id"`
		CallbackURL *string         `json:"callbackUrl"`
		Endpoint    json.RawMessage `json:"endpoint"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	n.ID = raw.ID
	switch {
	case len(raw.Endpoint) > 0 && string(raw.Endpoint) != "null":
		endpoint, err := decodeWebhookEndpoint(raw.Endpoint)
		if err != nil {
			return err
		}
		n.Endpoint = endpoint
	case raw.CallbackURL != nil:
		n.Endpoint = HTTPEndpoint{CallbackURL: *raw.CallbackURL}
	}
	return nil
}

func decodeWebhookEndpoint(data []byte) (WebhookEndpoint, error) {
	var tag struct {
		Typename string `json:"__typename"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}

	switch tag.Typename {
	case "WebhookHttpEndpoint":
		var endpoint HTTPEndpoint
		err := json.Unmarshal(data, &endpoint)
		return endpoint, err
	case "WebhookEventBridgeEndpoint":
		var endpoint EventBridgeEndpoint
		err := json.Unmarshal(data, &endpoint)
		return endpoint, err
	case "WebhookPubSubEndpoint":
		var endpoint PubSubEndpoint
		err := json.Unmarshal(data, &endpoint)
		return endpoint, err
	default:
		// an endpoint kind this layer does not know never matches a configured address
		return nil, nil
	}
}

type webhookCheckResponse struct {
	Data struct {
		WebhookSubscriptions struct {
			Edges []struct {
				Node webhookSubscriptionNode `json:"node"`
			} `json:"edges"`
		} `json:"webhookSubscriptions"`
	} `json:"data"`
}

// existing returns the id and address of the first subscription, if any
func (r webhookCheckResponse) existing() (string, string) {
	edges := r.Data.WebhookSubscriptions.Edges
	if len(edges) == 0 {
		return "", ""
	}
	node := edges[0].Node
	if node.Endpoint == nil {
		return node.ID, ""
	}
	return node.ID, node.Endpoint.Address()
}

type webhookMutationResult struct {
	UserErrors []struct {
		Field   []string `json:"field"`
		Message string   `json:"message"`
	} `json:"userErrors"`
	WebhookSubscription *struct {
		ID string `json:"id"`
	} `json:"webhookSubscription"`
}

type webhookMutationResponse struct {
	Data map[string]*webhookMutationResult `json:"data"`
}

func buildCheckQuery(topic string, version domain.APIVersion) string {
	if domain.VersionCompatible(domain.January22, version) {
		return fmt.Sprintf(`{
  webhookSubscriptions(first: 1, topics: %s) {
    edges {
      node {
        id
        endpoint {
          __typename
          ... on WebhookHttpEndpoint {
            callbackUrl
          }
          ... on WebhookEventBridgeEndpoint {
            arn
          }
          ... on WebhookPubSubEndpoint {
            pubSubProject
            pubSubTopic
          }
        }
      }
    }
  }
}`, topic)
	}

	return fmt.Sprintf(`{
  webhookSubscriptions(first: 1, topics: %s) {
    edges {
      node {
        id
        callbackUrl
      }
    }
  }
}`, topic)
}

func mutationName(method domain.DeliveryMethod, update bool) string {
	action := "Create"
	if update {
		action = "Update"
	}
	switch method {
	case domain.DeliveryMethodEventBridge:
		return "eventBridgeWebhookSubscription" + action
	case domain.DeliveryMethodPubSub:
		return "pubSubWebhookSubscription" + action
	default:
		return "webhookSubscription" + action
	}
}

func parsePubSubAddress(address string) (string, string, error) {
	project, topic, ok := strings.Cut(strings.TrimPrefix(address, pubSubScheme), ":")
	if !strings.HasPrefix(address, pubSubScheme) || !ok || project == "" || topic == "" {
		return "", "", domain.NewError(domain.KindMissingRequiredArgument,
			"Pub/Sub address %q must look like pubsub://project:topic", address)
	}
	return project, topic, nil
}

// buildMutation returns the mutation field name and document that creates or
// updates (when existingID is set) the subscription for topic.
func buildMutation(topic, address string, method domain.DeliveryMethod, existingID string) (string, string, error) {
	name := mutationName(method, existingID != "")

	identifier := "topic: " + topic
	if existingID != "" {
		identifier = "id: " + strconv.Quote(existingID)
	}

	var params string
	switch method {
	case domain.DeliveryMethodEventBridge:
		params = fmt.Sprintf("{arn: %s}", strconv.Quote(address))
	case domain.DeliveryMethodPubSub:
		project, pubSubTopic, err := parsePubSubAddress(address)
		if err != nil {
			return "", "", err
		}
		params = fmt.Sprintf("{pubSubProject: %s, pubSubTopic: %s}", strconv.Quote(project), strconv.Quote(pubSubTopic))
	default:
		params = fmt.Sprintf("{callbackUrl: %s}", strconv.Quote(address))
	}

	document := fmt.Sprintf(`mutation webhookSubscription {
  %s(%s, webhookSubscription: %s) {
    userErrors {
      field
      message
    }
    webhookSubscription {
      id
    }
  }
}`, name, identifier, params)

	return name, document, nil
}
