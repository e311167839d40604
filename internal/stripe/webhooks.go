// Package stripe provides Stripe webhook validation.
package stripe

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	stripeapi "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

func ReadWebhookEvent(r *http.Request, secret string) (*stripeapi.Event, error) {
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		return nil, fmt.Errorf("missing stripe signature header")
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature validation failed: %w", err)
	}

	return &event, nil
}

// OrderReference extracts the order id our checkout flow stashes in the
// payment object's metadata.
func OrderReference(event *stripeapi.Event) (orderID, gatewayRef string, err error) {
	var object struct {
		ID       string            `json:"id"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return "", "", fmt.Errorf("failed to decode event object: %w", err)
	}

	orderID = object.Metadata["order_id"]
	if orderID == "" {
		return "", "", fmt.Errorf("event %s carries no order_id metadata", event.ID)
	}
	return orderID, object.ID, nil
}

// FailureCode pulls the decline code off a failed payment intent, if any.
func FailureCode(event *stripeapi.Event) string {
	var object struct {
		LastPaymentError *struct {
			Code string `json:"code"`
		} `json:"last_payment_error"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil || object.LastPaymentError == nil {
		return ""
	}
	return object.LastPaymentError.Code
}
