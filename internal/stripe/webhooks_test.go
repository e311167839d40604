package stripe

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84/webhook"
)

func TestReadWebhookEvent_MissingSignature(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewBufferString(`{}`))
	_, err := ReadWebhookEvent(req, "whsec_test")
	if err == nil {
		t.Fatal("expected error for missing signature")
	}
}

func TestReadWebhookEvent_Valid(t *testing.T) {
	t.Parallel()

	secret := "whsec_test_secret"
	payload := []byte(`{"id":"evt_test","object":"event","api_version":"2026-01-28.clover","type":"payment_intent.succeeded","data":{"object":{"id":"pi_test","object":"payment_intent","metadata":{"order_id":"3f0c8f5e-4f2a-4bb0-9b6c-0f0b4f0d9d10"}}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)

	event, err := ReadWebhookEvent(req, secret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event == nil || event.ID != "evt_test" {
		t.Fatalf("unexpected event: %+v", event)
	}

	orderID, gatewayRef, err := OrderReference(event)
	if err != nil {
		t.Fatalf("OrderReference: %v", err)
	}
	if orderID != "3f0c8f5e-4f2a-4bb0-9b6c-0f0b4f0d9d10" || gatewayRef != "pi_test" {
		t.Fatalf("unexpected reference %s / %s", orderID, gatewayRef)
	}
}

func TestOrderReference_MissingMetadata(t *testing.T) {
	t.Parallel()

	secret := "whsec_test_secret"
	payload := []byte(`{"id":"evt_bare","object":"event","api_version":"2026-01-28.clover","type":"payment_intent.succeeded","data":{"object":{"id":"pi_bare","object":"payment_intent"}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)

	event, err := ReadWebhookEvent(req, secret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := OrderReference(event); err == nil {
		t.Fatal("expected error when order_id metadata is absent")
	}
}
