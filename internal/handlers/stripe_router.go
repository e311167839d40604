package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/hostweaveapp/hostweave/internal/logging"
	"github.com/hostweaveapp/hostweave/internal/observability"
	stripewebhook "github.com/hostweaveapp/hostweave/internal/stripe"
)

type fulfillmentService interface {
	HandlePaymentSuccess(ctx context.Context, orderID uuid.UUID, gatewayRef string) error
	HandlePaymentFailure(ctx context.Context, orderID uuid.UUID, gatewayRef, failureCode string) error
	HandlePaymentRefund(ctx context.Context, orderID uuid.UUID, refundRef string) error
	RetryFailedItems(ctx context.Context, orderID uuid.UUID) error
}

// StripeEventRouter maps payment events onto saga entry points.
type StripeEventRouter struct {
	service fulfillmentService
	logger  *slog.Logger
}

func NewStripeEventRouter(service fulfillmentService, logger *slog.Logger) *StripeEventRouter {
	return &StripeEventRouter{
		service: service,
		logger:  logger,
	}
}

func (r *StripeEventRouter) Handle(ctx context.Context, event *stripeapi.Event) error {
	span := sentry.StartSpan(
		ctx,
		"handler.stripe_router.handle",
		sentry.WithOpName("handler.stripe_router"),
		sentry.WithDescription("StripeEventRouter.Handle"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("webhook.provider", "stripe"))
	meter.Count("webhook.router.received", 1)
	recordFailed := func(reason string) {
		meter.Count("webhook.router.failed", 1, sentry.WithAttributes(attribute.String("reason", reason)))
	}

	if event == nil {
		recordFailed("missing_event")
		return fmt.Errorf("missing stripe event")
	}
	if event.Data == nil {
		recordFailed("missing_event_data")
		return fmt.Errorf("missing stripe event data")
	}
	meter.SetAttributes(attribute.String("webhook.event_type", string(event.Type)))

	logger := logging.FromContext(ctx, r.logger)

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "charge.refunded":
	default:
		logger.Info("unhandled Stripe event type", "type", event.Type)
		meter.Count("webhook.router.unhandled", 1)
		span.Status = sentry.SpanStatusOK
		return nil
	}

	orderRef, gatewayRef, err := stripewebhook.OrderReference(event)
	if err != nil {
		recordFailed("missing_order_reference")
		return err
	}
	orderID, err := uuid.Parse(orderRef)
	if err != nil {
		recordFailed("invalid_order_id")
		return fmt.Errorf("event %s carries malformed order id %q: %w", event.ID, orderRef, err)
	}

	switch event.Type {
	case "payment_intent.succeeded":
		err = r.service.HandlePaymentSuccess(ctx, orderID, gatewayRef)
	case "payment_intent.payment_failed":
		err = r.service.HandlePaymentFailure(ctx, orderID, gatewayRef, stripewebhook.FailureCode(event))
	case "charge.refunded":
		err = r.service.HandlePaymentRefund(ctx, orderID, gatewayRef)
	}
	if err != nil {
		recordFailed(string(event.Type) + "_failed")
		return err
	}

	meter.Count("webhook.router.processed", 1)
	span.Status = sentry.SpanStatusOK
	return nil
}
