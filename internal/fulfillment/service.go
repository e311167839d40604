// Package fulfillment turns paid orders into registrar, hosting, and
// certificate side effects, tracking partial success per item.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hostweaveapp/hostweave/internal/certs"
	"github.com/hostweaveapp/hostweave/internal/crypto"
	"github.com/hostweaveapp/hostweave/internal/db"
	"github.com/hostweaveapp/hostweave/internal/email"
	"github.com/hostweaveapp/hostweave/internal/hosting"
	"github.com/hostweaveapp/hostweave/internal/logging"
	"github.com/hostweaveapp/hostweave/internal/models"
	"github.com/hostweaveapp/hostweave/internal/observability"
	"github.com/hostweaveapp/hostweave/internal/plans"
	"github.com/hostweaveapp/hostweave/internal/registrar"
)

type registrarAPI interface {
	RegisterDomain(ctx context.Context, spec registrar.RegistrationSpec) (*registrar.RegistrationResult, error)
	TransferDomain(ctx context.Context, spec registrar.TransferSpec) (*registrar.TransferResult, error)
	SetPrivacy(ctx context.Context, domain string, enabled bool) error
	OrderCertificate(ctx context.Context, domain, csrPEM, dcvEmail string) (*registrar.CertificateOrder, error)
}

type csrGenerator interface {
	Generate(subject certs.Subject) (*certs.Result, error)
}

type planCatalog interface {
	Get(id string) (plans.Plan, bool)
}

type Service struct {
	store       Store
	registrar   registrarAPI
	hosting     hosting.Provisioner
	certs       csrGenerator
	plans       planCatalog
	vault       crypto.Encryptor
	emails      email.Provider
	renderer    *email.Renderer
	nameservers []string
	sleep       func(context.Context, time.Duration) error
	logger      *slog.Logger
}

func NewService(
	store Store,
	registrarClient registrarAPI,
	provisioner hosting.Provisioner,
	csrGen csrGenerator,
	catalog planCatalog,
	vault crypto.Encryptor,
	emails email.Provider,
	renderer *email.Renderer,
	nameservers []string,
	logger *slog.Logger,
) *Service {
	if emails == nil {
		emails = email.NewNoopProvider()
	}
	return &Service{
		store:       store,
		registrar:   registrarClient,
		hosting:     provisioner,
		certs:       csrGen,
		plans:       catalog,
		vault:       vault,
		emails:      emails,
		renderer:    renderer,
		nameservers: nameservers,
		sleep:       sleepContext,
		logger:      logger,
	}
}

func (s *Service) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// HandlePaymentSuccess is the saga entry point for a confirmed payment. It is
// safe to deliver the same payment event more than once.
func (s *Service) HandlePaymentSuccess(ctx context.Context, orderID uuid.UUID, gatewayRef string) error {
	span := sentry.StartSpan(
		ctx,
		"fulfillment.payment_success",
		sentry.WithOpName("fulfillment"),
		sentry.WithDescription("HandlePaymentSuccess"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx).With("order_id", orderID)
	meter := observability.MeterFromContext(ctx)
	meter.Count("fulfillment.payment.received", 1)

	order, customer, err := s.store.GetForFulfillment(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	switch order.Status {
	case models.StatusCompleted, models.StatusRefunded:
		logger.Info("order already finalized, ignoring payment event", "status", order.Status)
		return nil
	}

	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.MarkOrderProcessing(ctx, order.ID, gatewayRef); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, &models.Payment{
			OrderID:     order.ID,
			AmountCents: order.TotalCents,
			Currency:    order.Currency,
			Status:      models.PaymentStatusCompleted,
			GatewayRef:  gatewayRef,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to start fulfillment for order %s: %w", orderID, err)
	}
	logger.Info("order payment recorded, fulfilling items", "items", len(order.Items))

	results := s.processItemsConcurrently(ctx, order, customer)
	return s.finalize(ctx, order, customer, results)
}

type itemOutcome struct {
	item models.OrderItem
	err  error
}

// processItemsConcurrently runs one goroutine per actionable item. A failure
// or panic in one item never disturbs its siblings.
func (s *Service) processItemsConcurrently(ctx context.Context, order *models.Order, customer *models.Customer) []itemOutcome {
	outcomes := make([]itemOutcome, len(order.Items))

	var g errgroup.Group
	for i := range order.Items {
		g.Go(func() error {
			item := order.Items[i]
			outcomes[i] = itemOutcome{item: item, err: s.processItem(ctx, order, customer, item)}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *Service) processItem(ctx context.Context, order *models.Order, customer *models.Customer, item models.OrderItem) (err error) {
	logger := s.loggerFromContext(ctx).With("order_id", order.ID, "item_id", item.ID, "item_type", item.Type)
	meter := observability.MeterFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("item handler panicked: %v", r)
		}
		if err == nil {
			return
		}
		logger.Error("order item failed", "error", err)
		meter.Count("fulfillment.item.failed", 1, sentry.WithAttributes(
			attribute.String("item_type", string(item.Type)),
		))
		if markErr := s.store.MarkItemFailed(ctx, item.ID, err.Error()); markErr != nil {
			logger.Error("failed to record item failure", "error", markErr)
		}
	}()

	if item.Status == models.ItemStatusCompleted {
		return nil
	}
	if err := s.store.MarkItemProcessing(ctx, item.ID); err != nil {
		return fmt.Errorf("cannot claim item: %w", err)
	}

	result, err := s.fulfillItem(ctx, order, customer, item)
	if err != nil {
		return err
	}

	if err := s.store.MarkItemCompleted(ctx, item.ID, result); err != nil {
		return fmt.Errorf("failed to record item completion: %w", err)
	}
	logger.Info("order item fulfilled", "external_ref", result.ExternalRef)
	meter.Count("fulfillment.item.completed", 1, sentry.WithAttributes(
		attribute.String("item_type", string(item.Type)),
	))
	return nil
}

func (s *Service) fulfillItem(ctx context.Context, order *models.Order, customer *models.Customer, item models.OrderItem) (db.ItemFulfillment, error) {
	switch item.Type {
	case models.ItemTypeDomainRegistration:
		return s.fulfillDomainRegistration(ctx, customer, item)
	case models.ItemTypeDomainTransfer:
		return s.fulfillDomainTransfer(ctx, customer, item)
	case models.ItemTypeHostingPlan:
		return s.fulfillHostingPlan(ctx, customer, item)
	case models.ItemTypeDomainPrivacy:
		return s.fulfillDomainPrivacy(ctx, customer, item)
	case models.ItemTypeSSLCertificate:
		return s.fulfillCertificate(ctx, order, customer, item)
	default:
		return db.ItemFulfillment{}, &ValidationError{Message: fmt.Sprintf("unknown item type %q", item.Type)}
	}
}

// finalize aggregates item outcomes into the order's terminal-for-now status,
// writes audit entries, and sends the confirmation email on full success.
func (s *Service) finalize(ctx context.Context, order *models.Order, customer *models.Customer, outcomes []itemOutcome) error {
	logger := s.loggerFromContext(ctx).With("order_id", order.ID)

	completed, failed := 0, 0
	for _, outcome := range outcomes {
		if outcome.err == nil {
			completed++
		} else {
			failed++
		}
	}

	var status models.OrderStatus
	switch {
	case failed == 0:
		status = models.StatusCompleted
	case completed == 0:
		status = models.StatusFailed
	default:
		status = models.StatusPartialFailure
	}

	err := s.store.WithinTx(ctx, func(tx Store) error {
		for _, outcome := range outcomes {
			if outcome.err == nil {
				continue
			}
			entry := &models.AuditLogEntry{
				OrderID: order.ID,
				Event:   "item_failed",
				Metadata: map[string]any{
					"item_id":   outcome.item.ID.String(),
					"item_type": string(outcome.item.Type),
					"error":     outcome.err.Error(),
					"retryable": IsRetryable(outcome.err),
				},
			}
			if err := tx.InsertAudit(ctx, entry); err != nil {
				return err
			}
		}

		if err := s.markOrderStatus(ctx, tx, order.ID, status); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, &models.AuditLogEntry{
			OrderID: order.ID,
			Event:   "fulfillment_finished",
			Metadata: map[string]any{
				"status":          string(status),
				"items_completed": completed,
				"items_failed":    failed,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to finalize order %s: %w", order.ID, err)
	}

	logger.Info("order fulfillment finished", "status", status, "completed", completed, "failed", failed)
	observability.MeterFromContext(ctx).Count("fulfillment.order.finished", 1, sentry.WithAttributes(
		attribute.String("status", string(status)),
	))

	if status == models.StatusCompleted {
		s.sendConfirmationAsync(ctx, order, customer)
	}
	return nil
}

func (s *Service) markOrderStatus(ctx context.Context, tx Store, orderID uuid.UUID, status models.OrderStatus) error {
	switch status {
	case models.StatusCompleted:
		return tx.MarkOrderCompleted(ctx, orderID)
	case models.StatusPartialFailure:
		return tx.MarkOrderPartialFailure(ctx, orderID)
	case models.StatusFailed:
		return tx.MarkOrderFailed(ctx, orderID)
	default:
		return fmt.Errorf("unexpected aggregate status %s", status)
	}
}

// RetryFailedItems reprocesses the failed items of an order one at a time,
// backing off exponentially on each item's burned retries.
func (s *Service) RetryFailedItems(ctx context.Context, orderID uuid.UUID) error {
	span := sentry.StartSpan(
		ctx,
		"fulfillment.retry_failed_items",
		sentry.WithOpName("fulfillment"),
		sentry.WithDescription("RetryFailedItems"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx).With("order_id", orderID)

	order, customer, err := s.store.GetForFulfillment(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	if order.Status != models.StatusPartialFailure && order.Status != models.StatusFailed {
		return fmt.Errorf("order %s is %s, nothing to retry", orderID, order.Status)
	}

	var retryable []models.OrderItem
	for _, item := range order.Items {
		if item.Status == models.ItemStatusFailed && item.RetryCount < models.MaxItemRetries {
			retryable = append(retryable, item)
		}
	}
	if len(retryable) == 0 {
		return fmt.Errorf("order %s has no retryable items", orderID)
	}

	if err := s.store.MarkOrderProcessing(ctx, order.ID, order.PaymentReference); err != nil {
		return fmt.Errorf("failed to reopen order %s: %w", orderID, err)
	}

	var aborted error
	for _, item := range retryable {
		if err := s.sleep(ctx, retryBackoff(item.RetryCount)); err != nil {
			logger.Warn("retry pass aborted during backoff", "item_id", item.ID, "error", err)
			aborted = err
			break
		}
		if err := s.processItem(ctx, order, customer, item); err != nil {
			logger.Warn("item retry failed", "item_id", item.ID, "error", err)
		}
	}

	// An aborted pass must still land the order back in a terminal state, or a
	// later retry would be rejected while the order sits in processing.
	finishCtx := ctx
	if aborted != nil {
		finishCtx = context.WithoutCancel(ctx)
	}

	// Reload to see the retried items' final states next to the untouched ones.
	order, customer, err = s.store.GetForFulfillment(finishCtx, orderID)
	if err != nil {
		return fmt.Errorf("failed to reload order %s: %w", orderID, err)
	}

	outcomes := make([]itemOutcome, 0, len(order.Items))
	for _, item := range order.Items {
		outcome := itemOutcome{item: item}
		if item.Status != models.ItemStatusCompleted {
			outcome.err = errors.New(item.ErrorMessage)
		}
		outcomes = append(outcomes, outcome)
	}
	if err := s.finalize(finishCtx, order, customer, outcomes); err != nil {
		return err
	}
	if aborted != nil {
		return fmt.Errorf("retry pass for order %s aborted: %w", orderID, aborted)
	}
	return nil
}

// retryBackoff doubles with every burned retry: 1s, 2s, 4s for counts 0, 1, 2.
// The provider that failed these items is probably still degraded, so later
// attempts wait longer.
func retryBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return time.Duration(1<<retryCount) * time.Second
}

// sleepContext waits for the duration unless ctx ends first, so an aborted
// retry request does not keep the worker parked in backoff.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HandlePaymentFailure records a declined payment. No provisioning happens.
func (s *Service) HandlePaymentFailure(ctx context.Context, orderID uuid.UUID, gatewayRef, failureCode string) error {
	logger := s.loggerFromContext(ctx).With("order_id", orderID)

	order, customer, err := s.store.GetForFulfillment(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.MarkOrderPaymentFailed(ctx, order.ID); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, &models.Payment{
			OrderID:     order.ID,
			AmountCents: order.TotalCents,
			Currency:    order.Currency,
			Status:      models.PaymentStatusFailed,
			GatewayRef:  gatewayRef,
			FailureCode: failureCode,
		}); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, &models.AuditLogEntry{
			OrderID:  order.ID,
			Event:    "payment_failed",
			Metadata: map[string]any{"failure_code": failureCode},
		})
	})
	if errors.Is(err, db.ErrInvalidStatusTransition) {
		// A stale failure event for an order that already moved on. Returning
		// an error here would make the gateway redeliver it forever.
		logger.Info("ignoring late payment failure event", "status", order.Status, "failure_code", failureCode)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record payment failure for order %s: %w", orderID, err)
	}

	logger.Info("payment failure recorded", "failure_code", failureCode)
	s.sendNotificationAsync(ctx, "payment_failed", order, customer)
	return nil
}

// HandlePaymentRefund marks the order refunded. Already-provisioned services
// stay up; tearing them down is an operator decision, not an automatic one.
func (s *Service) HandlePaymentRefund(ctx context.Context, orderID uuid.UUID, refundRef string) error {
	logger := s.loggerFromContext(ctx).With("order_id", orderID)

	err := s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.MarkOrderRefunded(ctx, orderID); err != nil {
			return err
		}
		if err := tx.MarkPaymentRefunded(ctx, orderID, refundRef); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, &models.AuditLogEntry{
			OrderID:  orderID,
			Event:    "order_refunded",
			Metadata: map[string]any{"refund_ref": refundRef},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to record refund for order %s: %w", orderID, err)
	}

	logger.Info("order refunded", "refund_ref", refundRef)
	return nil
}

func (s *Service) sendConfirmationAsync(ctx context.Context, order *models.Order, customer *models.Customer) {
	s.sendNotificationAsync(ctx, "order_confirmation", order, customer)
}

// sendNotificationAsync renders and sends in the background. A notification
// that cannot be delivered is logged and dropped.
func (s *Service) sendNotificationAsync(ctx context.Context, template string, order *models.Order, customer *models.Customer) {
	if s.renderer == nil {
		return
	}
	logger := s.loggerFromContext(ctx).With("order_id", order.ID, "template", template)

	info := email.OrderInfo{
		OrderNumber:  order.ID.String(),
		CustomerName: customer.FirstName,
		Total:        formatCents(order.TotalCents, order.Currency),
	}
	for _, item := range order.Items {
		info.Items = append(info.Items, email.LineItem{
			Description: itemDescription(item.Type),
			Detail:      item.DomainName(),
		})
	}

	sendCtx := context.WithoutCancel(ctx)
	go func() {
		msg, err := s.renderer.Render(template, customer.Email, info)
		if err != nil {
			logger.Warn("failed to render notification", "error", err)
			return
		}
		if err := s.emails.SendEmail(sendCtx, msg); err != nil {
			logger.Warn("failed to send notification", "error", err)
		}
	}()
}

func itemDescription(t models.ItemType) string {
	switch t {
	case models.ItemTypeDomainRegistration:
		return "Domain registration"
	case models.ItemTypeDomainTransfer:
		return "Domain transfer"
	case models.ItemTypeHostingPlan:
		return "Web hosting"
	case models.ItemTypeDomainPrivacy:
		return "Domain privacy"
	case models.ItemTypeSSLCertificate:
		return "SSL certificate"
	default:
		return string(t)
	}
}

func formatCents(cents int, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
}
