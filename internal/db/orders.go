package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hostweaveapp/hostweave/internal/models"
)

type OrderStore struct {
	q Querier
}

func NewOrderStore(q Querier) *OrderStore {
	return &OrderStore{q: q}
}

const orderColumns = `
	id, customer_id, total_cents, currency, status, payment_status,
	payment_reference, created_at, paid_at, completed_at
`

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	row := s.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		return nil, wrapNoRows(err)
	}

	items, err := s.GetItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *OrderStore) GetItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, order_id, item_type, config, status, error_message, retry_count,
		       external_ref, domain_id, hosting_account_id, fulfilled_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var (
			item             models.OrderItem
			configJSON       []byte
			errorMessage     pgtype.Text
			externalRef      pgtype.Text
			domainID         pgtype.UUID
			hostingAccountID pgtype.UUID
			fulfilledAt      pgtype.Timestamptz
		)
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.Type, &configJSON, &item.Status,
			&errorMessage, &item.RetryCount, &externalRef, &domainID,
			&hostingAccountID, &fulfilledAt,
		); err != nil {
			return nil, err
		}
		if len(configJSON) > 0 {
			if err := json.Unmarshal(configJSON, &item.Config); err != nil {
				return nil, fmt.Errorf("failed to decode item config: %w", err)
			}
		}
		item.ErrorMessage = errorMessage.String
		item.ExternalRef = externalRef.String
		if domainID.Valid {
			item.DomainID = domainID.Bytes
		}
		if hostingAccountID.Valid {
			item.HostingAccountID = hostingAccountID.Bytes
		}
		item.FulfilledAt = fulfilledAt.Time
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetForFulfillment loads the order, its items, and the owning customer.
func (s *OrderStore) GetForFulfillment(ctx context.Context, orderID uuid.UUID) (*models.Order, *models.Customer, error) {
	order, err := s.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	customer, err := NewCustomerStore(s.q).GetByID(ctx, order.CustomerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load order customer: %w", err)
	}
	return order, customer, nil
}

// MarkProcessing moves the order into processing and records when payment
// first landed. Re-entry from processing and the retryable terminal states is
// allowed; completed and refunded orders are not.
func (s *OrderStore) MarkProcessing(ctx context.Context, orderID uuid.UUID, paymentReference string) error {
	query := `
		UPDATE orders
		SET status = $1, payment_status = 'completed', payment_reference = $2,
		    paid_at = COALESCE(paid_at, NOW())
		WHERE id = $3 AND status IN ('pending_payment', 'processing', 'partial_failure', 'failed')
	`
	cmdTag, err := s.q.Exec(ctx, query, models.StatusProcessing, paymentReference, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending_payment/processing/partial_failure/failed", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *OrderStore) MarkCompleted(ctx context.Context, orderID uuid.UUID) error {
	return s.finishOrder(ctx, orderID, models.StatusCompleted)
}

func (s *OrderStore) MarkPartialFailure(ctx context.Context, orderID uuid.UUID) error {
	return s.finishOrder(ctx, orderID, models.StatusPartialFailure)
}

func (s *OrderStore) MarkFailed(ctx context.Context, orderID uuid.UUID) error {
	return s.finishOrder(ctx, orderID, models.StatusFailed)
}

func (s *OrderStore) finishOrder(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1, completed_at = NOW()
		WHERE id = $2 AND status = 'processing'
	`
	cmdTag, err := s.q.Exec(ctx, query, status, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected processing", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkPaymentFailed records a declined payment on an order still awaiting one.
func (s *OrderStore) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) error {
	query := `
		UPDATE orders
		SET status = $1, payment_status = 'failed'
		WHERE id = $2 AND status = 'pending_payment'
	`
	cmdTag, err := s.q.Exec(ctx, query, models.StatusFailed, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending_payment", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkRefunded is terminal and reachable from any post-payment state.
func (s *OrderStore) MarkRefunded(ctx context.Context, orderID uuid.UUID) error {
	query := `
		UPDATE orders
		SET status = $1, payment_status = 'refunded'
		WHERE id = $2 AND status IN ('processing', 'completed', 'partial_failure', 'failed')
	`
	cmdTag, err := s.q.Exec(ctx, query, models.StatusRefunded, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected processing/completed/partial_failure/failed", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkItemProcessing claims a pending or previously failed item for work.
func (s *OrderStore) MarkItemProcessing(ctx context.Context, itemID uuid.UUID) error {
	query := `
		UPDATE order_items
		SET status = $1
		WHERE id = $2 AND status IN ('pending', 'failed') AND retry_count < $3
	`
	cmdTag, err := s.q.Exec(ctx, query, models.ItemStatusProcessing, itemID, models.MaxItemRetries)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending/failed with retries remaining", ErrInvalidStatusTransition)
	}
	return nil
}

// ItemFulfillment links a completed item to whatever rows its handler created.
type ItemFulfillment struct {
	ExternalRef      string
	DomainID         uuid.UUID
	HostingAccountID uuid.UUID
}

func (s *OrderStore) MarkItemCompleted(ctx context.Context, itemID uuid.UUID, result ItemFulfillment) error {
	query := `
		UPDATE order_items
		SET status = $1, error_message = NULL, external_ref = $2,
		    domain_id = $3, hosting_account_id = $4, fulfilled_at = NOW()
		WHERE id = $5 AND status = 'processing'
	`
	cmdTag, err := s.q.Exec(ctx, query,
		models.ItemStatusCompleted,
		textOrNull(result.ExternalRef),
		uuidOrNull(result.DomainID),
		uuidOrNull(result.HostingAccountID),
		itemID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected processing", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkItemFailed records the failure and burns one retry.
func (s *OrderStore) MarkItemFailed(ctx context.Context, itemID uuid.UUID, message string) error {
	query := `
		UPDATE order_items
		SET status = $1, error_message = $2, retry_count = retry_count + 1
		WHERE id = $3 AND status = 'processing'
	`
	cmdTag, err := s.q.Exec(ctx, query, models.ItemStatusFailed, message, itemID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected processing", ErrInvalidStatusTransition)
	}
	return nil
}

func scanOrder(row interface{ Scan(dest ...any) error }) (*models.Order, error) {
	var (
		order            models.Order
		paymentStatus    pgtype.Text
		paymentReference pgtype.Text
		paidAt           pgtype.Timestamptz
		completedAt      pgtype.Timestamptz
	)
	if err := row.Scan(
		&order.ID, &order.CustomerID, &order.TotalCents, &order.Currency,
		&order.Status, &paymentStatus, &paymentReference, &order.CreatedAt,
		&paidAt, &completedAt,
	); err != nil {
		return nil, err
	}
	order.PaymentStatus = paymentStatus.String
	order.PaymentReference = paymentReference.String
	order.PaidAt = paidAt.Time
	order.CompletedAt = completedAt.Time
	return &order, nil
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func uuidOrNull(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}
