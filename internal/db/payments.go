package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hostweaveapp/hostweave/internal/models"
)

type PaymentStore struct {
	q Querier
}

func NewPaymentStore(q Querier) *PaymentStore {
	return &PaymentStore{q: q}
}

func (s *PaymentStore) Insert(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	row := s.q.QueryRow(ctx, `
		INSERT INTO payments (
			id, order_id, amount_cents, currency, status, gateway_ref, failure_code
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`,
		payment.ID, payment.OrderID, payment.AmountCents, payment.Currency,
		payment.Status, textOrNull(payment.GatewayRef), textOrNull(payment.FailureCode),
	)
	return row.Scan(&payment.CreatedAt)
}

// MarkRefunded sets the refund fields on a completed payment. The row is
// otherwise immutable.
func (s *PaymentStore) MarkRefunded(ctx context.Context, orderID uuid.UUID, refundRef string) error {
	query := `
		UPDATE payments
		SET status = $1, refund_ref = $2, refunded_at = NOW()
		WHERE order_id = $3 AND status = 'completed'
	`
	cmdTag, err := s.q.Exec(ctx, query, models.PaymentStatusRefunded, refundRef, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected completed payment", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *PaymentStore) GetByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, order_id, amount_cents, currency, status, gateway_ref,
		       failure_code, refund_ref, refunded_at, created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var (
			p           models.Payment
			gatewayRef  pgtype.Text
			failureCode pgtype.Text
			refundRef   pgtype.Text
			refundedAt  pgtype.Timestamptz
		)
		if err := rows.Scan(
			&p.ID, &p.OrderID, &p.AmountCents, &p.Currency, &p.Status,
			&gatewayRef, &failureCode, &refundRef, &refundedAt, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		p.GatewayRef = gatewayRef.String
		p.FailureCode = failureCode.String
		p.RefundRef = refundRef.String
		p.RefundedAt = refundedAt.Time
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type AuditStore struct {
	q Querier
}

func NewAuditStore(q Querier) *AuditStore {
	return &AuditStore{q: q}
}

// Insert appends one audit entry. There are no update or delete paths.
func (s *AuditStore) Insert(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO audit_log (id, order_id, event, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, entry.ID, entry.OrderID, entry.Event, metadataJSON)
	return row.Scan(&entry.CreatedAt)
}

func (s *AuditStore) GetByOrder(ctx context.Context, orderID uuid.UUID) ([]models.AuditLogEntry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, order_id, event, metadata, created_at
		FROM audit_log
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditLogEntry
	for rows.Next() {
		var (
			entry        models.AuditLogEntry
			metadataJSON []byte
		)
		if err := rows.Scan(&entry.ID, &entry.OrderID, &entry.Event, &metadataJSON, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
