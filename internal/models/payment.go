package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment is one row per payment attempt, immutable once written except for
// the refund fields.
type Payment struct {
	ID          uuid.UUID     `json:"id"`
	OrderID     uuid.UUID     `json:"order_id"`
	AmountCents int           `json:"amount_cents"`
	Currency    string        `json:"currency"`
	Status      PaymentStatus `json:"status"`
	GatewayRef  string        `json:"gateway_ref"`
	FailureCode string        `json:"failure_code"`
	RefundRef   string        `json:"refund_ref"`
	RefundedAt  time.Time     `json:"refunded_at"`
	CreatedAt   time.Time     `json:"created_at"`
}

// AuditLogEntry is an append-only record of saga-significant events.
type AuditLogEntry struct {
	ID        uuid.UUID      `json:"id"`
	OrderID   uuid.UUID      `json:"order_id"`
	Event     string         `json:"event"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}
