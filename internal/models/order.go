package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusProcessing     OrderStatus = "processing"
	StatusCompleted      OrderStatus = "completed"
	StatusPartialFailure OrderStatus = "partial_failure"
	StatusFailed         OrderStatus = "failed"
	StatusRefunded       OrderStatus = "refunded"
)

type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

type ItemType string

const (
	ItemTypeDomainRegistration ItemType = "domain_registration"
	ItemTypeDomainTransfer     ItemType = "domain_transfer"
	ItemTypeHostingPlan        ItemType = "hosting_plan"
	ItemTypeDomainPrivacy      ItemType = "domain_privacy"
	ItemTypeSSLCertificate     ItemType = "ssl_certificate"
)

// MaxItemRetries caps how often a failed order item may be reprocessed.
const MaxItemRetries = 3

type Order struct {
	ID               uuid.UUID   `json:"id"`
	CustomerID       uuid.UUID   `json:"customer_id"`
	TotalCents       int         `json:"total_cents"`
	Currency         string      `json:"currency"`
	Status           OrderStatus `json:"status"`
	PaymentStatus    string      `json:"payment_status"`
	PaymentReference string      `json:"payment_reference"`
	Items            []OrderItem `json:"items"`
	CreatedAt        time.Time   `json:"created_at"`
	PaidAt           time.Time   `json:"paid_at"`
	CompletedAt      time.Time   `json:"completed_at"`
}

type OrderItem struct {
	ID               uuid.UUID      `json:"id"`
	OrderID          uuid.UUID      `json:"order_id"`
	Type             ItemType       `json:"type"`
	Config           map[string]any `json:"config"`
	Status           ItemStatus     `json:"status"`
	ErrorMessage     string         `json:"error_message"`
	RetryCount       int            `json:"retry_count"`
	ExternalRef      string         `json:"external_ref"`
	DomainID         uuid.UUID      `json:"domain_id"`
	HostingAccountID uuid.UUID      `json:"hosting_account_id"`
	FulfilledAt      time.Time      `json:"fulfilled_at"`
}

// DomainName assembles the item's domain from its config map, e.g. "example" + "com".
func (i *OrderItem) DomainName() string {
	sld, _ := i.Config["sld"].(string)
	tld, _ := i.Config["tld"].(string)
	if sld == "" || tld == "" {
		return ""
	}
	return sld + "." + tld
}
