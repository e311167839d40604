package models

import (
	"time"

	"github.com/google/uuid"
)

// Domain is created only after a successful registrar call.
type Domain struct {
	ID                uuid.UUID `json:"id"`
	CustomerID        uuid.UUID `json:"customer_id"`
	Name              string    `json:"name"`
	RegistrarOrderID  string    `json:"registrar_order_id"`
	RegistrarDomainID string    `json:"registrar_domain_id"`
	Nameservers       []string  `json:"nameservers"`
	RegisteredAt      time.Time `json:"registered_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	AutoRenew         bool      `json:"auto_renew"`
	PrivacyEnabled    bool      `json:"privacy_enabled"`
	TransferLock      bool      `json:"transfer_lock"`
	CreatedAt         time.Time `json:"created_at"`
}

type HostingAccountStatus string

const (
	HostingStatusProvisioning HostingAccountStatus = "provisioning"
	HostingStatusActive       HostingAccountStatus = "active"
	HostingStatusSuspended    HostingAccountStatus = "suspended"
)

type HostingAccount struct {
	ID                uuid.UUID            `json:"id"`
	CustomerID        uuid.UUID            `json:"customer_id"`
	PlanID            string               `json:"plan_id"`
	Domain            string               `json:"domain"`
	ProviderAccountID string               `json:"provider_account_id"`
	AdminUsername     string               `json:"admin_username"`
	// AdminPassword holds the vault-encrypted opaque string, never cleartext.
	AdminPassword string               `json:"-"`
	Status        HostingAccountStatus `json:"status"`
	CreatedAt     time.Time            `json:"created_at"`
	ProvisionedAt time.Time            `json:"provisioned_at"`
}
