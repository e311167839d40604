package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hostweaveapp/hostweave/internal/models"
)

type DomainStore struct {
	q Querier
}

func NewDomainStore(q Querier) *DomainStore {
	return &DomainStore{q: q}
}

func (s *DomainStore) Insert(ctx context.Context, domain *models.Domain) error {
	if domain.ID == uuid.Nil {
		domain.ID = uuid.New()
	}
	row := s.q.QueryRow(ctx, `
		INSERT INTO domains (
			id, customer_id, name, registrar_order_id, registrar_domain_id,
			nameservers, registered_at, expires_at, auto_renew,
			privacy_enabled, transfer_lock
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`,
		domain.ID, domain.CustomerID, domain.Name,
		textOrNull(domain.RegistrarOrderID), textOrNull(domain.RegistrarDomainID),
		domain.Nameservers, domain.RegisteredAt, domain.ExpiresAt,
		domain.AutoRenew, domain.PrivacyEnabled, domain.TransferLock,
	)
	return row.Scan(&domain.CreatedAt)
}

func (s *DomainStore) GetByName(ctx context.Context, customerID uuid.UUID, name string) (*models.Domain, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id, customer_id, name, registrar_order_id, registrar_domain_id,
		       nameservers, registered_at, expires_at, auto_renew,
		       privacy_enabled, transfer_lock, created_at
		FROM domains
		WHERE customer_id = $1 AND name = $2
	`, customerID, name)

	var (
		d                 models.Domain
		registrarOrderID  pgtype.Text
		registrarDomainID pgtype.Text
	)
	if err := row.Scan(
		&d.ID, &d.CustomerID, &d.Name, &registrarOrderID, &registrarDomainID,
		&d.Nameservers, &d.RegisteredAt, &d.ExpiresAt, &d.AutoRenew,
		&d.PrivacyEnabled, &d.TransferLock, &d.CreatedAt,
	); err != nil {
		return nil, wrapNoRows(err)
	}
	d.RegistrarOrderID = registrarOrderID.String
	d.RegistrarDomainID = registrarDomainID.String
	return &d, nil
}

func (s *DomainStore) SetPrivacy(ctx context.Context, domainID uuid.UUID, enabled bool) error {
	cmdTag, err := s.q.Exec(ctx,
		`UPDATE domains SET privacy_enabled = $1 WHERE id = $2`, enabled, domainID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type HostingStore struct {
	q Querier
}

func NewHostingStore(q Querier) *HostingStore {
	return &HostingStore{q: q}
}

func (s *HostingStore) Insert(ctx context.Context, account *models.HostingAccount) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	row := s.q.QueryRow(ctx, `
		INSERT INTO hosting_accounts (
			id, customer_id, plan_id, domain, provider_account_id,
			admin_username, admin_password, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`,
		account.ID, account.CustomerID, account.PlanID, account.Domain,
		textOrNull(account.ProviderAccountID), textOrNull(account.AdminUsername),
		textOrNull(account.AdminPassword), account.Status,
	)
	return row.Scan(&account.CreatedAt)
}

// MarkActive promotes a provisioning account once the panel confirms it,
// recording the panel id and the vault-encrypted admin password.
func (s *HostingStore) MarkActive(ctx context.Context, accountID uuid.UUID, providerAccountID, encryptedPassword string) error {
	query := `
		UPDATE hosting_accounts
		SET status = $1, provider_account_id = $2, admin_password = $3,
		    provisioned_at = NOW()
		WHERE id = $4 AND status = 'provisioning'
	`
	cmdTag, err := s.q.Exec(ctx, query,
		models.HostingStatusActive, providerAccountID, encryptedPassword, accountID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected provisioning", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *HostingStore) MarkSuspended(ctx context.Context, accountID uuid.UUID) error {
	query := `
		UPDATE hosting_accounts
		SET status = $1
		WHERE id = $2 AND status = 'active'
	`
	cmdTag, err := s.q.Exec(ctx, query, models.HostingStatusSuspended, accountID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected active", ErrInvalidStatusTransition)
	}
	return nil
}
