package fulfillment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hostweaveapp/hostweave/internal/db"
	"github.com/hostweaveapp/hostweave/internal/models"
)

// Store is the persistence surface the saga drives. The db-backed
// implementation lives below; tests swap in an in-memory one.
type Store interface {
	// WithinTx runs fn against a transaction-scoped Store and commits when
	// fn returns nil. Item fan-out runs outside of it: a pgx transaction is
	// not safe for concurrent use, and every per-item update is a single
	// guarded statement.
	WithinTx(ctx context.Context, fn func(tx Store) error) error

	GetForFulfillment(ctx context.Context, orderID uuid.UUID) (*models.Order, *models.Customer, error)
	MarkOrderProcessing(ctx context.Context, orderID uuid.UUID, paymentReference string) error
	MarkOrderCompleted(ctx context.Context, orderID uuid.UUID) error
	MarkOrderPartialFailure(ctx context.Context, orderID uuid.UUID) error
	MarkOrderFailed(ctx context.Context, orderID uuid.UUID) error
	MarkOrderPaymentFailed(ctx context.Context, orderID uuid.UUID) error
	MarkOrderRefunded(ctx context.Context, orderID uuid.UUID) error

	MarkItemProcessing(ctx context.Context, itemID uuid.UUID) error
	MarkItemCompleted(ctx context.Context, itemID uuid.UUID, result db.ItemFulfillment) error
	MarkItemFailed(ctx context.Context, itemID uuid.UUID, message string) error

	InsertPayment(ctx context.Context, payment *models.Payment) error
	MarkPaymentRefunded(ctx context.Context, orderID uuid.UUID, refundRef string) error
	InsertAudit(ctx context.Context, entry *models.AuditLogEntry) error

	FindOrCreateContact(ctx context.Context, customer *models.Customer) (*models.DomainContact, error)
	GetContact(ctx context.Context, customerID uuid.UUID) (*models.DomainContact, error)
	InsertDomain(ctx context.Context, domain *models.Domain) error
	GetDomainByName(ctx context.Context, customerID uuid.UUID, name string) (*models.Domain, error)
	SetDomainPrivacy(ctx context.Context, domainID uuid.UUID, enabled bool) error
	InsertHostingAccount(ctx context.Context, account *models.HostingAccount) error
	MarkHostingActive(ctx context.Context, accountID uuid.UUID, providerAccountID, encryptedPassword string) error
}

type dbStore struct {
	stores *db.Stores
	uow    *db.UnitOfWork
}

// NewStore wires the saga's Store over a pgx pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &dbStore{
		stores: db.NewStores(pool),
		uow:    db.NewUnitOfWork(pool),
	}
}

func (s *dbStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.uow == nil {
		// Already transaction-scoped.
		return fn(s)
	}
	return s.uow.WithinTx(ctx, func(ctx context.Context, stores *db.Stores) error {
		return fn(&dbStore{stores: stores})
	})
}

func (s *dbStore) GetForFulfillment(ctx context.Context, orderID uuid.UUID) (*models.Order, *models.Customer, error) {
	return s.stores.Orders.GetForFulfillment(ctx, orderID)
}

func (s *dbStore) MarkOrderProcessing(ctx context.Context, orderID uuid.UUID, paymentReference string) error {
	return s.stores.Orders.MarkProcessing(ctx, orderID, paymentReference)
}

func (s *dbStore) MarkOrderCompleted(ctx context.Context, orderID uuid.UUID) error {
	return s.stores.Orders.MarkCompleted(ctx, orderID)
}

func (s *dbStore) MarkOrderPartialFailure(ctx context.Context, orderID uuid.UUID) error {
	return s.stores.Orders.MarkPartialFailure(ctx, orderID)
}

func (s *dbStore) MarkOrderFailed(ctx context.Context, orderID uuid.UUID) error {
	return s.stores.Orders.MarkFailed(ctx, orderID)
}

func (s *dbStore) MarkOrderPaymentFailed(ctx context.Context, orderID uuid.UUID) error {
	return s.stores.Orders.MarkPaymentFailed(ctx, orderID)
}

func (s *dbStore) MarkOrderRefunded(ctx context.Context, orderID uuid.UUID) error {
	return s.stores.Orders.MarkRefunded(ctx, orderID)
}

func (s *dbStore) MarkItemProcessing(ctx context.Context, itemID uuid.UUID) error {
	return s.stores.Orders.MarkItemProcessing(ctx, itemID)
}

func (s *dbStore) MarkItemCompleted(ctx context.Context, itemID uuid.UUID, result db.ItemFulfillment) error {
	return s.stores.Orders.MarkItemCompleted(ctx, itemID, result)
}

func (s *dbStore) MarkItemFailed(ctx context.Context, itemID uuid.UUID, message string) error {
	return s.stores.Orders.MarkItemFailed(ctx, itemID, message)
}

func (s *dbStore) InsertPayment(ctx context.Context, payment *models.Payment) error {
	return s.stores.Payments.Insert(ctx, payment)
}

func (s *dbStore) MarkPaymentRefunded(ctx context.Context, orderID uuid.UUID, refundRef string) error {
	return s.stores.Payments.MarkRefunded(ctx, orderID, refundRef)
}

func (s *dbStore) InsertAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	return s.stores.Audit.Insert(ctx, entry)
}

func (s *dbStore) FindOrCreateContact(ctx context.Context, customer *models.Customer) (*models.DomainContact, error) {
	return s.stores.Contacts.FindOrCreateForCustomer(ctx, customer)
}

func (s *dbStore) GetContact(ctx context.Context, customerID uuid.UUID) (*models.DomainContact, error) {
	return s.stores.Contacts.GetByCustomer(ctx, customerID)
}

func (s *dbStore) InsertDomain(ctx context.Context, domain *models.Domain) error {
	return s.stores.Domains.Insert(ctx, domain)
}

func (s *dbStore) GetDomainByName(ctx context.Context, customerID uuid.UUID, name string) (*models.Domain, error) {
	return s.stores.Domains.GetByName(ctx, customerID, name)
}

func (s *dbStore) SetDomainPrivacy(ctx context.Context, domainID uuid.UUID, enabled bool) error {
	return s.stores.Domains.SetPrivacy(ctx, domainID, enabled)
}

func (s *dbStore) InsertHostingAccount(ctx context.Context, account *models.HostingAccount) error {
	return s.stores.Hosting.Insert(ctx, account)
}

func (s *dbStore) MarkHostingActive(ctx context.Context, accountID uuid.UUID, providerAccountID, encryptedPassword string) error {
	return s.stores.Hosting.MarkActive(ctx, accountID, providerAccountID, encryptedPassword)
}
