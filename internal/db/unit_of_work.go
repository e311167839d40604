package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Stores bundles every store over one Querier, so a transaction's stores all
// share that transaction.
type Stores struct {
	Orders    *OrderStore
	Customers *CustomerStore
	Contacts  *ContactStore
	Domains   *DomainStore
	Hosting   *HostingStore
	Payments  *PaymentStore
	Audit     *AuditStore
}

func NewStores(q Querier) *Stores {
	return &Stores{
		Orders:    NewOrderStore(q),
		Customers: NewCustomerStore(q),
		Contacts:  NewContactStore(q),
		Domains:   NewDomainStore(q),
		Hosting:   NewHostingStore(q),
		Payments:  NewPaymentStore(q),
		Audit:     NewAuditStore(q),
	}
}

// UnitOfWork runs callbacks inside a single database transaction.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// WithinTx begins a transaction, hands tx-scoped stores to fn, and commits
// when fn returns nil. Any error rolls the whole transaction back.
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, stores *Stores) error) error {
	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, NewStores(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
