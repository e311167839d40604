package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hostweaveapp/hostweave/internal/models"
)

type CustomerStore struct {
	q Querier
}

func NewCustomerStore(q Querier) *CustomerStore {
	return &CustomerStore{q: q}
}

func (s *CustomerStore) GetByID(ctx context.Context, customerID uuid.UUID) (*models.Customer, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, company, phone,
		       address1, address2, city, state, postal_code, country, created_at
		FROM customers
		WHERE id = $1
	`, customerID)

	var (
		c        models.Customer
		company  pgtype.Text
		phone    pgtype.Text
		address2 pgtype.Text
	)
	if err := row.Scan(
		&c.ID, &c.Email, &c.FirstName, &c.LastName, &company, &phone,
		&c.Address1, &address2, &c.City, &c.State, &c.PostalCode, &c.Country,
		&c.CreatedAt,
	); err != nil {
		return nil, wrapNoRows(err)
	}
	c.Company = company.String
	c.Phone = phone.String
	c.Address2 = address2.String
	return &c, nil
}

type ContactStore struct {
	q Querier
}

func NewContactStore(q Querier) *ContactStore {
	return &ContactStore{q: q}
}

func (s *ContactStore) GetByCustomer(ctx context.Context, customerID uuid.UUID) (*models.DomainContact, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id, customer_id, registrar_ref, first_name, last_name, company,
		       email, phone, address1, address2, city, state, postal_code,
		       country, created_at
		FROM domain_contacts
		WHERE customer_id = $1
	`, customerID)

	var (
		c            models.DomainContact
		registrarRef pgtype.Text
		company      pgtype.Text
		address2     pgtype.Text
	)
	if err := row.Scan(
		&c.ID, &c.CustomerID, &registrarRef, &c.FirstName, &c.LastName,
		&company, &c.Email, &c.Phone, &c.Address1, &address2, &c.City,
		&c.State, &c.PostalCode, &c.Country, &c.CreatedAt,
	); err != nil {
		return nil, wrapNoRows(err)
	}
	c.RegistrarRef = registrarRef.String
	c.Company = company.String
	c.Address2 = address2.String
	return &c, nil
}

// FindOrCreateForCustomer returns the customer's registrar contact, deriving
// one from the customer profile on first use. Concurrent first uses for the
// same customer (an order with several domain items fans out in parallel) all
// resolve to the single row the unique customer_id index keeps.
func (s *ContactStore) FindOrCreateForCustomer(ctx context.Context, customer *models.Customer) (*models.DomainContact, error) {
	contact, err := s.GetByCustomer(ctx, customer.ID)
	if err == nil {
		return contact, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	contact = &models.DomainContact{
		ID:         uuid.New(),
		CustomerID: customer.ID,
		FirstName:  customer.FirstName,
		LastName:   customer.LastName,
		Company:    customer.Company,
		Email:      customer.Email,
		Phone:      customer.Phone,
		Address1:   customer.Address1,
		Address2:   customer.Address2,
		City:       customer.City,
		State:      customer.State,
		PostalCode: customer.PostalCode,
		Country:    customer.Country,
	}
	row := s.q.QueryRow(ctx, `
		INSERT INTO domain_contacts (
			id, customer_id, registrar_ref, first_name, last_name, company,
			email, phone, address1, address2, city, state, postal_code, country
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (customer_id) DO NOTHING
		RETURNING created_at
	`,
		contact.ID, contact.CustomerID, textOrNull(contact.RegistrarRef),
		contact.FirstName, contact.LastName, textOrNull(contact.Company),
		contact.Email, contact.Phone, contact.Address1,
		textOrNull(contact.Address2), contact.City, contact.State,
		contact.PostalCode, contact.Country,
	)
	switch err := row.Scan(&contact.CreatedAt); {
	case err == nil:
		return contact, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Lost the race to a sibling item; the winner's row is the contact.
		return s.GetByCustomer(ctx, customer.ID)
	default:
		return nil, err
	}
}
