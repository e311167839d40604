package models

import (
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Company    string    `json:"company"`
	Phone      string    `json:"phone"`
	Address1   string    `json:"address1"`
	Address2   string    `json:"address2"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	CreatedAt  time.Time `json:"created_at"`
}

// MissingContactFields reports which fields required for registrar contact
// creation are absent. An empty slice means the profile is complete.
func (c *Customer) MissingContactFields() []string {
	var missing []string
	checks := []struct {
		name  string
		value string
	}{
		{"first_name", c.FirstName},
		{"last_name", c.LastName},
		{"phone", c.Phone},
		{"address1", c.Address1},
		{"city", c.City},
		{"state", c.State},
		{"postal_code", c.PostalCode},
		{"country", c.Country},
	}
	for _, check := range checks {
		if check.value == "" {
			missing = append(missing, check.name)
		}
	}
	return missing
}

// DomainContact is the registrar-facing contact derived from a Customer the
// first time a domain is registered. The saga never mutates it afterwards.
type DomainContact struct {
	ID           uuid.UUID `json:"id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	RegistrarRef string    `json:"registrar_ref"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Company      string    `json:"company"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Address1     string    `json:"address1"`
	Address2     string    `json:"address2"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	PostalCode   string    `json:"postal_code"`
	Country      string    `json:"country"`
	CreatedAt    time.Time `json:"created_at"`
}
