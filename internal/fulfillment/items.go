package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hostweaveapp/hostweave/internal/certs"
	"github.com/hostweaveapp/hostweave/internal/db"
	"github.com/hostweaveapp/hostweave/internal/hosting"
	"github.com/hostweaveapp/hostweave/internal/models"
	"github.com/hostweaveapp/hostweave/internal/registrar"
	"github.com/hostweaveapp/hostweave/internal/registrar/wire"
)

// ValidationError marks an item failure caused by bad input rather than an
// upstream fault. Retrying without fixing the order will fail again.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Retryable() bool { return false }

// IsRetryable reports whether an item failure is worth retrying unchanged.
func IsRetryable(err error) bool {
	return wire.IsRetryable(err)
}

func (s *Service) fulfillDomainRegistration(ctx context.Context, customer *models.Customer, item models.OrderItem) (db.ItemFulfillment, error) {
	domainName := item.DomainName()
	if domainName == "" {
		return db.ItemFulfillment{}, &ValidationError{Message: "item config is missing sld/tld"}
	}
	if missing := customer.MissingContactFields(); len(missing) > 0 {
		return db.ItemFulfillment{}, &ValidationError{
			Message: fmt.Sprintf("customer profile incomplete for domain registration: missing %s", strings.Join(missing, ", ")),
		}
	}

	contact, err := s.store.FindOrCreateContact(ctx, customer)
	if err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("failed to resolve registrar contact: %w", err)
	}

	privacy := boolFromConfig(item.Config, "privacy")
	result, err := s.registrar.RegisterDomain(ctx, registrar.RegistrationSpec{
		Domain:      domainName,
		Years:       intFromConfig(item.Config, "years", 1),
		Owner:       contactToRegistrar(contact),
		Nameservers: s.nameservers,
		AutoRenew:   true,
		Privacy:     privacy,
	})
	if err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("domain registration failed: %w", err)
	}

	domain := &models.Domain{
		CustomerID:        customer.ID,
		Name:              domainName,
		RegistrarOrderID:  result.ProviderOrderID,
		RegistrarDomainID: result.ProviderDomainID,
		Nameservers:       s.nameservers,
		RegisteredAt:      time.Now(),
		ExpiresAt:         result.ExpiresAt,
		AutoRenew:         true,
		PrivacyEnabled:    privacy,
		TransferLock:      true,
	}
	if err := s.store.InsertDomain(ctx, domain); err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("domain registered but could not be persisted: %w", err)
	}

	return db.ItemFulfillment{ExternalRef: result.ProviderOrderID, DomainID: domain.ID}, nil
}

func (s *Service) fulfillDomainTransfer(ctx context.Context, customer *models.Customer, item models.OrderItem) (db.ItemFulfillment, error) {
	domainName := item.DomainName()
	if domainName == "" {
		return db.ItemFulfillment{}, &ValidationError{Message: "item config is missing sld/tld"}
	}
	authCode := stringFromConfig(item.Config, "auth_code")
	if authCode == "" {
		return db.ItemFulfillment{}, &ValidationError{Message: "domain transfer requires an auth code"}
	}

	contact, err := s.store.GetContact(ctx, customer.ID)
	if errors.Is(err, db.ErrNotFound) {
		return db.ItemFulfillment{}, &ValidationError{Message: "domain transfer requires an existing registrar contact"}
	}
	if err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("failed to load registrar contact: %w", err)
	}

	result, err := s.registrar.TransferDomain(ctx, registrar.TransferSpec{
		Domain:   domainName,
		AuthCode: authCode,
		Owner:    contactToRegistrar(contact),
	})
	if err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("domain transfer failed: %w", err)
	}
	return db.ItemFulfillment{ExternalRef: result.ProviderOrderID}, nil
}

func (s *Service) fulfillHostingPlan(ctx context.Context, customer *models.Customer, item models.OrderItem) (db.ItemFulfillment, error) {
	planID := stringFromConfig(item.Config, "plan_id")
	if _, ok := s.plans.Get(planID); !ok {
		return db.ItemFulfillment{}, &ValidationError{Message: fmt.Sprintf("unknown hosting plan %q", planID)}
	}

	siteDomain := stringFromConfig(item.Config, "domain")
	if siteDomain == "" {
		siteDomain = item.DomainName()
	}
	if siteDomain == "" {
		return db.ItemFulfillment{}, &ValidationError{Message: "hosting item config is missing a domain"}
	}

	account := &models.HostingAccount{
		CustomerID:    customer.ID,
		PlanID:        planID,
		Domain:        siteDomain,
		AdminUsername: customer.Email,
		Status:        models.HostingStatusProvisioning,
	}
	if err := s.store.InsertHostingAccount(ctx, account); err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("failed to create hosting account record: %w", err)
	}

	site, err := s.hosting.CreateSite(ctx, hosting.CreateSiteRequest{
		Plan:       planID,
		Domain:     siteDomain,
		AdminEmail: customer.Email,
	})
	if err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("hosting provisioning failed: %w", err)
	}

	encryptedPassword, err := s.vault.Encrypt(site.AdminPassword)
	if err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("failed to encrypt hosting admin password: %w", err)
	}
	if err := s.store.MarkHostingActive(ctx, account.ID, site.AccountID, encryptedPassword); err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("site provisioned but could not be activated: %w", err)
	}

	return db.ItemFulfillment{ExternalRef: site.AccountID, HostingAccountID: account.ID}, nil
}

// fulfillDomainPrivacy adds WHOIS privacy to a domain registered for the same
// customer, usually by a sibling item of the same order.
func (s *Service) fulfillDomainPrivacy(ctx context.Context, customer *models.Customer, item models.OrderItem) (db.ItemFulfillment, error) {
	domainName := item.DomainName()
	if domainName == "" {
		return db.ItemFulfillment{}, &ValidationError{Message: "item config is missing sld/tld"}
	}

	domain, err := s.store.GetDomainByName(ctx, customer.ID, domainName)
	if errors.Is(err, db.ErrNotFound) {
		return db.ItemFulfillment{}, fmt.Errorf("domain %s is not registered for this customer yet", domainName)
	}
	if err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("failed to look up domain %s: %w", domainName, err)
	}

	if err := s.registrar.SetPrivacy(ctx, domainName, true); err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("failed to enable privacy on %s: %w", domainName, err)
	}
	if err := s.store.SetDomainPrivacy(ctx, domain.ID, true); err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("privacy enabled but could not be persisted: %w", err)
	}
	return db.ItemFulfillment{DomainID: domain.ID}, nil
}

func (s *Service) fulfillCertificate(ctx context.Context, order *models.Order, customer *models.Customer, item models.OrderItem) (db.ItemFulfillment, error) {
	domainName := item.DomainName()
	if domainName == "" {
		return db.ItemFulfillment{}, &ValidationError{Message: "item config is missing sld/tld"}
	}

	csr, err := s.certs.Generate(certs.Subject{
		CommonName:   domainName,
		Organization: customer.Company,
		Locality:     customer.City,
		Province:     customer.State,
		Country:      customer.Country,
		Email:        customer.Email,
	})
	if err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("failed to generate CSR for %s: %w", domainName, err)
	}

	dcvEmail := stringFromConfig(item.Config, "dcv_email")
	if dcvEmail == "" {
		dcvEmail = "admin@" + domainName
	}

	certOrder, err := s.registrar.OrderCertificate(ctx, domainName, csr.CSRPEM, dcvEmail)
	if err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("certificate order failed: %w", err)
	}

	// The key only exists here, so it rides along in the audit trail in its
	// vault-encrypted form.
	err = s.store.InsertAudit(ctx, &models.AuditLogEntry{
		OrderID: order.ID,
		Event:   "certificate_key_stored",
		Metadata: map[string]any{
			"item_id":               item.ID.String(),
			"domain":                domainName,
			"provider_order_id":     certOrder.ProviderOrderID,
			"dcv_email":             certOrder.DCVEmail,
			"encrypted_private_key": csr.EncryptedPrivateKey,
		},
	})
	if err != nil {
		return db.ItemFulfillment{}, fmt.Errorf("certificate ordered but key could not be recorded: %w", err)
	}

	return db.ItemFulfillment{ExternalRef: certOrder.ProviderOrderID}, nil
}

func contactToRegistrar(contact *models.DomainContact) registrar.Contact {
	return registrar.Contact{
		FirstName:  contact.FirstName,
		LastName:   contact.LastName,
		Company:    contact.Company,
		Email:      contact.Email,
		Phone:      contact.Phone,
		Address1:   contact.Address1,
		Address2:   contact.Address2,
		City:       contact.City,
		State:      contact.State,
		PostalCode: contact.PostalCode,
		Country:    contact.Country,
	}
}

func stringFromConfig(config map[string]any, key string) string {
	v, _ := config[key].(string)
	return v
}

func boolFromConfig(config map[string]any, key string) bool {
	v, _ := config[key].(bool)
	return v
}

// intFromConfig tolerates JSON numbers arriving as float64.
func intFromConfig(config map[string]any, key string, fallback int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
