// Package registrar provides the domain registrar client built on the wire
// codec, with a live HTTP transport and a deterministic mock transport.
package registrar

import "time"

// Contact is a registrar-facing contact set.
type Contact struct {
	FirstName  string
	LastName   string
	Company    string
	Email      string
	Phone      string
	Address1   string
	Address2   string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Availability is the lookup verdict for one domain candidate.
type Availability struct {
	Domain    string
	Available bool
	Reason    string
}

// ReasonLookupFailed marks a candidate whose availability lookup failed;
// the candidate degrades to unavailable instead of failing the whole check.
const ReasonLookupFailed = "lookup_failed"

// RegistrationSpec describes one domain registration request. Admin, Tech
// and Billing fall back to Owner when nil.
type RegistrationSpec struct {
	Domain      string
	Years       int
	Owner       Contact
	Admin       *Contact
	Tech        *Contact
	Billing     *Contact
	Nameservers []string
	AutoRenew   bool
	Privacy     bool
}

// RegistrationResult carries the provider-assigned identifiers.
type RegistrationResult struct {
	ProviderOrderID  string
	ProviderDomainID string
	ExpiresAt        time.Time
}

type TransferSpec struct {
	Domain   string
	AuthCode string
	Owner    Contact
}

type TransferResult struct {
	ProviderOrderID string
}

type RenewalResult struct {
	ProviderOrderID string
	ExpiresAt       time.Time
}

type DomainInfo struct {
	Domain       string
	ExpiresAt    time.Time
	Nameservers  []string
	TransferLock bool
	Privacy      bool
	AutoRenew    bool
}

type DNSRecord struct {
	Type     string
	Host     string
	Value    string
	TTL      int
	Priority int
}

// CertificateOrder is the result of ordering an SSL certificate.
type CertificateOrder struct {
	ProviderOrderID string
	DCVEmail        string
}
