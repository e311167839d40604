package registrar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hostweaveapp/hostweave/internal/cache"
	"github.com/hostweaveapp/hostweave/internal/logging"
	"github.com/hostweaveapp/hostweave/internal/registrar/wire"
)

const (
	actionLookup   = "LOOKUP"
	actionRegister = "SW_REGISTER"
	actionTransfer = "TRANSFER"
	actionRenew    = "RENEW"
	actionGet      = "GET"
	actionModify   = "MODIFY"
	actionAuthCode = "SEND_AUTHCODE"
	actionOrderSSL = "ORDER_SSL"

	objectDomain = "DOMAIN"
	objectDNS    = "DNS_ZONE"
	objectSSL    = "SSL_CERT"
)

const (
	expiryDateLayout = "2006-01-02"

	// availabilityTTL absorbs duplicate storefront searches for the same name.
	availabilityTTL = time.Minute
)

// Client exposes the registrar operations the fulfillment saga needs. Every
// operation is a thin wrapper translating a domain-shaped request into one
// wire envelope and a typed result.
type Client struct {
	transport Transport
	cache     cache.Provider
	logger    *slog.Logger
}

func NewClient(transport Transport, cacheProvider cache.Provider, logger *slog.Logger) *Client {
	return &Client{
		transport: transport,
		cache:     cacheProvider,
		logger:    logger,
	}
}

func (c *Client) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, c.logger)
}

// CheckAvailability looks up one candidate per TLD in parallel. A failed
// lookup degrades that candidate to unavailable with ReasonLookupFailed
// instead of failing the whole check.
func (c *Client) CheckAvailability(ctx context.Context, name string, tlds []string) ([]Availability, error) {
	if name == "" {
		return nil, fmt.Errorf("domain name is required")
	}
	if len(tlds) == 0 {
		return nil, fmt.Errorf("at least one tld is required")
	}

	results := make([]Availability, len(tlds))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, tld := range tlds {
		i, tld := i, tld
		group.Go(func() error {
			domain := name + "." + strings.TrimPrefix(tld, ".")
			results[i] = c.lookupOne(groupCtx, domain)
			return nil
		})
	}
	// Lookups never return errors into the group; degradation is per candidate.
	_ = group.Wait()

	return results, nil
}

func (c *Client) lookupOne(ctx context.Context, domain string) Availability {
	if cached, ok := c.cachedAvailability(ctx, domain); ok {
		return cached
	}

	resp, err := c.transport.Send(ctx, wire.Request{
		Action: actionLookup,
		Object: objectDomain,
		Attributes: map[string]any{
			"domain": domain,
		},
	})
	if err != nil {
		c.loggerFromContext(ctx).Warn("availability lookup failed", "domain", domain, "error", err)
		return Availability{Domain: domain, Available: false, Reason: ReasonLookupFailed}
	}

	result := Availability{
		Domain:    domain,
		Available: attrString(resp.Attributes, "status") == "available",
		Reason:    attrString(resp.Attributes, "reason"),
	}
	c.storeAvailability(ctx, result)
	return result
}

func (c *Client) cachedAvailability(ctx context.Context, domain string) (Availability, bool) {
	if c.cache == nil {
		return Availability{}, false
	}
	raw, err := c.cache.Get(ctx, cache.AvailabilityKey(domain))
	if err != nil {
		return Availability{}, false
	}
	var cached Availability
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return Availability{}, false
	}
	return cached, true
}

func (c *Client) storeAvailability(ctx context.Context, result Availability) {
	if c.cache == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cache.AvailabilityKey(result.Domain), string(payload), availabilityTTL); err != nil {
		c.loggerFromContext(ctx).Warn("failed to cache availability", "domain", result.Domain, "error", err)
	}
}

// RegisterDomain registers spec.Domain for spec.Years. Missing admin/tech/
// billing contact sets fall back to the owner contact. The provider's
// rejection surfaces as a non-retryable wire.ProviderError.
func (c *Client) RegisterDomain(ctx context.Context, spec RegistrationSpec) (*RegistrationResult, error) {
	if spec.Domain == "" {
		return nil, fmt.Errorf("domain is required")
	}
	if len(spec.Nameservers) == 0 {
		return nil, fmt.Errorf("an explicit nameserver list is required")
	}
	years := spec.Years
	if years <= 0 {
		years = 1
	}

	resp, err := c.transport.Send(ctx, wire.Request{
		Action: actionRegister,
		Object: objectDomain,
		Attributes: map[string]any{
			"domain":          spec.Domain,
			"period":          years,
			"auto_renew":      spec.AutoRenew,
			"privacy":         spec.Privacy,
			"nameserver_list": spec.Nameservers,
			"contact_set": map[string]any{
				"owner":   contactAttrs(spec.Owner),
				"admin":   contactAttrs(fallbackContact(spec.Admin, spec.Owner)),
				"tech":    contactAttrs(fallbackContact(spec.Tech, spec.Owner)),
				"billing": contactAttrs(fallbackContact(spec.Billing, spec.Owner)),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("register domain %s: %w", spec.Domain, err)
	}

	expiry, err := attrDate(resp.Attributes, "expiry_date")
	if err != nil {
		return nil, err
	}
	return &RegistrationResult{
		ProviderOrderID:  attrString(resp.Attributes, "id"),
		ProviderDomainID: attrString(resp.Attributes, "domain_id"),
		ExpiresAt:        expiry,
	}, nil
}

// TransferDomain requests an inbound transfer authorized by the EPP code.
func (c *Client) TransferDomain(ctx context.Context, spec TransferSpec) (*TransferResult, error) {
	if spec.Domain == "" {
		return nil, fmt.Errorf("domain is required")
	}
	if spec.AuthCode == "" {
		return nil, fmt.Errorf("auth code is required for transfer")
	}

	resp, err := c.transport.Send(ctx, wire.Request{
		Action: actionTransfer,
		Object: objectDomain,
		Attributes: map[string]any{
			"domain":    spec.Domain,
			"auth_code": spec.AuthCode,
			"contact_set": map[string]any{
				"owner": contactAttrs(spec.Owner),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("transfer domain %s: %w", spec.Domain, err)
	}

	return &TransferResult{ProviderOrderID: attrString(resp.Attributes, "id")}, nil
}

// RenewDomain extends the registration. The protocol requires the current
// expiry year as an input, so the current info is fetched first.
func (c *Client) RenewDomain(ctx context.Context, domain string, years int) (*RenewalResult, error) {
	info, err := c.GetDomainInfo(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("renew domain %s: fetch current expiry: %w", domain, err)
	}
	if years <= 0 {
		years = 1
	}

	resp, err := c.transport.Send(ctx, wire.Request{
		Action: actionRenew,
		Object: objectDomain,
		Attributes: map[string]any{
			"domain":             domain,
			"period":             years,
			"currentexpiryyear":  info.ExpiresAt.Year(),
			"handle_auto_renews": false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("renew domain %s: %w", domain, err)
	}

	expiry, err := attrDate(resp.Attributes, "new_expiry_date")
	if err != nil {
		return nil, err
	}
	return &RenewalResult{
		ProviderOrderID: attrString(resp.Attributes, "id"),
		ExpiresAt:       expiry,
	}, nil
}

func (c *Client) GetDomainInfo(ctx context.Context, domain string) (*DomainInfo, error) {
	resp, err := c.transport.Send(ctx, wire.Request{
		Action: actionGet,
		Object: objectDomain,
		Attributes: map[string]any{
			"domain": domain,
			"type":   "all_info",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get domain info %s: %w", domain, err)
	}

	expiry, err := attrDate(resp.Attributes, "expiry_date")
	if err != nil {
		return nil, err
	}
	return &DomainInfo{
		Domain:       domain,
		ExpiresAt:    expiry,
		Nameservers:  attrStrings(resp.Attributes, "nameserver_list"),
		TransferLock: attrBool(resp.Attributes, "lock_state"),
		Privacy:      attrBool(resp.Attributes, "privacy_state"),
		AutoRenew:    attrBool(resp.Attributes, "auto_renew"),
	}, nil
}

func (c *Client) UpdateNameservers(ctx context.Context, domain string, nameservers []string) error {
	if len(nameservers) == 0 {
		return fmt.Errorf("nameserver list must not be empty")
	}
	_, err := c.transport.Send(ctx, wire.Request{
		Action: actionModify,
		Object: objectDomain,
		Attributes: map[string]any{
			"domain":          domain,
			"data":            "nameserver_list",
			"nameserver_list": nameservers,
		},
	})
	if err != nil {
		return fmt.Errorf("update nameservers for %s: %w", domain, err)
	}
	return nil
}

// GetEppCode retrieves the transfer authorization code for the domain.
func (c *Client) GetEppCode(ctx context.Context, domain string) (string, error) {
	resp, err := c.transport.Send(ctx, wire.Request{
		Action: actionAuthCode,
		Object: objectDomain,
		Attributes: map[string]any{
			"domain": domain,
		},
	})
	if err != nil {
		return "", fmt.Errorf("get epp code for %s: %w", domain, err)
	}
	return attrString(resp.Attributes, "auth_code"), nil
}

func (c *Client) SetTransferLock(ctx context.Context, domain string, locked bool) error {
	_, err := c.transport.Send(ctx, wire.Request{
		Action: actionModify,
		Object: objectDomain,
		Attributes: map[string]any{
			"domain":     domain,
			"data":       "lock_state",
			"lock_state": locked,
		},
	})
	if err != nil {
		return fmt.Errorf("set transfer lock for %s: %w", domain, err)
	}
	return nil
}

func (c *Client) SetPrivacy(ctx context.Context, domain string, enabled bool) error {
	_, err := c.transport.Send(ctx, wire.Request{
		Action: actionModify,
		Object: objectDomain,
		Attributes: map[string]any{
			"domain":        domain,
			"data":          "privacy_state",
			"privacy_state": enabled,
		},
	})
	if err != nil {
		return fmt.Errorf("set privacy for %s: %w", domain, err)
	}
	return nil
}

func (c *Client) GetDNSRecords(ctx context.Context, domain string) ([]DNSRecord, error) {
	resp, err := c.transport.Send(ctx, wire.Request{
		Action: actionGet,
		Object: objectDNS,
		Attributes: map[string]any{
			"domain": domain,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get dns records for %s: %w", domain, err)
	}

	raw, _ := resp.Attributes["records"].([]any)
	records := make([]DNSRecord, 0, len(raw))
	for _, entry := range raw {
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, DNSRecord{
			Type:     attrString(fields, "type"),
			Host:     attrString(fields, "host"),
			Value:    attrString(fields, "value"),
			TTL:      attrInt(fields, "ttl"),
			Priority: attrInt(fields, "priority"),
		})
	}
	return records, nil
}

func (c *Client) UpdateDNSRecords(ctx context.Context, domain string, records []DNSRecord) error {
	encoded := make([]any, len(records))
	for i, record := range records {
		encoded[i] = map[string]any{
			"type":     record.Type,
			"host":     record.Host,
			"value":    record.Value,
			"ttl":      record.TTL,
			"priority": record.Priority,
		}
	}

	_, err := c.transport.Send(ctx, wire.Request{
		Action: actionModify,
		Object: objectDNS,
		Attributes: map[string]any{
			"domain":  domain,
			"records": encoded,
		},
	})
	if err != nil {
		return fmt.Errorf("update dns records for %s: %w", domain, err)
	}
	return nil
}

// OrderCertificate submits a CSR for issuance. The DCV email is where the
// provider sends the domain-control-validation challenge.
func (c *Client) OrderCertificate(ctx context.Context, domain, csrPEM, dcvEmail string) (*CertificateOrder, error) {
	if csrPEM == "" {
		return nil, fmt.Errorf("csr is required")
	}

	resp, err := c.transport.Send(ctx, wire.Request{
		Action: actionOrderSSL,
		Object: objectSSL,
		Attributes: map[string]any{
			"domain":    domain,
			"csr":       csrPEM,
			"dcv_email": dcvEmail,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("order certificate for %s: %w", domain, err)
	}

	return &CertificateOrder{
		ProviderOrderID: attrString(resp.Attributes, "id"),
		DCVEmail:        attrString(resp.Attributes, "dcv_email"),
	}, nil
}

func fallbackContact(contact *Contact, owner Contact) Contact {
	if contact == nil {
		return owner
	}
	return *contact
}

func contactAttrs(c Contact) map[string]any {
	return map[string]any{
		"first_name":  c.FirstName,
		"last_name":   c.LastName,
		"org_name":    c.Company,
		"email":       c.Email,
		"phone":       c.Phone,
		"address1":    c.Address1,
		"address2":    c.Address2,
		"city":        c.City,
		"state":       c.State,
		"postal_code": c.PostalCode,
		"country":     c.Country,
	}
}

func attrString(attrs map[string]any, key string) string {
	value, _ := attrs[key].(string)
	return strings.TrimSpace(value)
}

func attrStrings(attrs map[string]any, key string) []string {
	raw, _ := attrs[key].([]any)
	values := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			values = append(values, strings.TrimSpace(s))
		}
	}
	return values
}

func attrBool(attrs map[string]any, key string) bool {
	return attrString(attrs, key) == "1"
}

func attrInt(attrs map[string]any, key string) int {
	value, err := strconv.Atoi(attrString(attrs, key))
	if err != nil {
		return 0
	}
	return value
}

func attrDate(attrs map[string]any, key string) (time.Time, error) {
	raw := attrString(attrs, key)
	if raw == "" {
		return time.Time{}, fmt.Errorf("registrar response missing %s", key)
	}
	parsed, err := time.Parse(expiryDateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("registrar response has malformed %s: %w", key, err)
	}
	return parsed, nil
}
