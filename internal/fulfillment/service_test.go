package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hostweaveapp/hostweave/internal/certs"
	"github.com/hostweaveapp/hostweave/internal/crypto"
	"github.com/hostweaveapp/hostweave/internal/db"
	"github.com/hostweaveapp/hostweave/internal/email"
	"github.com/hostweaveapp/hostweave/internal/hosting"
	"github.com/hostweaveapp/hostweave/internal/models"
	"github.com/hostweaveapp/hostweave/internal/plans"
	"github.com/hostweaveapp/hostweave/internal/registrar"
)

type fakeStore struct {
	mu       sync.Mutex
	order    *models.Order
	customer *models.Customer
	contacts map[uuid.UUID]*models.DomainContact
	domains  []*models.Domain
	accounts map[uuid.UUID]*models.HostingAccount
	payments []models.Payment
	audits   []models.AuditLogEntry

	// beforeContactCreate runs between the contact lookup and the insert so
	// tests can interleave concurrent first uses.
	beforeContactCreate func()
}

func newFakeStore(order *models.Order, customer *models.Customer) *fakeStore {
	return &fakeStore{
		order:    order,
		customer: customer,
		contacts: make(map[uuid.UUID]*models.DomainContact),
		accounts: make(map[uuid.UUID]*models.HostingAccount),
	}
}

func (f *fakeStore) WithinTx(_ context.Context, fn func(tx Store) error) error {
	return fn(f)
}

func (f *fakeStore) GetForFulfillment(_ context.Context, orderID uuid.UUID) (*models.Order, *models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.order == nil || f.order.ID != orderID {
		return nil, nil, db.ErrNotFound
	}
	order := *f.order
	order.Items = append([]models.OrderItem(nil), f.order.Items...)
	customer := *f.customer
	return &order, &customer, nil
}

func (f *fakeStore) MarkOrderProcessing(_ context.Context, _ uuid.UUID, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.order.Status {
	case models.StatusPendingPayment, models.StatusProcessing, models.StatusPartialFailure, models.StatusFailed:
		f.order.Status = models.StatusProcessing
		f.order.PaymentReference = ref
		return nil
	}
	return db.ErrInvalidStatusTransition
}

func (f *fakeStore) finishOrder(status models.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.order.Status != models.StatusProcessing {
		return db.ErrInvalidStatusTransition
	}
	f.order.Status = status
	return nil
}

func (f *fakeStore) MarkOrderCompleted(_ context.Context, _ uuid.UUID) error {
	return f.finishOrder(models.StatusCompleted)
}

func (f *fakeStore) MarkOrderPartialFailure(_ context.Context, _ uuid.UUID) error {
	return f.finishOrder(models.StatusPartialFailure)
}

func (f *fakeStore) MarkOrderFailed(_ context.Context, _ uuid.UUID) error {
	return f.finishOrder(models.StatusFailed)
}

func (f *fakeStore) MarkOrderPaymentFailed(_ context.Context, _ uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.order.Status != models.StatusPendingPayment {
		return db.ErrInvalidStatusTransition
	}
	f.order.Status = models.StatusFailed
	f.order.PaymentStatus = "failed"
	return nil
}

func (f *fakeStore) MarkOrderRefunded(_ context.Context, _ uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.order.Status {
	case models.StatusProcessing, models.StatusCompleted, models.StatusPartialFailure, models.StatusFailed:
		f.order.Status = models.StatusRefunded
		return nil
	}
	return db.ErrInvalidStatusTransition
}

func (f *fakeStore) itemByID(itemID uuid.UUID) *models.OrderItem {
	for i := range f.order.Items {
		if f.order.Items[i].ID == itemID {
			return &f.order.Items[i]
		}
	}
	return nil
}

func (f *fakeStore) MarkItemProcessing(_ context.Context, itemID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.itemByID(itemID)
	if item == nil {
		return db.ErrNotFound
	}
	if item.Status != models.ItemStatusPending && item.Status != models.ItemStatusFailed {
		return db.ErrInvalidStatusTransition
	}
	if item.RetryCount >= models.MaxItemRetries {
		return db.ErrInvalidStatusTransition
	}
	item.Status = models.ItemStatusProcessing
	return nil
}

func (f *fakeStore) MarkItemCompleted(_ context.Context, itemID uuid.UUID, result db.ItemFulfillment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.itemByID(itemID)
	if item == nil || item.Status != models.ItemStatusProcessing {
		return db.ErrInvalidStatusTransition
	}
	item.Status = models.ItemStatusCompleted
	item.ErrorMessage = ""
	item.ExternalRef = result.ExternalRef
	item.DomainID = result.DomainID
	item.HostingAccountID = result.HostingAccountID
	item.FulfilledAt = time.Now()
	return nil
}

func (f *fakeStore) MarkItemFailed(_ context.Context, itemID uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.itemByID(itemID)
	if item == nil || item.Status != models.ItemStatusProcessing {
		return db.ErrInvalidStatusTransition
	}
	item.Status = models.ItemStatusFailed
	item.ErrorMessage = message
	item.RetryCount++
	return nil
}

func (f *fakeStore) InsertPayment(_ context.Context, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, *payment)
	return nil
}

func (f *fakeStore) MarkPaymentRefunded(_ context.Context, _ uuid.UUID, refundRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.payments {
		if f.payments[i].Status == models.PaymentStatusCompleted {
			f.payments[i].Status = models.PaymentStatusRefunded
			f.payments[i].RefundRef = refundRef
			return nil
		}
	}
	return db.ErrInvalidStatusTransition
}

func (f *fakeStore) InsertAudit(_ context.Context, entry *models.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, *entry)
	return nil
}

// FindOrCreateContact mirrors the store's non-atomic lookup-then-insert: the
// mutex is released between the two phases, and a losing concurrent insert
// resolves to the winner's row the way the unique customer_id index does.
func (f *fakeStore) FindOrCreateContact(_ context.Context, customer *models.Customer) (*models.DomainContact, error) {
	f.mu.Lock()
	contact, ok := f.contacts[customer.ID]
	f.mu.Unlock()
	if ok {
		return contact, nil
	}

	if f.beforeContactCreate != nil {
		f.beforeContactCreate()
	}

	candidate := &models.DomainContact{
		ID:         uuid.New(),
		CustomerID: customer.ID,
		FirstName:  customer.FirstName,
		LastName:   customer.LastName,
		Email:      customer.Email,
		Phone:      customer.Phone,
		Address1:   customer.Address1,
		City:       customer.City,
		State:      customer.State,
		PostalCode: customer.PostalCode,
		Country:    customer.Country,
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.contacts[customer.ID]; ok {
		return existing, nil
	}
	f.contacts[customer.ID] = candidate
	return candidate, nil
}

func (f *fakeStore) GetContact(_ context.Context, customerID uuid.UUID) (*models.DomainContact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contact, ok := f.contacts[customerID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return contact, nil
}

func (f *fakeStore) InsertDomain(_ context.Context, domain *models.Domain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if domain.ID == uuid.Nil {
		domain.ID = uuid.New()
	}
	copied := *domain
	f.domains = append(f.domains, &copied)
	return nil
}

func (f *fakeStore) GetDomainByName(_ context.Context, customerID uuid.UUID, name string) (*models.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.domains {
		if d.CustomerID == customerID && d.Name == name {
			return d, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) SetDomainPrivacy(_ context.Context, domainID uuid.UUID, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.domains {
		if d.ID == domainID {
			d.PrivacyEnabled = enabled
			return nil
		}
	}
	return db.ErrNotFound
}

func (f *fakeStore) InsertHostingAccount(_ context.Context, account *models.HostingAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	copied := *account
	f.accounts[account.ID] = &copied
	return nil
}

func (f *fakeStore) MarkHostingActive(_ context.Context, accountID uuid.UUID, providerAccountID, encryptedPassword string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[accountID]
	if !ok || account.Status != models.HostingStatusProvisioning {
		return db.ErrInvalidStatusTransition
	}
	account.Status = models.HostingStatusActive
	account.ProviderAccountID = providerAccountID
	account.AdminPassword = encryptedPassword
	return nil
}

func (f *fakeStore) auditEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var events []string
	for _, entry := range f.audits {
		events = append(events, entry.Event)
	}
	return events
}

type fakeRegistrar struct {
	mu          sync.Mutex
	registered  []string
	transferred []string
	privacy     []string
	certOrders  []string
	failures    map[string]error
}

func (f *fakeRegistrar) failDomain(domain string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures == nil {
		f.failures = make(map[string]error)
	}
	f.failures[domain] = err
}

func (f *fakeRegistrar) RegisterDomain(_ context.Context, spec registrar.RegistrationSpec) (*registrar.RegistrationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[spec.Domain]; err != nil {
		return nil, err
	}
	f.registered = append(f.registered, spec.Domain)
	return &registrar.RegistrationResult{
		ProviderOrderID:  "ORD-" + spec.Domain,
		ProviderDomainID: "DOM-" + spec.Domain,
		ExpiresAt:        time.Now().AddDate(spec.Years, 0, 0),
	}, nil
}

func (f *fakeRegistrar) TransferDomain(_ context.Context, spec registrar.TransferSpec) (*registrar.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[spec.Domain]; err != nil {
		return nil, err
	}
	f.transferred = append(f.transferred, spec.Domain)
	return &registrar.TransferResult{ProviderOrderID: "TRF-" + spec.Domain}, nil
}

func (f *fakeRegistrar) SetPrivacy(_ context.Context, domain string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[domain]; err != nil {
		return err
	}
	f.privacy = append(f.privacy, domain)
	return nil
}

func (f *fakeRegistrar) OrderCertificate(_ context.Context, domain, _, _ string) (*registrar.CertificateOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[domain]; err != nil {
		return nil, err
	}
	f.certOrders = append(f.certOrders, domain)
	return &registrar.CertificateOrder{ProviderOrderID: "SSL-" + domain, DCVEmail: "admin@" + domain}, nil
}

func (f *fakeRegistrar) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registered) + len(f.transferred) + len(f.privacy) + len(f.certOrders)
}

type fakeCSRGenerator struct{}

func (fakeCSRGenerator) Generate(subject certs.Subject) (*certs.Result, error) {
	return &certs.Result{
		CSRPEM:              "-----BEGIN CERTIFICATE REQUEST-----\nfake\n-----END CERTIFICATE REQUEST-----\n",
		EncryptedPrivateKey: "dev:fake-key-" + subject.CommonName,
	}, nil
}

type fakeCatalog map[string]plans.Plan

func (f fakeCatalog) Get(id string) (plans.Plan, bool) {
	plan, ok := f[id]
	return plan, ok
}

type capturingEmailProvider struct {
	sent chan *email.Email
}

func newCapturingEmailProvider() *capturingEmailProvider {
	return &capturingEmailProvider{sent: make(chan *email.Email, 4)}
}

func (p *capturingEmailProvider) SendEmail(_ context.Context, msg *email.Email) error {
	p.sent <- msg
	return nil
}

type testEnv struct {
	service   *Service
	store     *fakeStore
	registrar *fakeRegistrar
	emails    *capturingEmailProvider
	sleeps    *[]time.Duration
}

func newTestEnv(t *testing.T, order *models.Order, customer *models.Customer) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	renderer, err := email.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	store := newFakeStore(order, customer)
	reg := &fakeRegistrar{}
	emails := newCapturingEmailProvider()
	catalog := fakeCatalog{
		"starter": {ID: "starter", Name: "Starter", MonthlyPriceCents: 499, DiskMB: 5120, BandwidthGB: 100},
	}

	service := NewService(
		store,
		reg,
		hosting.NewMockProvisioner(),
		fakeCSRGenerator{},
		catalog,
		crypto.NewDevEncryptor(logger),
		emails,
		renderer,
		[]string{"ns1.hostweave.net", "ns2.hostweave.net"},
		logger,
	)

	var sleeps []time.Duration
	service.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	return &testEnv{service: service, store: store, registrar: reg, emails: emails, sleeps: &sleeps}
}

func completeCustomer() *models.Customer {
	return &models.Customer{
		ID:         uuid.New(),
		Email:      "jo@example.com",
		FirstName:  "Jo",
		LastName:   "Nakamura",
		Phone:      "+1.5145550199",
		Address1:   "12 Main St",
		City:       "Montreal",
		State:      "QC",
		PostalCode: "H2X 1Y4",
		Country:    "CA",
	}
}

func newOrder(customer *models.Customer, items ...models.OrderItem) *models.Order {
	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: customer.ID,
		TotalCents: 2499,
		Currency:   "usd",
		Status:     models.StatusPendingPayment,
	}
	for i := range items {
		items[i].ID = uuid.New()
		items[i].OrderID = order.ID
		if items[i].Status == "" {
			items[i].Status = models.ItemStatusPending
		}
	}
	order.Items = items
	return order
}

func domainItem(sld, tld string) models.OrderItem {
	return models.OrderItem{
		Type:   models.ItemTypeDomainRegistration,
		Config: map[string]any{"sld": sld, "tld": tld, "years": float64(2)},
	}
}

func hostingItem(plan, domain string) models.OrderItem {
	return models.OrderItem{
		Type:   models.ItemTypeHostingPlan,
		Config: map[string]any{"plan_id": plan, "domain": domain},
	}
}

func TestHandlePaymentSuccess_AllItemsComplete(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer, domainItem("getweave", "com"), hostingItem("starter", "getweave.com"))
	env := newTestEnv(t, order, customer)

	if err := env.service.HandlePaymentSuccess(context.Background(), order.ID, "pi_123"); err != nil {
		t.Fatalf("HandlePaymentSuccess: %v", err)
	}

	if env.store.order.Status != models.StatusCompleted {
		t.Fatalf("order status = %s, want completed", env.store.order.Status)
	}
	for _, item := range env.store.order.Items {
		if item.Status != models.ItemStatusCompleted {
			t.Errorf("item %s status = %s, want completed", item.Type, item.Status)
		}
	}
	if len(env.store.payments) != 1 || env.store.payments[0].GatewayRef != "pi_123" {
		t.Fatalf("unexpected payments %+v", env.store.payments)
	}
	if len(env.registrar.registered) != 1 || env.registrar.registered[0] != "getweave.com" {
		t.Fatalf("registered = %v", env.registrar.registered)
	}

	events := env.store.auditEvents()
	if len(events) != 1 || events[0] != "fulfillment_finished" {
		t.Fatalf("audit events = %v", events)
	}

	select {
	case msg := <-env.emails.sent:
		if !strings.Contains(msg.Subject, order.ID.String()) {
			t.Errorf("confirmation subject = %q", msg.Subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation email never sent")
	}
}

func TestHandlePaymentSuccess_IdempotentWhenCompleted(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer, domainItem("getweave", "com"))
	order.Status = models.StatusCompleted
	order.Items[0].Status = models.ItemStatusCompleted
	env := newTestEnv(t, order, customer)

	if err := env.service.HandlePaymentSuccess(context.Background(), order.ID, "pi_dup"); err != nil {
		t.Fatalf("HandlePaymentSuccess: %v", err)
	}
	if len(env.store.payments) != 0 {
		t.Fatalf("replayed event recorded a payment: %+v", env.store.payments)
	}
	if env.registrar.callCount() != 0 {
		t.Fatal("replayed event reached the registrar")
	}
}

func TestHandlePaymentSuccess_PartialFailure(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer, domainItem("getweave", "com"), domainItem("flaky", "net"))
	env := newTestEnv(t, order, customer)
	env.registrar.failDomain("flaky.net", fmt.Errorf("registry backend unavailable"))

	if err := env.service.HandlePaymentSuccess(context.Background(), order.ID, "pi_1"); err != nil {
		t.Fatalf("HandlePaymentSuccess: %v", err)
	}

	if env.store.order.Status != models.StatusPartialFailure {
		t.Fatalf("order status = %s, want partial_failure", env.store.order.Status)
	}

	var failedItem *models.OrderItem
	for i := range env.store.order.Items {
		if env.store.order.Items[i].Status == models.ItemStatusFailed {
			failedItem = &env.store.order.Items[i]
		}
	}
	if failedItem == nil {
		t.Fatal("no failed item recorded")
	}
	if failedItem.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", failedItem.RetryCount)
	}
	if !strings.Contains(failedItem.ErrorMessage, "registry backend unavailable") {
		t.Errorf("error message = %q", failedItem.ErrorMessage)
	}

	events := env.store.auditEvents()
	if len(events) != 2 || events[0] != "item_failed" || events[1] != "fulfillment_finished" {
		t.Fatalf("audit events = %v", events)
	}
}

func TestHandlePaymentSuccess_ValidatesBeforeNetwork(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	customer.Phone = ""
	customer.Address1 = ""
	order := newOrder(customer, domainItem("getweave", "com"))
	env := newTestEnv(t, order, customer)

	if err := env.service.HandlePaymentSuccess(context.Background(), order.ID, "pi_1"); err != nil {
		t.Fatalf("HandlePaymentSuccess: %v", err)
	}

	if env.registrar.callCount() != 0 {
		t.Fatal("incomplete profile still reached the registrar")
	}
	if env.store.order.Status != models.StatusFailed {
		t.Fatalf("order status = %s, want failed", env.store.order.Status)
	}
	item := env.store.order.Items[0]
	for _, field := range []string{"phone", "address1"} {
		if !strings.Contains(item.ErrorMessage, field) {
			t.Errorf("error message %q does not name %s", item.ErrorMessage, field)
		}
	}
}

func TestHandlePaymentSuccess_PrivacyOnExistingDomain(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer, models.OrderItem{
		Type:   models.ItemTypeDomainPrivacy,
		Config: map[string]any{"sld": "getweave", "tld": "com"},
	})
	env := newTestEnv(t, order, customer)
	env.store.domains = append(env.store.domains, &models.Domain{
		ID:         uuid.New(),
		CustomerID: customer.ID,
		Name:       "getweave.com",
	})

	if err := env.service.HandlePaymentSuccess(context.Background(), order.ID, "pi_1"); err != nil {
		t.Fatalf("HandlePaymentSuccess: %v", err)
	}

	if env.store.order.Status != models.StatusCompleted {
		t.Fatalf("order status = %s, want completed", env.store.order.Status)
	}
	if len(env.registrar.privacy) != 1 || env.registrar.privacy[0] != "getweave.com" {
		t.Fatalf("privacy calls = %v", env.registrar.privacy)
	}
	if !env.store.domains[0].PrivacyEnabled {
		t.Error("domain row privacy flag not set")
	}
}

func TestHandlePaymentSuccess_CertificateOrder(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer, models.OrderItem{
		Type:   models.ItemTypeSSLCertificate,
		Config: map[string]any{"sld": "getweave", "tld": "com"},
	})
	env := newTestEnv(t, order, customer)

	if err := env.service.HandlePaymentSuccess(context.Background(), order.ID, "pi_1"); err != nil {
		t.Fatalf("HandlePaymentSuccess: %v", err)
	}

	if env.store.order.Status != models.StatusCompleted {
		t.Fatalf("order status = %s, want completed", env.store.order.Status)
	}
	if env.store.order.Items[0].ExternalRef != "SSL-getweave.com" {
		t.Errorf("external ref = %q", env.store.order.Items[0].ExternalRef)
	}

	var keyStored bool
	for _, entry := range env.store.audits {
		if entry.Event == "certificate_key_stored" {
			keyStored = true
			key, _ := entry.Metadata["encrypted_private_key"].(string)
			if !strings.HasPrefix(key, "dev:") {
				t.Errorf("stored key is not vault output: %q", key)
			}
		}
	}
	if !keyStored {
		t.Fatal("no certificate_key_stored audit entry")
	}
}

func TestHandlePaymentSuccess_ConcurrentFirstUseSharesContact(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer,
		domainItem("getweave", "com"),
		domainItem("getweave", "net"),
	)
	env := newTestEnv(t, order, customer)

	// Hold both items at the create step until each has missed the lookup, so
	// the insert race is guaranteed rather than scheduler-dependent.
	var bothMissed sync.WaitGroup
	bothMissed.Add(2)
	env.store.beforeContactCreate = func() {
		bothMissed.Done()
		bothMissed.Wait()
	}

	if err := env.service.HandlePaymentSuccess(context.Background(), order.ID, "pi_1"); err != nil {
		t.Fatalf("HandlePaymentSuccess: %v", err)
	}

	if env.store.order.Status != models.StatusCompleted {
		t.Fatalf("order status = %s, want completed", env.store.order.Status)
	}
	for _, item := range env.store.order.Items {
		if item.Status != models.ItemStatusCompleted {
			t.Errorf("item %s status = %s, error %q", item.ID, item.Status, item.ErrorMessage)
		}
	}
	if len(env.store.contacts) != 1 {
		t.Fatalf("contacts = %d, want 1", len(env.store.contacts))
	}
	if len(env.registrar.registered) != 2 {
		t.Fatalf("registered = %v", env.registrar.registered)
	}
}

func TestRetryFailedItems_BacksOffAndPromotes(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer,
		domainItem("getweave", "com"),
		domainItem("flaky", "net"),
		domainItem("shaky", "org"),
	)
	order.Status = models.StatusPartialFailure
	order.PaymentReference = "pi_1"
	order.Items[0].Status = models.ItemStatusCompleted
	order.Items[1].Status = models.ItemStatusFailed
	order.Items[1].RetryCount = 1
	order.Items[2].Status = models.ItemStatusFailed
	order.Items[2].RetryCount = 2
	env := newTestEnv(t, order, customer)

	if err := env.service.RetryFailedItems(context.Background(), order.ID); err != nil {
		t.Fatalf("RetryFailedItems: %v", err)
	}

	// 2^retryCount seconds before each sequential attempt.
	if got := *env.sleeps; len(got) != 2 || got[0] != 2*time.Second || got[1] != 4*time.Second {
		t.Fatalf("backoff sleeps = %v, want [2s 4s]", got)
	}
	if env.store.order.Status != models.StatusCompleted {
		t.Fatalf("order status = %s, want completed", env.store.order.Status)
	}
	for _, item := range env.store.order.Items {
		if item.Status != models.ItemStatusCompleted {
			t.Errorf("item %s status = %s", item.ID, item.Status)
		}
	}
}

func TestRetryFailedItems_RespectsRetryCap(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer, domainItem("flaky", "net"))
	order.Status = models.StatusFailed
	order.Items[0].Status = models.ItemStatusFailed
	order.Items[0].RetryCount = models.MaxItemRetries
	env := newTestEnv(t, order, customer)

	err := env.service.RetryFailedItems(context.Background(), order.ID)
	if err == nil || !strings.Contains(err.Error(), "no retryable items") {
		t.Fatalf("expected no-retryable-items error, got %v", err)
	}
	if env.registrar.callCount() != 0 {
		t.Fatal("capped item still reached the registrar")
	}
}

func TestRetryFailedItems_RejectsCompletedOrder(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer, domainItem("getweave", "com"))
	order.Status = models.StatusCompleted
	order.Items[0].Status = models.ItemStatusCompleted
	env := newTestEnv(t, order, customer)

	if err := env.service.RetryFailedItems(context.Background(), order.ID); err == nil {
		t.Fatal("expected error retrying a completed order")
	}
}

func TestRetryFailedItems_StopsWhenContextCanceled(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer, domainItem("getweave", "com"))
	order.Status = models.StatusPartialFailure
	order.Items[0].Status = models.ItemStatusFailed
	order.Items[0].RetryCount = 1
	env := newTestEnv(t, order, customer)
	env.service.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.service.RetryFailedItems(ctx, order.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if env.registrar.callCount() != 0 {
		t.Fatal("canceled retry still reached the registrar")
	}
	if env.store.order.Items[0].Status != models.ItemStatusFailed {
		t.Fatalf("item status = %s, want failed", env.store.order.Items[0].Status)
	}
	// The order must land back in a terminal state so a later retry is accepted.
	if env.store.order.Status != models.StatusFailed {
		t.Fatalf("order status = %s, want failed", env.store.order.Status)
	}
}

func TestHandlePaymentFailure(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer, domainItem("getweave", "com"))
	env := newTestEnv(t, order, customer)

	if err := env.service.HandlePaymentFailure(context.Background(), order.ID, "pi_1", "card_declined"); err != nil {
		t.Fatalf("HandlePaymentFailure: %v", err)
	}

	if env.store.order.Status != models.StatusFailed {
		t.Fatalf("order status = %s, want failed", env.store.order.Status)
	}
	if len(env.store.payments) != 1 || env.store.payments[0].FailureCode != "card_declined" {
		t.Fatalf("payments = %+v", env.store.payments)
	}
	if env.registrar.callCount() != 0 {
		t.Fatal("failed payment triggered provisioning")
	}

	select {
	case msg := <-env.emails.sent:
		if !strings.Contains(msg.Subject, "Payment failed") {
			t.Errorf("subject = %q", msg.Subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("payment-failed email never sent")
	}
}

func TestHandlePaymentFailure_IgnoresLateEvent(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer, domainItem("getweave", "com"))
	order.Status = models.StatusCompleted
	order.Items[0].Status = models.ItemStatusCompleted
	env := newTestEnv(t, order, customer)

	if err := env.service.HandlePaymentFailure(context.Background(), order.ID, "pi_1", "card_declined"); err != nil {
		t.Fatalf("HandlePaymentFailure: %v", err)
	}

	if env.store.order.Status != models.StatusCompleted {
		t.Fatalf("order status = %s, want completed", env.store.order.Status)
	}
	if len(env.store.payments) != 0 {
		t.Fatalf("payments = %+v, want none", env.store.payments)
	}
	select {
	case msg := <-env.emails.sent:
		t.Fatalf("unexpected email %q for a stale failure event", msg.Subject)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlePaymentRefund_NeverDeprovisions(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer, hostingItem("starter", "getweave.com"))
	env := newTestEnv(t, order, customer)

	if err := env.service.HandlePaymentSuccess(context.Background(), order.ID, "pi_1"); err != nil {
		t.Fatalf("HandlePaymentSuccess: %v", err)
	}
	if env.store.order.Status != models.StatusCompleted {
		t.Fatalf("order status = %s, want completed", env.store.order.Status)
	}

	if err := env.service.HandlePaymentRefund(context.Background(), order.ID, "re_1"); err != nil {
		t.Fatalf("HandlePaymentRefund: %v", err)
	}

	if env.store.order.Status != models.StatusRefunded {
		t.Fatalf("order status = %s, want refunded", env.store.order.Status)
	}
	if env.store.payments[0].Status != models.PaymentStatusRefunded {
		t.Errorf("payment status = %s, want refunded", env.store.payments[0].Status)
	}
	for _, account := range env.store.accounts {
		if account.Status != models.HostingStatusActive {
			t.Errorf("hosting account %s = %s, refund must not deprovision", account.ID, account.Status)
		}
	}
}

func TestHandlePaymentSuccess_HostingPasswordEncrypted(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer, hostingItem("starter", "getweave.com"))
	env := newTestEnv(t, order, customer)

	if err := env.service.HandlePaymentSuccess(context.Background(), order.ID, "pi_1"); err != nil {
		t.Fatalf("HandlePaymentSuccess: %v", err)
	}

	for _, account := range env.store.accounts {
		if account.Status != models.HostingStatusActive {
			t.Fatalf("account status = %s", account.Status)
		}
		if !strings.HasPrefix(account.AdminPassword, "dev:") {
			t.Errorf("admin password stored without vault encoding: %q", account.AdminPassword)
		}
	}
}

func TestHandlePaymentSuccess_UnknownPlanFailsWithoutPanel(t *testing.T) {
	t.Parallel()

	customer := completeCustomer()
	order := newOrder(customer, hostingItem("mega", "getweave.com"))
	env := newTestEnv(t, order, customer)

	if err := env.service.HandlePaymentSuccess(context.Background(), order.ID, "pi_1"); err != nil {
		t.Fatalf("HandlePaymentSuccess: %v", err)
	}

	if env.store.order.Status != models.StatusFailed {
		t.Fatalf("order status = %s, want failed", env.store.order.Status)
	}
	if !strings.Contains(env.store.order.Items[0].ErrorMessage, "unknown hosting plan") {
		t.Errorf("error message = %q", env.store.order.Items[0].ErrorMessage)
	}
	if len(env.store.accounts) != 0 {
		t.Fatal("account row created for unknown plan")
	}
}

func TestRetryBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		retries int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, tc := range tests {
		if got := retryBackoff(tc.retries); got != tc.want {
			t.Errorf("retryBackoff(%d) = %v, want %v", tc.retries, got, tc.want)
		}
	}
}

func TestIsRetryableClassification(t *testing.T) {
	t.Parallel()

	if IsRetryable(&ValidationError{Message: "bad input"}) {
		t.Error("validation errors must not be retryable")
	}
	if !IsRetryable(fmt.Errorf("wrapped: %w", &hosting.RequestError{Err: fmt.Errorf("timeout")})) {
		t.Error("transport failures should stay retryable through wrapping")
	}
}
