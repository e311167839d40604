package hosting

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"sync"
)

// MockProvisioner simulates the control panel in memory. Account ids are
// stable per domain so repeated runs line up, passwords are random like the
// real panel's.
type MockProvisioner struct {
	mu    sync.Mutex
	sites map[string]*Site
}

func NewMockProvisioner() *MockProvisioner {
	return &MockProvisioner{sites: make(map[string]*Site)}
}

func (m *MockProvisioner) CreateSite(_ context.Context, req CreateSiteRequest) (*Site, error) {
	if req.Plan == "" || req.Domain == "" {
		return nil, fmt.Errorf("plan and domain are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := mockAccountID(req.Domain)
	if _, exists := m.sites[id]; exists {
		return nil, &APIError{Status: 409, Body: "site already exists for " + req.Domain}
	}

	site := &Site{
		AccountID:     id,
		AdminPassword: randomPassword(),
		Status:        "active",
	}
	m.sites[id] = site
	return site, nil
}

func (m *MockProvisioner) SuspendSite(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	site, ok := m.sites[accountID]
	if !ok {
		return &APIError{Status: 404, Body: "unknown account " + accountID}
	}
	site.Status = "suspended"
	return nil
}

func (m *MockProvisioner) DeleteSite(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sites[accountID]; !ok {
		return &APIError{Status: 404, Body: "unknown account " + accountID}
	}
	delete(m.sites, accountID)
	return nil
}

func mockAccountID(domain string) string {
	h := fnv.New32a()
	h.Write([]byte(domain))
	return fmt.Sprintf("MOCK-HOST-%d", h.Sum32())
}

func randomPassword() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
