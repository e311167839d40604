package hosting

import (
	"context"
	"errors"
	"testing"
)

func TestMockLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mock := NewMockProvisioner()

	site, err := mock.CreateSite(ctx, CreateSiteRequest{Plan: "starter", Domain: "shop.example.com"})
	if err != nil {
		t.Fatalf("CreateSite: %v", err)
	}
	if site.AccountID == "" || site.AdminPassword == "" {
		t.Fatalf("incomplete site %+v", site)
	}
	if site.Status != "active" {
		t.Errorf("status = %q, want active", site.Status)
	}

	// Same domain maps to the same id, and a second create conflicts.
	if _, err := mock.CreateSite(ctx, CreateSiteRequest{Plan: "starter", Domain: "shop.example.com"}); err == nil {
		t.Fatal("expected conflict on duplicate create")
	}

	if err := mock.SuspendSite(ctx, site.AccountID); err != nil {
		t.Fatalf("SuspendSite: %v", err)
	}
	if err := mock.DeleteSite(ctx, site.AccountID); err != nil {
		t.Fatalf("DeleteSite: %v", err)
	}

	err = mock.SuspendSite(ctx, site.AccountID)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
}

func TestMockAccountIDStable(t *testing.T) {
	t.Parallel()

	a := mockAccountID("shop.example.com")
	b := mockAccountID("shop.example.com")
	if a != b {
		t.Fatalf("account id not stable: %s vs %s", a, b)
	}
	if a == mockAccountID("other.example.com") {
		t.Fatal("distinct domains share an account id")
	}
}
