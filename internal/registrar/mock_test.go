package registrar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hostweaveapp/hostweave/internal/registrar/wire"
)

func TestMockAvailabilityDeterminism(t *testing.T) {
	t.Parallel()

	tests := []struct {
		domain    string
		available bool
	}{
		{"takendomain.com", false},
		{"takendomain.org", false},
		{"takenanything.io", false},
		{"testsite.com", true},
		{"testsite.xyz", true},
		{"example.com", false},
		{"example.net", true},
		{"mydomain.com", false},
		{"mydomain.org", true},
		{"website.com", false},
		{"uniquename.com", true},
	}

	mock := NewMockTransport()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.domain, func(t *testing.T) {
			t.Parallel()

			// Repeated calls must agree.
			for i := 0; i < 3; i++ {
				resp, err := mock.Send(context.Background(), wire.Request{
					Action:     actionLookup,
					Object:     objectDomain,
					Attributes: map[string]any{"domain": tc.domain},
				})
				if err != nil {
					t.Fatalf("lookup failed: %v", err)
				}
				got := resp.Attributes["status"] == "available"
				if got != tc.available {
					t.Fatalf("availability for %s = %v, want %v", tc.domain, got, tc.available)
				}
			}
		})
	}
}

func TestMockRegisterSynthesizesPlausibleValues(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	resp, err := mock.Send(context.Background(), wire.Request{
		Action: actionRegister,
		Object: objectDomain,
		Attributes: map[string]any{
			"domain": "testsite.com",
			"period": 2,
		},
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	id, _ := resp.Attributes["id"].(string)
	if id == "" {
		t.Fatal("expected a placeholder order id")
	}

	expiry, err := time.Parse("2006-01-02", resp.Attributes["expiry_date"].(string))
	if err != nil {
		t.Fatalf("expiry_date is not a date: %v", err)
	}
	if !expiry.After(time.Now()) {
		t.Fatalf("expiry %v must be in the future", expiry)
	}
}

func TestMockRegisterTakenDomainFails(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	_, err := mock.Send(context.Background(), wire.Request{
		Action:     actionRegister,
		Object:     objectDomain,
		Attributes: map[string]any{"domain": "takensite.com"},
	})

	var provErr *wire.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Retryable() {
		t.Fatal("domain-taken rejection must not be retryable")
	}
}

func TestMockEppCodeStable(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	fetch := func() string {
		resp, err := mock.Send(context.Background(), wire.Request{
			Action:     actionAuthCode,
			Object:     objectDomain,
			Attributes: map[string]any{"domain": "testsite.com"},
		})
		if err != nil {
			t.Fatalf("auth code fetch failed: %v", err)
		}
		code, _ := resp.Attributes["auth_code"].(string)
		return code
	}

	first, second := fetch(), fetch()
	if first == "" || first != second {
		t.Fatalf("epp code must be stable, got %q and %q", first, second)
	}
}
