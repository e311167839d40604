package hosting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateSite(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sites" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer panel-token" {
			t.Errorf("authorization header = %q", got)
		}

		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["plan"] != "starter" || payload["domain"] != "shop.example.com" {
			t.Errorf("unexpected payload %v", payload)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"account_id":     "HW-1001",
			"admin_password": "s3cret",
			"status":         "active",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "panel-token")
	site, err := client.CreateSite(context.Background(), CreateSiteRequest{
		Plan:       "starter",
		Domain:     "shop.example.com",
		AdminEmail: "owner@example.com",
	})
	if err != nil {
		t.Fatalf("CreateSite: %v", err)
	}
	if site.AccountID != "HW-1001" || site.AdminPassword != "s3cret" {
		t.Fatalf("unexpected site %+v", site)
	}
}

func TestErrorRetryability(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"bad request", http.StatusBadRequest, false},
		{"conflict", http.StatusConflict, false},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client := NewClient(srv.URL, "panel-token")
			err := client.SuspendSite(context.Background(), "HW-1001")
			if err == nil {
				t.Fatal("expected error")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %T", err)
			}
			if apiErr.Retryable() != tc.retryable {
				t.Errorf("Retryable() = %v, want %v", apiErr.Retryable(), tc.retryable)
			}
		})
	}
}

func TestTransportFailureIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, "panel-token")
	err := client.DeleteSite(context.Background(), "HW-1001")
	if err == nil {
		t.Fatal("expected error against closed server")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %T: %v", err, err)
	}
	if !reqErr.Retryable() {
		t.Error("transport failures should be retryable")
	}
}

func TestCreateSiteValidation(t *testing.T) {
	t.Parallel()

	client := NewClient("http://unused.invalid", "panel-token")
	if _, err := client.CreateSite(context.Background(), CreateSiteRequest{Domain: "x.com"}); err == nil {
		t.Fatal("expected error for missing plan")
	}
}
