// Package hosting provisions web hosting accounts through the control
// panel's JSON API.
package hosting

import (
	"context"
	"fmt"
)

// CreateSiteRequest describes the account to provision.
type CreateSiteRequest struct {
	Plan       string
	Domain     string
	AdminEmail string
}

// Site is a provisioned hosting account as reported by the panel.
type Site struct {
	AccountID     string
	AdminPassword string
	Status        string
}

// Provisioner is the control panel surface the fulfillment flow needs.
type Provisioner interface {
	CreateSite(ctx context.Context, req CreateSiteRequest) (*Site, error)
	SuspendSite(ctx context.Context, accountID string) error
	DeleteSite(ctx context.Context, accountID string) error
}

// APIError is a non-2xx reply from the panel. Server-side failures are
// retryable, client-side rejections are not.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hosting panel returned status %d: %s", e.Status, e.Body)
}

func (e *APIError) Retryable() bool {
	return e.Status >= 500
}

// RequestError is a transport-level failure (timeout, connection reset)
// before any panel reply arrived. Always retryable.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("hosting panel request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Retryable() bool { return true }
