// Package email sends transactional order notifications.
package email

import (
	"context"
	"fmt"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	Provider string
	APIKey   string
	From     string
}

func NewProvider(config Config) (Provider, error) {
	switch config.Provider {
	case "resend":
		return NewResendProvider(config.APIKey, config.From), nil
	case "", "none":
		return NewNoopProvider(), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be 'resend' or 'none'")
	}
}
