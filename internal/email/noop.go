package email

import "context"

// NoopProvider drops all mail. Used when no email settings are configured.
type NoopProvider struct{}

func NewNoopProvider() *NoopProvider {
	return &NoopProvider{}
}

func (n *NoopProvider) SendEmail(_ context.Context, _ *Email) error {
	return nil
}
