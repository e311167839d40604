package registrar

import (
	"log/slog"

	"github.com/hostweaveapp/hostweave/internal/cache"
	"github.com/hostweaveapp/hostweave/internal/config"
)

// NewFromConfig builds a client with the live HTTP transport when registrar
// credentials are configured, and the deterministic mock transport otherwise.
// The transport choice is made here, once, and injected.
func NewFromConfig(cfg *config.Config, cacheProvider cache.Provider, logger *slog.Logger) *Client {
	var transport Transport
	if cfg.RegistrarLive() {
		transport = NewHTTPTransport(cfg.RegistrarAPIURL, cfg.RegistrarUsername, cfg.RegistrarAPIKey)
	} else {
		if logger != nil {
			logger.Info("no registrar credentials configured, using mock transport")
		}
		transport = NewMockTransport()
	}
	return NewClient(transport, cacheProvider, logger)
}
