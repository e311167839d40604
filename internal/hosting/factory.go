package hosting

import (
	"log/slog"

	"github.com/hostweaveapp/hostweave/internal/config"
)

// NewFromConfig returns the live panel client when credentials are present
// and the in-memory mock otherwise.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) Provisioner {
	if cfg.HostingLive() {
		return NewClient(cfg.HostingAPIURL, cfg.HostingAPIToken)
	}
	logger.Warn("no hosting panel token configured, using mock provisioner")
	return NewMockProvisioner()
}
