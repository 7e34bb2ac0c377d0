package auth

import (
	"fmt"
	"log/slog"

	"github.com/cephasgm/safety-sync/internal/config"
)

// NewFromConfig creates the Authenticator described by cfg. A nil config
// yields a nil Authenticator: privileged endpoints are then not served.
func NewFromConfig(cfg *config.AuthConfig) (*Authenticator, error) {
	if cfg == nil {
		slog.Info("auth: no configuration, privileged endpoints disabled")
		return nil, nil
	}

	secret, err := cfg.GetSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to load auth secret: %w", err)
	}

	validator, err := NewHMACValidator(secret, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	return NewAuthenticator(validator, cfg.PrivilegedRoles, "")
}
