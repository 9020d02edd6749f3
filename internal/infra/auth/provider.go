// Package auth selects the identity provider implementation from
// configuration.
package auth

import (
	"context"
	"log/slog"

	"flagfeed/config"
	"flagfeed/internal/domain/service"
	"flagfeed/internal/infra/auth/firebase"
	"flagfeed/internal/infra/auth/local"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// ProviderParams holds dependencies for identity provider selection.
type ProviderParams struct {
	fx.In

	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

// NewIdentityProvider creates the identity provider named by
// identity.provider: "firebase" for the hosted service, "local" for the
// in-memory development provider.
func NewIdentityProvider(params ProviderParams) (service.IdentityProvider, error) {
	provider := "firebase"
	if params.Config.Identity != nil && params.Config.Identity.Provider != "" {
		provider = params.Config.Identity.Provider
	}

	switch provider {
	case "firebase":
		return firebase.NewIdentityProvider(firebase.IdentityParams{
			Ctx:    params.Ctx,
			Config: params.Config,
			Logger: params.Logger,
		})
	case "local":
		params.Logger.Warn("Using in-memory identity provider; accounts will not survive a restart")

		return local.NewIdentityProvider(params.Config)
	default:
		return nil, errors.Errorf("unsupported identity provider: %s", provider)
	}
}
