package di

import (
	"fmt"

	"github.com/TwigBush/methodsec/internal/authz"
	"github.com/TwigBush/methodsec/internal/config"
	"github.com/TwigBush/methodsec/internal/sample"
)

// ProvideAuthorizer picks the hasPermission backend named by the config.
func ProvideAuthorizer(p config.Permissions, docs *sample.Store) (authz.Authorizer, error) {
	switch p.Backend {
	case "openfga":
		return authz.NewOpenFGA(authz.OpenFGAConfig{
			APIURL:   p.OpenFGA.APIURL,
			StoreID:  p.OpenFGA.StoreID,
			APIToken: p.OpenFGA.APIToken,
			ModelID:  p.OpenFGA.ModelID,
		})
	case "allow":
		return &authz.Static{AlwaysAllow: true}, nil
	case "", "deny":
		return authz.DenyAll{}, nil
	case "documents":
		return docs, nil
	default:
		return nil, &authz.InvalidConfigurationError{
			Field:  "permissions.backend",
			Reason: fmt.Sprintf("unknown backend %q", p.Backend),
		}
	}
}
