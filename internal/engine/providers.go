package engine

import (
	"golang.org/x/oauth2"

	"photoframe-sync/internal/domain"
	"photoframe-sync/internal/provider"
	"photoframe-sync/internal/provider/localdir"
	"photoframe-sync/internal/provider/restphotos"
)

// RegisterProviders populates the provider registry from cfg's
// provider_config map. Exported so cmd/photoframectl can build the same
// Provider the daemon would, without duplicating the factory wiring.
func RegisterProviders(cfg Config) {
	registerBuiltins(cfg)
}

// registerBuiltins populates the provider registry from the resolved
// Config's provider_config map, just before the engine looks up
// cfg.ProviderKey (spec §4.2 "a deployment uses exactly one Provider at a
// time"; SPEC_FULL.md's startup-time map[string]ProviderFactory registry).
func registerBuiltins(cfg Config) {
	provider.Register("localdir", func() (domain.Provider, error) {
		root := cfg.ProviderConfig["root"]
		if root == "" {
			root = cfg.CacheDir
		}
		return localdir.New("localdir", root), nil
	})

	provider.Register("restphotos", func() (domain.Provider, error) {
		oauthConf := &oauth2.Config{
			ClientID:     cfg.ProviderConfig["client_id"],
			ClientSecret: cfg.ProviderConfig["client_secret"],
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.ProviderConfig["auth_url"],
				TokenURL: cfg.ProviderConfig["token_url"],
			},
		}
		tokens := restphotos.FileTokenStore{Path: cfg.TokenPath}
		return restphotos.New("restphotos", cfg.ProviderConfig["base_url"], oauthConf, tokens), nil
	})
}
