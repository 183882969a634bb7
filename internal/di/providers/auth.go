package providers

import (
	"github.com/samber/do/v2"

	"github.com/mstimer/mstimer-server/internal/auth"
	"github.com/mstimer/mstimer-server/internal/config"
	"github.com/mstimer/mstimer-server/internal/logger"
)

// AuthKey wraps the page token key bytes.
type AuthKey []byte

// ProvideAuthKey loads or generates the page token key.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.Data.BasePath)
	if err != nil {
		return nil, err
	}

	cfg.Auth.PageTokenKey = key

	log.Info("Page token key loaded", "page_token_duration", cfg.Auth.PageTokenDuration)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO page token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authKey := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService([]byte(authKey), cfg.Auth.PageTokenDuration)
}
