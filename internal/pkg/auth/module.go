package auth

import (
	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"go.uber.org/fx"
)

// Module provides token verification and user id hashing via fx.
var Module = fx.Options(
	fx.Provide(newUserHasher),
	fx.Provide(newTokenStrategy),
)

type strategyParams struct {
	fx.In

	Config *config.Config
}

func newUserHasher(p strategyParams) UserHasher {
	return NewArgon2Hasher(p.Config.UserIDHashSalt)
}

func newTokenStrategy(p strategyParams) Strategy {
	return NewJWTStrategy(p.Config.JWTSecret, Options{})
}
