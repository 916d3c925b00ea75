package identity

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/keybase-market/pimarket/internal/platform/pi"
)

// Module exposes the identity service via Fx.
var Module = fx.Options(
	fx.Provide(func(db *gorm.DB, client *pi.Client, log *zap.SugaredLogger) *Service {
		return NewService(db, client, log)
	}),
)
