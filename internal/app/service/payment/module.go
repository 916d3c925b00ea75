package payment

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/keybase-market/pimarket/internal/app/service/donation"
	"github.com/keybase-market/pimarket/internal/app/service/paymentlog"
	"github.com/keybase-market/pimarket/internal/platform/pi"
)

var Module = fx.Options(
	fx.Provide(
		func(client *pi.Client, donations *donation.Service, events *paymentlog.Service, log *zap.SugaredLogger) *Service {
			return NewService(client, donations, events, log)
		},
		func(s *Service) Manager { return s },
	),
)
