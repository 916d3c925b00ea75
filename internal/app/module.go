package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/keybase-market/pimarket/internal/app/api/server"
	"github.com/keybase-market/pimarket/internal/app/service/donation"
	"github.com/keybase-market/pimarket/internal/app/service/identity"
	"github.com/keybase-market/pimarket/internal/app/service/payment"
	"github.com/keybase-market/pimarket/internal/app/service/paymentlog"
	"github.com/keybase-market/pimarket/internal/app/service/seller"
	"github.com/keybase-market/pimarket/internal/app/service/statistics"
	"github.com/keybase-market/pimarket/internal/platform/db"
	"github.com/keybase-market/pimarket/internal/platform/pi"
	"github.com/keybase-market/pimarket/pkg/config"
	"github.com/keybase-market/pimarket/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	pi.Module,
	server.Module,
	paymentlog.Module,
	donation.Module,
	identity.Module,
	payment.Module,
	seller.Module,
	statistics.Module,
)
