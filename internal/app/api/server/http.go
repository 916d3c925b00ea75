package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/keybase-market/pimarket/docs"
	"github.com/keybase-market/pimarket/internal/app/api/handlers"
	mw "github.com/keybase-market/pimarket/internal/app/api/middleware"
	"github.com/keybase-market/pimarket/internal/app/service/donation"
	"github.com/keybase-market/pimarket/internal/app/service/identity"
	"github.com/keybase-market/pimarket/internal/app/service/payment"
	"github.com/keybase-market/pimarket/internal/app/service/seller"
	"github.com/keybase-market/pimarket/internal/app/service/statistics"
	cfgpkg "github.com/keybase-market/pimarket/pkg/config"
	metrics "github.com/keybase-market/pimarket/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(r *gin.Engine, log *zap.SugaredLogger, cfg *cfgpkg.Config, db *gorm.DB,
	mgr payment.Manager, users *identity.Service, donations *donation.Service,
	sellers *seller.Service, stats *statistics.Service) {
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())

	// Identity verification carries its own token in the body.
	handlers.RegisterIdentityRoutes(apiV1.Group("/identity"), users, cfg, log)

	// Payment callbacks authenticate with the Pi bearer token.
	payments := apiV1.Group("/payments")
	payments.Use(mw.PiAuthMiddleware(users))
	handlers.RegisterPaymentRoutes(payments, mgr)

	sellerGroup := apiV1.Group("/seller")
	sellerGroup.Use(mw.PiAuthMiddleware(users))
	handlers.RegisterSellerRoutes(sellerGroup, sellers)

	admin := apiV1.Group("/admin")
	admin.Use(mw.AdminAuthMiddleware(&cfg.AdminAuth, db))
	handlers.RegisterAdminRoutes(admin, donations, stats, users, sellers, mgr)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
