package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stellarwp/restrict-content-sub000/internal/clock"
	"github.com/stellarwp/restrict-content-sub000/internal/config"
	customerdomain "github.com/stellarwp/restrict-content-sub000/internal/customer/domain"
	discountdomain "github.com/stellarwp/restrict-content-sub000/internal/discount/domain"
	gatewaypkg "github.com/stellarwp/restrict-content-sub000/internal/gateway"
	leveldomain "github.com/stellarwp/restrict-content-sub000/internal/level/domain"
	membershipdomain "github.com/stellarwp/restrict-content-sub000/internal/membership/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/observability/tracing"
	paymentdomain "github.com/stellarwp/restrict-content-sub000/internal/payment/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/registration"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewEngine builds the gin engine with recovery and tracing wired in.
func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(tracing.GinMiddleware())
	return engine
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Config      config.Config
	Engine      *gin.Engine
	Calculator  *registration.Calculator
	Gateways    *gatewaypkg.Registry
	Levels      leveldomain.Repository
	Customers   customerdomain.Repository
	Discounts   discountdomain.Service
	Memberships membershipdomain.Service
	Payments    paymentdomain.Service
}

type Server struct {
	db          *gorm.DB
	log         *zap.Logger
	clk         clock.Clock
	cfg         config.Config
	engine      *gin.Engine
	calculator  *registration.Calculator
	gateways    *gatewaypkg.Registry
	levels      leveldomain.Repository
	customers   customerdomain.Repository
	discounts   discountdomain.Service
	memberships membershipdomain.Service
	payments    paymentdomain.Service
	limiter     *rateLimiter
}

func NewServer(p Params) *Server {
	return &Server{
		db:          p.DB,
		log:         p.Log.Named("server"),
		clk:         p.Clock,
		cfg:         p.Config,
		engine:      p.Engine,
		calculator:  p.Calculator,
		gateways:    p.Gateways,
		levels:      p.Levels,
		customers:   p.Customers,
		discounts:   p.Discounts,
		memberships: p.Memberships,
		payments:    p.Payments,
		limiter:     newRateLimiter(10, time.Minute),
	}
}

// RegisterRoutes mounts the public API surface.
func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api")
	api.GET("/levels", s.ListLevels)
	api.POST("/registrations", s.CreateRegistration)
	api.POST("/webhooks/:gateway", s.HandleWebhook)
	api.GET("/reports/earnings", s.EarningsReport)
}

// RunHTTP starts the listener under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
