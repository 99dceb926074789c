package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/htmlpdf/internal/accountingmetrics"
	"github.com/smallbiznis/htmlpdf/internal/analytics"
	analyticsdomain "github.com/smallbiznis/htmlpdf/internal/analytics/domain"
	"github.com/smallbiznis/htmlpdf/internal/analytics/statement"
	"github.com/smallbiznis/htmlpdf/internal/apikey"
	apikeydomain "github.com/smallbiznis/htmlpdf/internal/apikey/domain"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	"github.com/smallbiznis/htmlpdf/internal/config"
	"github.com/smallbiznis/htmlpdf/internal/entitlement"
	"github.com/smallbiznis/htmlpdf/internal/observability"
	obsmiddleware "github.com/smallbiznis/htmlpdf/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/htmlpdf/internal/observability/metrics"
	obstracing "github.com/smallbiznis/htmlpdf/internal/observability/tracing"
	"github.com/smallbiznis/htmlpdf/internal/payment"
	paymentdomain "github.com/smallbiznis/htmlpdf/internal/payment/domain"
	"github.com/smallbiznis/htmlpdf/internal/pdfgen"
	pdfgendomain "github.com/smallbiznis/htmlpdf/internal/pdfgen/domain"
	"github.com/smallbiznis/htmlpdf/internal/ratelimit"
	"github.com/smallbiznis/htmlpdf/internal/renderer"
	"github.com/smallbiznis/htmlpdf/internal/subscription"
	"github.com/smallbiznis/htmlpdf/internal/usage"
	"github.com/smallbiznis/htmlpdf/internal/usage/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	apikey.Module,
	subscription.Module,
	usage.Module,
	reconcile.Module,
	entitlement.Module,
	renderer.Module,
	ratelimit.Module,
	pdfgen.Module,
	payment.Module,
	analytics.Module,
	accountingmetrics.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, exposeDetail bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware(exposeDetail))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics, cfg.IsDevelopment())
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	jwtSecret    []byte
	keyStore     apikeydomain.KeyStore
	apiKeySvc    apikeydomain.Service
	pipeline     pdfgendomain.Pipeline
	analyticsSvc analyticsdomain.Service
	statements   statement.Generator
	checkoutSvc  paymentdomain.CheckoutService
	paymentSvc   paymentdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	KeyStore     apikeydomain.KeyStore
	APIKeySvc    apikeydomain.Service
	Pipeline     pdfgendomain.Pipeline
	AnalyticsSvc analyticsdomain.Service
	Statements   statement.Generator
	CheckoutSvc  paymentdomain.CheckoutService
	PaymentSvc   paymentdomain.Service
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		log:          log.Named("http.server"),
		clock:        p.Clock,
		jwtSecret:    []byte(p.Cfg.AuthJWTSecret),
		keyStore:     p.KeyStore,
		apiKeySvc:    p.APIKeySvc,
		pipeline:     p.Pipeline,
		analyticsSvc: p.AnalyticsSvc,
		statements:   p.Statements,
		checkoutSvc:  p.CheckoutSvc,
		paymentSvc:   p.PaymentSvc,
	}
	if svc.clock == nil {
		svc.clock = clock.SystemClock{}
	}
	if len(svc.jwtSecret) == 0 {
		svc.log.Warn("AUTH_JWT_SECRET is empty; owner routes will reject every request")
	}

	svc.registerRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.Health)

	api := s.engine.Group("/api")

	api.POST("/pdf/generate", s.GeneratePDF)
	api.GET("/usage/status", s.APIKeyRequired(), s.GetUsageStatus)
	api.POST("/webhooks/stripe", s.HandleStripeWebhook)

	owner := api.Group("", s.OwnerAuthRequired())
	{
		owner.GET("/keys", s.ListAPIKeys)
		owner.POST("/keys", s.CreateAPIKey)
		owner.DELETE("/keys", s.RevokeAPIKey)
		owner.DELETE("/keys/:id", s.RevokeAPIKey)

		owner.GET("/analytics/usage", s.GetUsageAnalytics)
		owner.GET("/analytics/usage/statement.pdf", s.GetUsageStatement)

		owner.POST("/billing/checkout", s.CreateCheckoutSession)
	}
}
