package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	accountdomain "github.com/badrx15/creavisionbot/internal/account/domain"
	"github.com/badrx15/creavisionbot/internal/authorization"
	"github.com/badrx15/creavisionbot/internal/clock"
	"github.com/badrx15/creavisionbot/internal/config"
	conversationdomain "github.com/badrx15/creavisionbot/internal/conversation/domain"
	ledgerdomain "github.com/badrx15/creavisionbot/internal/ledger/domain"
	meteringdomain "github.com/badrx15/creavisionbot/internal/metering/domain"
	"github.com/badrx15/creavisionbot/internal/observability"
	obsmiddleware "github.com/badrx15/creavisionbot/internal/observability/logger"
	obsmetrics "github.com/badrx15/creavisionbot/internal/observability/metrics"
	obstracing "github.com/badrx15/creavisionbot/internal/observability/tracing"
	paymentdomain "github.com/badrx15/creavisionbot/internal/payment/domain"
	"github.com/badrx15/creavisionbot/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
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
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	clock           clock.Clock
	authzSvc        authorization.Service
	accountSvc      accountdomain.Service
	ledgerSvc       ledgerdomain.Service
	conversationSvc conversationdomain.Service
	meteringSvc     meteringdomain.Service
	paymentSvc      paymentdomain.Service
	webhookSvc      paymentdomain.WebhookService
	messageLimiter  *ratelimit.MessageLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Clock           clock.Clock
	AuthzSvc        authorization.Service
	AccountSvc      accountdomain.Service
	LedgerSvc       ledgerdomain.Service
	ConversationSvc conversationdomain.Service
	MeteringSvc     meteringdomain.Service
	PaymentSvc      paymentdomain.Service
	WebhookSvc      paymentdomain.WebhookService
	MessageLimiter  *ratelimit.MessageLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		clock:           p.Clock,
		authzSvc:        p.AuthzSvc,
		accountSvc:      p.AccountSvc,
		ledgerSvc:       p.LedgerSvc,
		conversationSvc: p.ConversationSvc,
		meteringSvc:     p.MeteringSvc,
		paymentSvc:      p.PaymentSvc,
		webhookSvc:      p.WebhookSvc,
		messageLimiter:  p.MessageLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerPaymentRoutes()
	svc.registerUserRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPaymentRoutes() {
	r := s.engine

	r.GET("/packages", s.ListPackages)

	payments := r.Group("/payments")
	{
		payments.GET("/success", s.PaymentSuccess)
		payments.GET("/cancel", s.PaymentCancel)
		payments.GET("/:payment_id", s.GetPayment)
		payments.POST("/:payment_id/verify", s.VerifyPayment)
	}

	// -------- Payment Webhooks --------
	r.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerUserRoutes() {
	users := s.engine.Group("/users/:user_id")

	users.POST("/messages", s.MessageRateLimit(), s.SendMessage)
	users.DELETE("/conversation", s.ResetConversation)
	users.GET("/balance", s.GetBalance)
	users.GET("/usage", s.ListUsage)
	users.PUT("/persona", s.SetPersona)
	users.POST("/payments", s.CreatePayment)
	users.GET("/payments", s.ListUserPayments)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AdminRequired())

	// -------- Users --------
	admin.GET("/users",
		s.RequireAction(authorization.ObjectUser, authorization.ActionUserView),
		s.AdminListUsers,
	)
	admin.PUT("/users/:user_id/admin",
		s.RequireAction(authorization.ObjectUser, authorization.ActionUserPromote),
		s.AdminSetAdmin,
	)
	admin.DELETE("/users/:user_id",
		s.RequireAction(authorization.ObjectUser, authorization.ActionUserDelete),
		s.AdminDeleteUser,
	)
	admin.POST("/users/:user_id/credits",
		s.RequireAction(authorization.ObjectCredits, authorization.ActionCreditGrant),
		s.AdminGrantCredits,
	)
	admin.GET("/users/:user_id/usage",
		s.RequireAction(authorization.ObjectUsage, authorization.ActionUsageView),
		s.ListUsage,
	)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
