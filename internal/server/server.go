package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hydranet/aquabill/internal/bill"
	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	"github.com/hydranet/aquabill/internal/billingoverview"
	billingoverviewdomain "github.com/hydranet/aquabill/internal/billingoverview/domain"
	"github.com/hydranet/aquabill/internal/config"
	"github.com/hydranet/aquabill/internal/connection"
	"github.com/hydranet/aquabill/internal/events"
	"github.com/hydranet/aquabill/internal/observability"
	obsmiddleware "github.com/hydranet/aquabill/internal/observability/logger"
	obsmetrics "github.com/hydranet/aquabill/internal/observability/metrics"
	obstracing "github.com/hydranet/aquabill/internal/observability/tracing"
	"github.com/hydranet/aquabill/internal/payment"
	paymentdomain "github.com/hydranet/aquabill/internal/payment/domain"
	"github.com/hydranet/aquabill/internal/reconcile"
	reconciledomain "github.com/hydranet/aquabill/internal/reconcile/domain"
	"github.com/hydranet/aquabill/internal/scheduler"
	"github.com/hydranet/aquabill/internal/upstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	events.Module,
	upstream.Module,
	bill.Module,
	connection.Module,
	billingoverview.Module,
	payment.Module,
	reconcile.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
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

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	engine             *gin.Engine
	cfg                config.Config
	billSvc            billdomain.Service
	billingOverviewSvc billingoverviewdomain.Service
	paymentSvc         paymentdomain.Service
	reconcileSvc       reconciledomain.Service
}

type ServerParams struct {
	fx.In

	Gin                *gin.Engine
	Cfg                config.Config
	BillSvc            billdomain.Service
	BillingOverviewSvc billingoverviewdomain.Service
	PaymentSvc         paymentdomain.Service
	ReconcileSvc       reconciledomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:             p.Gin,
		cfg:                p.Cfg,
		billSvc:            p.BillSvc,
		billingOverviewSvc: p.BillingOverviewSvc,
		paymentSvc:         p.PaymentSvc,
		reconcileSvc:       p.ReconcileSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	connections := api.Group("/connections/:connection_id")
	connections.GET("/billing-summary", s.GetBillingSummary)
	connections.GET("/bills", s.ListBills)
	connections.GET("/bills/:bill_id", s.GetBill)
	connections.POST("/payments", s.StartPayment)
	connections.GET("/payments", s.ListPaymentAttempts)
	connections.GET("/payments/pending", s.GetPendingPayment)
	connections.POST("/payments/reconcile", s.ReconcilePayment)
}
