// Package server exposes the pipeline over HTTP with gin.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	bracketdomain "github.com/groupcart/groupcart/internal/bracket/domain"
	campaigndomain "github.com/groupcart/groupcart/internal/campaign/domain"
	"github.com/groupcart/groupcart/internal/config"
	invoicedomain "github.com/groupcart/groupcart/internal/invoice/domain"
	orderdomain "github.com/groupcart/groupcart/internal/order/domain"
	paymentdomain "github.com/groupcart/groupcart/internal/payment/domain"
	pledgedomain "github.com/groupcart/groupcart/internal/pledge/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// NewEngine builds the gin engine with recovery, request logging and
// error mapping installed.
func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
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
	engine      *gin.Engine
	cfg         config.Config
	campaignSvc campaigndomain.Service
	bracketSvc  bracketdomain.Service
	pledgeSvc   pledgedomain.Service
	invoiceSvc  invoicedomain.Service
	paymentSvc  paymentdomain.Service
	orderSvc    orderdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	CampaignSvc campaigndomain.Service
	BracketSvc  bracketdomain.Service
	PledgeSvc   pledgedomain.Service
	InvoiceSvc  invoicedomain.Service
	PaymentSvc  paymentdomain.Service
	OrderSvc    orderdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		campaignSvc: p.CampaignSvc,
		bracketSvc:  p.BracketSvc,
		pledgeSvc:   p.PledgeSvc,
		invoiceSvc:  p.InvoiceSvc,
		paymentSvc:  p.PaymentSvc,
		orderSvc:    p.OrderSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	campaigns := v1.Group("/campaigns")
	campaigns.POST("", s.CreateCampaign)
	campaigns.GET("/:id", s.GetCampaign)
	campaigns.POST("/:id/open", s.OpenCampaign)
	campaigns.POST("/:id/lock", s.LockCampaign)
	campaigns.POST("/:id/cancel", s.CancelCampaign)
	campaigns.GET("/:id/quote", s.QuoteCampaign)
	campaigns.POST("/:id/brackets", s.CreateBracket)
	campaigns.GET("/:id/brackets", s.ListBrackets)
	campaigns.GET("/:id/invoices", s.ListCampaignInvoices)
	campaigns.GET("/:id/orders", s.ListCampaignOrders)

	pledges := v1.Group("/pledges")
	pledges.POST("", s.CreatePledge)
	pledges.PATCH("/:id", s.UpdatePledgeQuantity)
	pledges.POST("/:id/withdraw", s.WithdrawPledge)

	invoices := v1.Group("/invoices")
	invoices.GET("/:id", s.GetInvoice)
	invoices.POST("/:id/send", s.SendInvoice)
	invoices.POST("/:id/cancel", s.CancelInvoice)
	invoices.POST("/:id/confirm", s.ConfirmInvoicePaid)
	invoices.GET("/:id/payments", s.ListInvoicePayments)
	invoices.POST("/:id/payments", s.InitiatePayment)
	invoices.POST("/:id/payments/offline", s.RecordOfflinePayment)

	payments := v1.Group("/payments")
	payments.GET("/return", s.PaymentReturn)
	payments.GET("/:id", s.GetPayment)
	payments.POST("/:id/retry", s.RetryPayment)

	v1.POST("/webhooks/payments", s.PaymentWebhook)

	orders := v1.Group("/orders")
	orders.GET("/:id", s.GetOrder)
}
