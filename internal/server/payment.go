package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/groupcart/groupcart/internal/payment/domain"
	"github.com/groupcart/groupcart/internal/payment/gateway"
)

type initiatePaymentRequest struct {
	BuyerOrgID string `json:"buyer_org_id"`
}

func (s *Server) InitiatePayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	payment, err := s.paymentSvc.InitiateOnlinePayment(c.Request.Context(), id, req.BuyerOrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) RecordOfflinePayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req paymentdomain.OfflinePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	req.InvoiceID = id

	payment, err := s.paymentSvc.RecordOfflinePayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) ListInvoicePayments(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	payments, err := s.paymentSvc.ListByInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

// PaymentReturn is where the gateway redirects the buyer after checkout.
// The attempt is reconciled against the gateway's current state so the
// caller sees the outcome even when the webhook has not landed yet.
func (s *Server) PaymentReturn(c *gin.Context) {
	providerPaymentID := strings.TrimSpace(c.Query("payment_intent"))
	if providerPaymentID == "" {
		AbortWithError(c, newValidationError("payment_intent", "required", "payment_intent is required"))
		return
	}

	payment, err := s.paymentSvc.ProcessGatewayReturn(c.Request.Context(), providerPaymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) GetPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	payment, err := s.paymentSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

type retryPaymentRequest struct {
	BuyerOrgID string `json:"buyer_org_id"`
}

func (s *Server) RetryPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req retryPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	payment, err := s.paymentSvc.RetryPayment(c.Request.Context(), id, req.BuyerOrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

// PaymentWebhook receives gateway events. Signature verification and
// dedup happen in the service; events we do not consume are acked with
// 200 so the provider stops redelivering them.
func (s *Server) PaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "unreadable request body"))
		return
	}

	payment, err := s.paymentSvc.HandleWebhook(c.Request.Context(), payload, c.Request.Header)
	if err != nil {
		if errors.Is(err, gateway.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "data": payment})
}
