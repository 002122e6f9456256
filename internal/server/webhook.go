package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	gatewaypkg "github.com/stellarwp/restrict-content-sub000/internal/gateway"
	"github.com/stellarwp/restrict-content-sub000/internal/observability/logger"
	paymentdomain "github.com/stellarwp/restrict-content-sub000/internal/payment/domain"
	"go.uber.org/zap"
)

type webhookRequest struct {
	Status          string          `json:"status"`
	PaymentID       string          `json:"payment_id"`
	TransactionID   string          `json:"transaction_id"`
	SubscriptionKey string          `json:"subscription_key"`
	Amount          decimal.Decimal `json:"amount"`
}

// @Summary      Gateway Webhook
// @Description  Apply a gateway transaction status callback
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        gateway  path  string  true  "Gateway"
// @Param        request body webhookRequest true "Webhook Request"
// @Success      200  {object}  map[string]string
// @Router       /webhooks/{gateway} [post]
func (s *Server) HandleWebhook(c *gin.Context) {
	gatewayID := strings.ToLower(strings.TrimSpace(c.Param("gateway")))
	if !s.gateways.Exists(gatewayID) {
		AbortWithError(c, gatewaypkg.ErrUnknownGateway)
		return
	}

	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	status := paymentdomain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	switch status {
	case paymentdomain.StatusComplete, paymentdomain.StatusFailed, paymentdomain.StatusRefunded:
	default:
		AbortWithError(c, newValidationError("status", "invalid_status", "unsupported payment status"))
		return
	}

	s.log.Info("gateway webhook received",
		zap.String("gateway", gatewayID),
		zap.String("status", string(status)),
		zap.String("transaction_id", logger.MaskTransactionID(req.TransactionID)),
	)

	ctx := c.Request.Context()
	payment, err := s.resolveWebhookPayment(c, gatewayID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.payments.UpdateStatus(ctx, payment.ID, status, strings.TrimSpace(req.TransactionID)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"payment_id": payment.ID.String(),
		"status":     string(status),
	}})
}

// resolveWebhookPayment finds the ledger row a callback refers to. A
// recurring-billing callback carries only the subscription key; it
// opens a fresh renewal row against the bound membership.
func (s *Server) resolveWebhookPayment(c *gin.Context, gatewayID string, req webhookRequest) (*paymentdomain.Payment, error) {
	ctx := c.Request.Context()

	if id := strings.TrimSpace(req.PaymentID); id != "" {
		parsed, err := snowflake.ParseString(id)
		if err != nil {
			return nil, newValidationError("payment_id", "invalid_payment_id", "invalid payment_id")
		}
		return s.payments.Find(ctx, parsed)
	}

	if txid := strings.TrimSpace(req.TransactionID); txid != "" {
		payment, err := s.payments.FindByTransactionID(ctx, txid)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, paymentdomain.ErrPaymentNotFound) {
			return nil, err
		}
	}

	key := strings.TrimSpace(req.SubscriptionKey)
	if key == "" {
		return nil, newValidationError("subscription_key", "unresolvable_payment", "no payment_id, transaction_id or subscription_key matched")
	}

	membership, err := s.memberships.FindBySubscriptionKey(ctx, key)
	if err != nil {
		return nil, err
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = membership.RecurringAmount
	}
	payment, err := s.payments.Insert(ctx, paymentdomain.InsertParams{
		CustomerID:      membership.CustomerID,
		MembershipID:    membership.ID,
		LevelID:         membership.LevelID,
		TransactionID:   strings.TrimSpace(req.TransactionID),
		TransactionType: paymentdomain.TypeRenewal,
		Amount:          amount,
		Subtotal:        amount,
		Gateway:         gatewayID,
	})
	if err != nil && !errors.Is(err, paymentdomain.ErrDuplicateTransaction) {
		return nil, err
	}
	return payment, nil
}
