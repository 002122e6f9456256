package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	gatewaypkg "github.com/stellarwp/restrict-content-sub000/internal/gateway"
	leveldomain "github.com/stellarwp/restrict-content-sub000/internal/level/domain"
	membershipdomain "github.com/stellarwp/restrict-content-sub000/internal/membership/domain"
	paymentdomain "github.com/stellarwp/restrict-content-sub000/internal/payment/domain"
	"github.com/stellarwp/restrict-content-sub000/internal/registration"
	"go.uber.org/zap"
)

type createRegistrationRequest struct {
	UserID        int64    `json:"user_id"`
	Email         string   `json:"email"`
	LevelID       string   `json:"level_id"`
	Gateway       string   `json:"gateway"`
	DiscountCodes []string `json:"discount_codes"`
	AutoRenew     *bool    `json:"auto_renew"`
}

type registrationResponse struct {
	MembershipID   string                   `json:"membership_id"`
	PaymentID      string                   `json:"payment_id"`
	Type           registration.Type        `json:"registration_type"`
	InitialTotal   string                   `json:"initial_total"`
	RecurringTotal string                   `json:"recurring_total"`
	Trialing       bool                     `json:"trialing"`
	AutoRenew      bool                     `json:"auto_renew"`
	ChargeRequest  gatewaypkg.ChargeRequest `json:"charge_request"`
}

// @Summary      Create Registration
// @Description  Price and begin a signup, renewal, upgrade or downgrade
// @Tags         registrations
// @Accept       json
// @Produce      json
// @Param        request body createRegistrationRequest true "Create Registration Request"
// @Success      200  {object}  registrationResponse
// @Router       /registrations [post]
func (s *Server) CreateRegistration(c *gin.Context) {
	var req createRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.UserID <= 0 {
		AbortWithError(c, newValidationError("user_id", "required", "user_id is required"))
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		AbortWithError(c, newValidationError("email", "required", "email is required"))
		return
	}
	if !s.limiter.Allow(strconv.FormatInt(req.UserID, 10)) {
		AbortWithError(c, &apiError{
			Status:  http.StatusTooManyRequests,
			Code:    "rate_limited",
			Message: "too many registration attempts",
		})
		return
	}

	levelID, err := snowflake.ParseString(strings.TrimSpace(req.LevelID))
	if err != nil {
		AbortWithError(c, newValidationError("level_id", "invalid_level_id", "invalid level_id"))
		return
	}

	gatewayID := strings.ToLower(strings.TrimSpace(req.Gateway))
	if gatewayID == "" {
		gatewayID = "manual"
	}
	if !s.gateways.Exists(gatewayID) {
		AbortWithError(c, gatewaypkg.ErrUnknownGateway)
		return
	}

	ctx := c.Request.Context()
	level, err := s.levels.FindByID(ctx, s.db, levelID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	customer, err := s.customers.FindOrCreate(ctx, s.db, req.UserID, strings.TrimSpace(req.Email))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	regType, previous, prevLevel, err := s.classifyRegistration(c, customer.ID, level)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reg := registration.Registration{
		Level:           *level,
		Type:            regType,
		CustomerTrialed: customer.HasTrialed,
	}
	if regType == registration.TypeNew && !level.SignupFee.IsZero() {
		reg.AddFee(registration.Fee{
			Description: "signup fee",
			Amount:      level.SignupFee,
		})
	}

	for _, code := range req.DiscountCodes {
		validated, err := s.discounts.Validate(ctx, code, level.ID, customer.ID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		reg.AddDiscount(registration.AppliedDiscount{
			Code:      validated.Code,
			Amount:    validated.Amount,
			Unit:      validated.Unit,
			Recurring: !validated.OneTime,
		})
	}

	prorationCredit := decimal.Zero
	if previous != nil && prevLevel != nil {
		prorationCredit = s.calculator.ProrationCredit(*prevLevel, previous.ExpirationDate)
		if !prorationCredit.IsZero() {
			reg.AddFee(registration.Fee{
				Description: "proration credit",
				Amount:      prorationCredit,
				Proration:   true,
			})
		}
	}

	totals := s.calculator.Totals(reg)
	trialing := s.calculator.TrialEligible(reg)
	requested := s.cfg.Billing.AutoRenewDefault
	if req.AutoRenew != nil {
		requested = *req.AutoRenew
	}
	autoRenew := s.calculator.AutoRenewAllowed(reg, gatewayID, totals, requested)

	var membership *membershipdomain.Membership
	if regType == registration.TypeRenewal {
		// A renewal bills the membership the customer already holds.
		membership = previous
	} else {
		var upgradedFrom *snowflake.ID
		if regType == registration.TypeUpgrade || regType == registration.TypeDowngrade {
			upgradedFrom = &previous.ID
		}
		membership, err = s.memberships.Create(ctx, membershipdomain.CreateParams{
			CustomerID:      customer.ID,
			LevelID:         level.ID,
			Gateway:         gatewayID,
			AutoRenew:       autoRenew,
			Trialing:        trialing,
			InitialAmount:   totals.Initial,
			RecurringAmount: totals.Recurring,
			MaximumRenewals: level.MaximumRenewals,
			UpgradedFrom:    upgradedFrom,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	charge := s.calculator.ChargeRequest(
		reg, totals, gatewayID, membership.SubscriptionKey,
		customer.UserID, customer.Email, autoRenew,
	)

	payment, err := s.payments.Insert(ctx, paymentdomain.InsertParams{
		CustomerID:      customer.ID,
		MembershipID:    membership.ID,
		LevelID:         level.ID,
		TransactionType: paymentType(regType),
		Amount:          totals.Initial,
		Subtotal:        level.Price,
		Credits:         prorationCredit,
		Fees:            charge.FeeAmount,
		DiscountAmount:  charge.DiscountAmount,
		DiscountCode:    firstDiscountCode(reg),
		Gateway:         gatewayID,
	})
	if err != nil && !errors.Is(err, paymentdomain.ErrDuplicateTransaction) {
		AbortWithError(c, err)
		return
	}

	// Only a pending membership activates through the pending-payment
	// pointer. Renewals settle through the ledger's renewal path.
	if membership.Status == membershipdomain.StatusPending {
		if err := s.memberships.AttachPendingPayment(ctx, membership.ID, payment.ID); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	// Free signups and zero-due manual checkouts have nothing to charge;
	// the registration completes on the spot.
	if level.IsFree() || (totals.Initial.IsZero() && gatewayID == "manual" && !trialing) {
		if err := s.payments.UpdateStatus(ctx, payment.ID, paymentdomain.StatusComplete, ""); err != nil {
			s.log.Error("complete zero-due registration", zap.Error(err),
				zap.String("payment_id", payment.ID.String()))
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": registrationResponse{
		MembershipID:   membership.ID.String(),
		PaymentID:      payment.ID.String(),
		Type:           regType,
		InitialTotal:   totals.Initial.String(),
		RecurringTotal: totals.Recurring.String(),
		Trialing:       trialing,
		AutoRenew:      autoRenew,
		ChargeRequest:  charge,
	}})
}

// classifyRegistration decides what this registration does to the
// customer's standing. A live membership on the same level renews; on
// another level it is superseded by an upgrade or downgrade. In
// multiple-membership mode a different level is simply a new,
// independent membership.
func (s *Server) classifyRegistration(c *gin.Context, customerID snowflake.ID, level *leveldomain.MembershipLevel) (registration.Type, *membershipdomain.Membership, *leveldomain.MembershipLevel, error) {
	ctx := c.Request.Context()
	previous, err := s.memberships.FindForCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrMembershipNotFound) {
			return registration.TypeNew, nil, nil, nil
		}
		return registration.TypeNew, nil, nil, err
	}
	if previous.Status != membershipdomain.StatusActive && previous.Status != membershipdomain.StatusCancelled {
		return registration.TypeNew, nil, nil, nil
	}

	if previous.LevelID == level.ID {
		return registration.TypeRenewal, previous, nil, nil
	}
	if s.cfg.Billing.MultipleMemberships {
		return registration.TypeNew, nil, nil, nil
	}

	prevLevel, err := s.levels.FindByID(ctx, s.db, previous.LevelID)
	if err != nil {
		return registration.TypeNew, nil, nil, err
	}
	if level.Price.GreaterThanOrEqual(prevLevel.Price) {
		return registration.TypeUpgrade, previous, prevLevel, nil
	}
	return registration.TypeDowngrade, previous, prevLevel, nil
}

func paymentType(t registration.Type) paymentdomain.Type {
	switch t {
	case registration.TypeRenewal:
		return paymentdomain.TypeRenewal
	case registration.TypeUpgrade:
		return paymentdomain.TypeUpgrade
	case registration.TypeDowngrade:
		return paymentdomain.TypeDowngrade
	default:
		return paymentdomain.TypeNew
	}
}

func firstDiscountCode(reg registration.Registration) string {
	if len(reg.Discounts) == 0 {
		return ""
	}
	return reg.Discounts[0].Code
}
