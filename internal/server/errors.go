package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	discountdomain "github.com/stellarwp/restrict-content-sub000/internal/discount/domain"
	gatewaypkg "github.com/stellarwp/restrict-content-sub000/internal/gateway"
	leveldomain "github.com/stellarwp/restrict-content-sub000/internal/level/domain"
	membershipdomain "github.com/stellarwp/restrict-content-sub000/internal/membership/domain"
	paymentdomain "github.com/stellarwp/restrict-content-sub000/internal/payment/domain"
)

// apiError is the wire-facing error envelope. Validation errors carry
// the offending field.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *apiError) Error() string { return e.Code }

func newValidationError(field, code, message string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: code, Field: field, Message: message}
}

func invalidRequestError() *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "invalid request body"}
}

func notFoundError(code, message string) *apiError {
	return &apiError{Status: http.StatusNotFound, Code: code, Message: message}
}

// AbortWithError maps domain errors onto the HTTP envelope. Validation
// failures are 400s, referential gaps 404s, anything unmapped a 500.
func AbortWithError(c *gin.Context, err error) {
	var api *apiError
	if errors.As(err, &api) {
		c.AbortWithStatusJSON(api.Status, gin.H{"error": api})
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"
	message := "internal error"

	switch {
	case errors.Is(err, leveldomain.ErrNotFound):
		status, code, message = http.StatusNotFound, err.Error(), "membership level not found"
	case errors.Is(err, membershipdomain.ErrMembershipNotFound):
		status, code, message = http.StatusNotFound, err.Error(), "membership not found"
	case errors.Is(err, paymentdomain.ErrPaymentNotFound):
		status, code, message = http.StatusNotFound, err.Error(), "payment not found"
	case errors.Is(err, gatewaypkg.ErrUnknownGateway):
		status, code, message = http.StatusBadRequest, err.Error(), "unknown gateway"
	case errors.Is(err, membershipdomain.ErrMembershipDisabled):
		status, code, message = http.StatusBadRequest, err.Error(), "membership is disabled"
	case errors.Is(err, membershipdomain.ErrRenewalLimitReached):
		status, code, message = http.StatusBadRequest, err.Error(), "renewal limit reached"
	case errors.Is(err, membershipdomain.ErrInvalidTransition),
		errors.Is(err, paymentdomain.ErrInvalidStatusTransition):
		status, code, message = http.StatusConflict, err.Error(), "invalid status transition"
	case isDiscountError(err):
		status, code, message = http.StatusBadRequest, err.Error(), "discount code rejected"
	}

	c.AbortWithStatusJSON(status, gin.H{"error": apiError{
		Status:  status,
		Code:    code,
		Message: message,
	}})
}

func isDiscountError(err error) bool {
	for _, candidate := range []error{
		discountdomain.ErrCodeNotFound,
		discountdomain.ErrCodeDisabled,
		discountdomain.ErrCodeExpired,
		discountdomain.ErrCodeExhausted,
		discountdomain.ErrCodeNotApplicable,
		discountdomain.ErrCodeAlreadyUsed,
	} {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}
