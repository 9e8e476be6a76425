package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	bracketdomain "github.com/groupcart/groupcart/internal/bracket/domain"
	campaigndomain "github.com/groupcart/groupcart/internal/campaign/domain"
	invoicedomain "github.com/groupcart/groupcart/internal/invoice/domain"
	orderdomain "github.com/groupcart/groupcart/internal/order/domain"
	paymentdomain "github.com/groupcart/groupcart/internal/payment/domain"
	"github.com/groupcart/groupcart/internal/payment/gateway"
	pledgedomain "github.com/groupcart/groupcart/internal/pledge/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// ErrorHandlingMiddleware translates domain errors queued on the context
// into the JSON error envelope. Handlers abort with the raw error; this
// is the only place status codes are decided.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   "request",
					Code:    code,
					Message: code,
				},
			},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrAmountMismatch):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "amount_mismatch",
			Message: "payment amount does not match invoice total",
		}
	case errors.Is(err, gateway.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, gateway.ErrUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_unavailable",
			Message: "payment gateway unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, campaigndomain.ErrInvalidID),
		errors.Is(err, campaigndomain.ErrInvalidSupplier),
		errors.Is(err, campaigndomain.ErrInvalidTitle),
		errors.Is(err, bracketdomain.ErrInvalidQuantity),
		errors.Is(err, bracketdomain.ErrInvalidUnitPrice),
		errors.Is(err, bracketdomain.ErrInvalidRange),
		errors.Is(err, bracketdomain.ErrRangeGap),
		errors.Is(err, bracketdomain.ErrUnboundedNotLast),
		errors.Is(err, bracketdomain.ErrFirstBracketNotZero),
		errors.Is(err, pledgedomain.ErrInvalidID),
		errors.Is(err, pledgedomain.ErrInvalidBuyer),
		errors.Is(err, pledgedomain.ErrInvalidQuantity),
		errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, paymentdomain.ErrInvalidID),
		errors.Is(err, paymentdomain.ErrInvalidMethod),
		errors.Is(err, paymentdomain.ErrInvalidReference),
		errors.Is(err, orderdomain.ErrInvalidID),
		errors.Is(err, gateway.ErrInvalidPayload),
		errors.Is(err, gateway.ErrInvalidEvent):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, campaigndomain.ErrNotFound),
		errors.Is(err, bracketdomain.ErrNotFound),
		errors.Is(err, pledgedomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrUnknownProviderPayment),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	return errors.Is(err, pledgedomain.ErrOwnershipMismatch) ||
		errors.Is(err, paymentdomain.ErrOwnershipMismatch)
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, campaigndomain.ErrNotDraft),
		errors.Is(err, campaigndomain.ErrNotOpen),
		errors.Is(err, campaigndomain.ErrAlreadyLocked),
		errors.Is(err, campaigndomain.ErrCancelled),
		errors.Is(err, campaigndomain.ErrNoBrackets),
		errors.Is(err, bracketdomain.ErrNoPricing),
		errors.Is(err, bracketdomain.ErrCampaignNotDraft),
		errors.Is(err, pledgedomain.ErrDuplicatePledge),
		errors.Is(err, pledgedomain.ErrNotPending),
		errors.Is(err, pledgedomain.ErrCampaignNotOpen),
		errors.Is(err, invoicedomain.ErrCampaignNotLocked),
		errors.Is(err, invoicedomain.ErrInvalidStatusTransition),
		errors.Is(err, paymentdomain.ErrInvalidStatusTransition),
		errors.Is(err, paymentdomain.ErrInvoiceNotPayable),
		errors.Is(err, paymentdomain.ErrDuplicateSuccessfulPayment),
		errors.Is(err, paymentdomain.ErrNotRetryable),
		errors.Is(err, orderdomain.ErrPaymentNotSucceeded):
		return true
	default:
		return false
	}
}
