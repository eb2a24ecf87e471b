package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/internal/middleware"
	"github.com/semanticallynull/bikeshare-backend/internal/payment"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{apperrors.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},

	{apperrors.ErrBikeNotFound, http.StatusNotFound, "BIKE_NOT_FOUND"},
	{apperrors.ErrReservationNotFound, http.StatusNotFound, "RESERVATION_NOT_FOUND"},
	{apperrors.ErrRideNotFound, http.StatusNotFound, "RIDE_NOT_FOUND"},
	{apperrors.ErrDockNotFound, http.StatusNotFound, "DOCK_NOT_FOUND"},
	{apperrors.ErrWalletNotFound, http.StatusNotFound, "WALLET_NOT_FOUND"},
	{apperrors.ErrCustomerNotFound, http.StatusNotFound, "CUSTOMER_NOT_FOUND"},
	{apperrors.ErrNoActivePricingRule, http.StatusNotFound, "NO_ACTIVE_PRICING_RULE"},

	{apperrors.ErrNotOwner, http.StatusForbidden, "NOT_OWNER"},
	{apperrors.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},

	{apperrors.ErrInsufficientBalance, http.StatusPaymentRequired, "INSUFFICIENT_BALANCE"},
	{apperrors.ErrInsufficientFunds, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"},
	{apperrors.ErrPaymentDeclined, http.StatusPaymentRequired, "PAYMENT_DECLINED"},
	{payment.ErrNoPaymentMethod, http.StatusPaymentRequired, "NO_PAYMENT_METHOD"},

	{apperrors.ErrBikeUnavailable, http.StatusConflict, "BIKE_UNAVAILABLE"},
	{apperrors.ErrInvalidStateTransition, http.StatusConflict, "INVALID_STATE_TRANSITION"},
	{apperrors.ErrReservationExpired, http.StatusConflict, "RESERVATION_EXPIRED"},
	{apperrors.ErrActiveReservationExists, http.StatusConflict, "ACTIVE_RESERVATION_EXISTS"},
	{apperrors.ErrRideInProgress, http.StatusConflict, "RIDE_IN_PROGRESS"},
	{apperrors.ErrRideAlreadyEnded, http.StatusConflict, "RIDE_ALREADY_ENDED"},
	{apperrors.ErrDockFull, http.StatusConflict, "DOCK_FULL"},
	{apperrors.ErrDuplicatePosting, http.StatusConflict, "DUPLICATE_POSTING"},

	{apperrors.ErrTransientStoreConflict, http.StatusServiceUnavailable, "TRY_AGAIN"},
}

func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// renderError writes err as a {code, message} body. Internal errors are
// logged and their message is not exposed.
func renderError(c *gin.Context, err error) {
	status, code := classify(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		middleware.GetLogger(c).ErrorContext(c.Request.Context(), "request failed", "error", err)
		msg = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}

	middleware.SetErrorCode(c, code)
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: msg})
}

func badRequest(c *gin.Context, err error) {
	middleware.SetErrorCode(c, "BAD_REQUEST")
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: err.Error()})
}

func errRequired(field string) error {
	return apperrors.Invalid(field, "is required")
}
