package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/internal/payment"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperrors.Invalid("durationMinutes", "must be between 15 and 480"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{&apperrors.ValidationError{Field: "endDockId", Reason: "unknown", Err: apperrors.ErrDockNotFound}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{fmt.Errorf("%w: bike is RESERVED", apperrors.ErrBikeUnavailable), http.StatusConflict, "BIKE_UNAVAILABLE"},
		{apperrors.ErrRideAlreadyEnded, http.StatusConflict, "RIDE_ALREADY_ENDED"},
		{apperrors.ErrDockFull, http.StatusConflict, "DOCK_FULL"},
		{apperrors.ErrReservationExpired, http.StatusConflict, "RESERVATION_EXPIRED"},
		{apperrors.ErrInsufficientBalance, http.StatusPaymentRequired, "INSUFFICIENT_BALANCE"},
		{fmt.Errorf("fund top-up: %w", payment.ErrNoPaymentMethod), http.StatusPaymentRequired, "NO_PAYMENT_METHOD"},
		{apperrors.ErrNotOwner, http.StatusForbidden, "NOT_OWNER"},
		{apperrors.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{apperrors.ErrReservationNotFound, http.StatusNotFound, "RESERVATION_NOT_FOUND"},
		{apperrors.ErrNoActivePricingRule, http.StatusNotFound, "NO_ACTIVE_PRICING_RULE"},
		{apperrors.ErrTransientStoreConflict, http.StatusServiceUnavailable, "TRY_AGAIN"},
		{errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func render(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	renderError(c, err)
	return w
}

func TestRenderError(t *testing.T) {
	t.Run("business errors are reported verbatim", func(t *testing.T) {
		w := render(fmt.Errorf("%w: bike is IN_RIDE", apperrors.ErrBikeUnavailable))

		require.Equal(t, http.StatusConflict, w.Code)
		var body errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "BIKE_UNAVAILABLE", body.Code)
		assert.Equal(t, "bike not available: bike is IN_RIDE", body.Message)
	})

	t.Run("internal errors are hidden", func(t *testing.T) {
		w := render(errors.New("pq: password authentication failed"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "password")
	})

	t.Run("transient errors ask for a retry", func(t *testing.T) {
		w := render(apperrors.ErrTransientStoreConflict)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
	})
}
