package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/semanticallynull/bikeshare-backend/internal/middleware"
	"github.com/semanticallynull/bikeshare-backend/pricing"
)

type pricingRequest struct {
	PerMinute          decimal.Decimal `json:"perMinute"`
	PerKm              decimal.Decimal `json:"perKm"`
	UnlockFee          decimal.Decimal `json:"unlockFee"`
	MinBalanceRequired decimal.Decimal `json:"minBalanceRequired"`
	LatePenaltyPerMin  decimal.Decimal `json:"latePenaltyPerMin"`
	OffDockPenalty     decimal.Decimal `json:"offDockPenalty"`
}

type pricingResponse struct {
	ID uuid.UUID `json:"id"`
	pricingRequest
	CreatedAt time.Time `json:"createdAt"`
}

func toPricingResponse(r pricing.Rule) pricingResponse {
	return pricingResponse{
		ID: r.ID,
		pricingRequest: pricingRequest{
			PerMinute:          r.PerMinute,
			PerKm:              r.PerKm,
			UnlockFee:          r.UnlockFee,
			MinBalanceRequired: r.MinBalanceRequired,
			LatePenaltyPerMin:  r.LatePenaltyPerMin,
			OffDockPenalty:     r.OffDockPenalty,
		},
		CreatedAt: r.CreatedAt,
	}
}

func (a *API) pricingHandler(c *gin.Context) {
	rule, err := a.svc.Pricing.Active(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPricingResponse(rule))
}

func (a *API) updatePricingHandler(c *gin.Context) {
	var req pricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	rule, err := a.svc.Pricing.Update(c.Request.Context(), pricing.Rule{
		PerMinute:          req.PerMinute,
		PerKm:              req.PerKm,
		UnlockFee:          req.UnlockFee,
		MinBalanceRequired: req.MinBalanceRequired,
		LatePenaltyPerMin:  req.LatePenaltyPerMin,
		OffDockPenalty:     req.OffDockPenalty,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	middleware.GetLogger(c).InfoContext(c.Request.Context(), "pricing updated", "ruleId", rule.ID)
	c.JSON(http.StatusOK, toPricingResponse(rule))
}
