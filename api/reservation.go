package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/semanticallynull/bikeshare-backend/reservation"
)

type reservationResponse struct {
	ID         uuid.UUID          `json:"id"`
	BikeID     uuid.UUID          `json:"bikeId"`
	DockID     *uuid.UUID         `json:"dockId,omitempty"`
	HoldAmount decimal.Decimal    `json:"holdAmount"`
	Status     reservation.Status `json:"status"`
	StartAt    time.Time          `json:"startAt"`
	ExpiresAt  time.Time          `json:"expiresAt"`
	UnlockedAt *time.Time         `json:"unlockedAt,omitempty"`
}

func toReservationResponse(r reservation.Reservation) reservationResponse {
	return reservationResponse{
		ID:         r.ID,
		BikeID:     r.BikeID,
		DockID:     r.DockID,
		HoldAmount: r.HoldAmount,
		Status:     r.Status,
		StartAt:    r.StartAt,
		ExpiresAt:  r.ExpiresAt,
		UnlockedAt: timePtr(r.UnlockedAt),
	}
}

func (a *API) currentReservationHandler(c *gin.Context) {
	res, err := a.svc.Reservations.Current(c.Request.Context(), currentCustomer(c).ID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(res))
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
