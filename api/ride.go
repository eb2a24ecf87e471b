package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/semanticallynull/bikeshare-backend/ride"
)

type rideResponse struct {
	ID            uuid.UUID           `json:"id"`
	BikeID        uuid.UUID           `json:"bikeId"`
	ReservationID uuid.UUID           `json:"reservationId"`
	StartDockID   *uuid.UUID          `json:"startDockId,omitempty"`
	StartedAt     time.Time           `json:"startedAt"`
	EndedAt       *time.Time          `json:"endedAt,omitempty"`
	EndDockID     *uuid.UUID          `json:"endDockId,omitempty"`
	OffDock       bool                `json:"offDock"`
	DurationMin   *int                `json:"durationMinutes,omitempty"`
	DistanceKm    decimal.NullDecimal `json:"distanceKm"`
	Cost          decimal.NullDecimal `json:"cost"`
	Charged       decimal.NullDecimal `json:"charged"`
	Unpaid        decimal.NullDecimal `json:"unpaid"`
}

func toRideResponse(r ride.Ride) rideResponse {
	return rideResponse{
		ID:            r.ID,
		BikeID:        r.BikeID,
		ReservationID: r.ReservationID,
		StartDockID:   r.StartDockID,
		StartedAt:     r.StartedAt,
		EndedAt:       timePtr(r.EndedAt),
		EndDockID:     r.EndDockID,
		OffDock:       r.OffDock(),
		DurationMin:   r.DurationMin,
		DistanceKm:    r.DistanceKm,
		Cost:          r.Cost,
		Charged:       r.Charged,
		Unpaid:        r.Unpaid,
	}
}

type startRideRequest struct {
	ReservationID *uuid.UUID `json:"reservationId"`
}

func (a *API) startRideHandler(c *gin.Context) {
	var req startRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.ReservationID == nil {
		renderError(c, errRequired("reservationId"))
		return
	}

	r, err := a.svc.Rides.Start(c.Request.Context(), currentCustomer(c).ID, *req.ReservationID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRideResponse(r))
}

func (a *API) ridesHandler(c *gin.Context) {
	rides, err := a.svc.Rides.History(c.Request.Context(), currentCustomer(c).ID)
	if err != nil {
		renderError(c, err)
		return
	}

	out := make([]rideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, toRideResponse(r))
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) currentRideHandler(c *gin.Context) {
	r, err := a.svc.Rides.Current(c.Request.Context(), currentCustomer(c).ID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRideResponse(r))
}

type positionRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (p positionRequest) validate() error {
	if p.Lat == nil {
		return errRequired("lat")
	}
	if p.Lng == nil {
		return errRequired("lng")
	}
	return nil
}

func (a *API) heartbeatHandler(c *gin.Context) {
	rideID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.validate(); err != nil {
		renderError(c, err)
		return
	}

	est, err := a.svc.Rides.Heartbeat(c.Request.Context(), currentCustomer(c).ID, rideID, *req.Lat, *req.Lng)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, est)
}

type endRideRequest struct {
	positionRequest
	EndDockID *uuid.UUID `json:"endDockId"`
}

func (a *API) endRideHandler(c *gin.Context) {
	rideID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req endRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.validate(); err != nil {
		renderError(c, err)
		return
	}

	r, err := a.svc.Rides.End(c.Request.Context(), currentCustomer(c).ID, rideID, ride.EndRequest{
		DockID: req.EndDockID,
		Lat:    *req.Lat,
		Lng:    *req.Lng,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRideResponse(r))
}
