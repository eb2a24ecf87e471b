package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/bikeshare-backend/bike"
	"github.com/semanticallynull/bikeshare-backend/internal/middleware"
)

type bikeResponse struct {
	ID          uuid.UUID   `json:"id"`
	Label       string      `json:"label"`
	DisplayName string      `json:"displayName,omitempty"`
	Type        bike.Type   `json:"type"`
	Status      bike.Status `json:"status"`
	BatteryPct  *int        `json:"batteryPct,omitempty"`
	Lat         float64     `json:"latitude"`
	Lng         float64     `json:"longitude"`
	DockID      *uuid.UUID  `json:"dockId,omitempty"`
	Available   bool        `json:"available"`
}

func toBikeResponse(b bike.Bike) bikeResponse {
	br := bikeResponse{
		ID:         b.ID,
		Label:      b.Label,
		Type:       b.Type,
		Status:     b.Status,
		BatteryPct: b.BatteryPct,
		Lat:        b.Lat(),
		Lng:        b.Lng(),
		DockID:     b.DockID,
		Available:  b.Status == bike.StatusAvailable,
	}
	if b.DisplayName != nil {
		br.DisplayName = *b.DisplayName
	}
	return br
}

func (a *API) bikesHandler(c *gin.Context) {
	bikes, err := a.svc.Bikes.ListAvailable(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	out := make([]bikeResponse, 0, len(bikes))
	for _, b := range bikes {
		out = append(out, toBikeResponse(b))
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) bikeHandler(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	b, err := a.svc.Bikes.GetBike(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBikeResponse(b))
}

type reserveRequest struct {
	DurationMinutes int `json:"durationMinutes"`
}

func (a *API) reserveHandler(c *gin.Context) {
	bikeID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := a.svc.Reservations.Reserve(c.Request.Context(), currentCustomer(c).ID, bikeID, req.DurationMinutes)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toReservationResponse(res))
}

func (a *API) unlockHandler(c *gin.Context) {
	bikeID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	code, err := a.svc.Reservations.Unlock(c.Request.Context(), currentCustomer(c).ID, bikeID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, code)
}

type maintenanceRequest struct {
	On *bool `json:"on"`
}

func (a *API) maintenanceHandler(c *gin.Context) {
	bikeID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.On == nil {
		renderError(c, errRequired("on"))
		return
	}

	b, err := a.svc.Fleet.SetMaintenance(c.Request.Context(), bikeID, *req.On)
	if err != nil {
		renderError(c, err)
		return
	}

	middleware.GetLogger(c).InfoContext(c.Request.Context(), "maintenance changed", "bikeId", b.ID, "status", b.Status)
	c.JSON(http.StatusOK, toBikeResponse(b))
}
