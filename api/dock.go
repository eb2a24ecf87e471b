package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/bikeshare-backend/dock"
)

type dockResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"address"`
	Lat      float64   `json:"latitude"`
	Lng      float64   `json:"longitude"`
	Capacity int       `json:"capacity"`
	Type     dock.Type `json:"type"`
}

func toDockResponse(d dock.Dock) dockResponse {
	return dockResponse{
		ID:       d.ID,
		Name:     d.Name,
		Address:  d.Address,
		Lat:      d.Location.P.X,
		Lng:      d.Location.P.Y,
		Capacity: d.Capacity,
		Type:     d.Type,
	}
}

func (a *API) docksHandler(c *gin.Context) {
	docks, err := a.svc.Docks.GetDocks(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	out := make([]dockResponse, 0, len(docks))
	for _, d := range docks {
		out = append(out, toDockResponse(d))
	}
	c.JSON(http.StatusOK, out)
}
