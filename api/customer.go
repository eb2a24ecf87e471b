package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/bikeshare-backend/customer"
)

type meResponse struct {
	ID    uuid.UUID     `json:"id"`
	Role  customer.Role `json:"role"`
	Email string        `json:"email,omitempty"`
	Name  string        `json:"name,omitempty"`
}

func (a *API) meHandler(c *gin.Context) {
	cust := currentCustomer(c)
	c.JSON(http.StatusOK, meResponse{
		ID:    cust.ID,
		Role:  cust.Role,
		Email: cust.Email.String,
		Name:  cust.Name.String,
	})
}

// paymentSetupHandler starts saving a card for top-ups.
func (a *API) paymentSetupHandler(c *gin.Context) {
	if a.svc.Payments == nil {
		c.JSON(http.StatusNotImplemented, errorResponse{Code: "PAYMENTS_DISABLED", Message: "no payment provider configured"})
		return
	}

	res, err := a.svc.Payments.Setup(c.Request.Context(), currentCustomer(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
