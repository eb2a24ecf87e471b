package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/semanticallynull/bikeshare-backend/customer"
	"github.com/semanticallynull/bikeshare-backend/internal/middleware"
)

func TestHeaderAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", HeaderAuth("X-User-ID"), func(c *gin.Context) {
		subject, _ := middleware.Subject(c)
		c.String(http.StatusOK, subject)
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("subject from header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User-ID", "auth0|rider")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "auth0|rider", w.Body.String())
	})
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(role customer.Role) int {
		r := gin.New()
		r.GET("/",
			func(c *gin.Context) { c.Set(customerKey, customer.Customer{Role: role}) },
			requireRole(customer.RoleTechnician),
			func(c *gin.Context) { c.Status(http.StatusNoContent) },
		)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		return w.Code
	}

	assert.Equal(t, http.StatusForbidden, serve(customer.RoleRider))
	assert.Equal(t, http.StatusNoContent, serve(customer.RoleTechnician))
	assert.Equal(t, http.StatusNoContent, serve(customer.RoleAdmin))
}
