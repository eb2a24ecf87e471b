package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics(prometheus.NewRegistry()))
	r.POST("/bikes/:bikeId/reserve", func(c *gin.Context) {
		if c.Param("bikeId") == "taken" {
			SetErrorCode(c, "BIKE_UNAVAILABLE")
			c.AbortWithStatus(http.StatusConflict)
			return
		}
		c.Status(http.StatusCreated)
	})
	r.GET("/boom", func(c *gin.Context) {
		c.AbortWithStatus(http.StatusInternalServerError)
	})

	serve := func(method, path string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w.Code
	}

	require.Equal(t, http.StatusCreated, serve(http.MethodPost, "/bikes/b1/reserve"))
	require.Equal(t, http.StatusConflict, serve(http.MethodPost, "/bikes/taken/reserve"))
	require.Equal(t, http.StatusConflict, serve(http.MethodPost, "/bikes/taken/reserve"))
	require.Equal(t, http.StatusInternalServerError, serve(http.MethodGet, "/boom"))
	require.Equal(t, http.StatusNotFound, serve(http.MethodGet, "/no/such/path"))

	route := "/bikes/:bikeId/reserve"
	assert.Equal(t, 1.0, promtest.ToFloat64(httpRequestsTotal.WithLabelValues("POST", route, "201")))
	assert.Equal(t, 2.0, promtest.ToFloat64(httpRequestErrorsTotal.WithLabelValues("POST", route, "409", "BIKE_UNAVAILABLE")))
	assert.Equal(t, 1.0, promtest.ToFloat64(httpRequestErrorsTotal.WithLabelValues("GET", "/boom", "500", "INTERNAL_ERROR")))
	assert.Equal(t, 1.0, promtest.ToFloat64(httpRequestErrorsTotal.WithLabelValues("GET", unmatchedRoute, "404", "ROUTE_NOT_FOUND")),
		"raw paths never become label values")
}

func TestErrorCode(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c := testContext()
	assert.Empty(t, ErrorCode(c))

	c.Status(http.StatusBadRequest)
	assert.Equal(t, "BAD_REQUEST", ErrorCode(c))

	SetErrorCode(c, "VALIDATION_ERROR")
	assert.Equal(t, "VALIDATION_ERROR", ErrorCode(c))
}
