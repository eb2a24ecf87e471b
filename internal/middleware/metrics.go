package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrorCodeKey holds the error code a handler answered with.
const ErrorCodeKey = "error_code"

// SetErrorCode records the code of the error response so that metrics,
// traces and the access log can break failures down by cause.
func SetErrorCode(c *gin.Context, code string) {
	c.Set(ErrorCodeKey, code)
}

// ErrorCode returns the code set with SetErrorCode, or a generic one derived
// from status for failures no handler classified.
func ErrorCode(c *gin.Context) string {
	if code := c.GetString(ErrorCodeKey); code != "" {
		return code
	}
	switch status := c.Writer.Status(); {
	case status == 404:
		return "ROUTE_NOT_FOUND"
	case status >= 500:
		return "INTERNAL_ERROR"
	case status >= 400:
		return "BAD_REQUEST"
	}
	return ""
}

// unmatchedRoute labels requests no route matched, so raw paths never
// become label values.
const unmatchedRoute = "unmatched"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "Failed HTTP requests by route and error code, e.g. BIKE_UNAVAILABLE or TRY_AGAIN.",
		},
		[]string{"method", "route", "status", "code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Metrics records rate, errors and duration per route. The collectors are
// registered once per registry.
func Metrics(reg prometheus.Registerer) gin.HandlerFunc {
	for _, c := range []prometheus.Collector{httpRequestsTotal, httpRequestErrorsTotal, httpRequestDuration} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(method, route, status).Inc()
		if c.Writer.Status() >= 400 {
			httpRequestErrorsTotal.WithLabelValues(method, route, status, ErrorCode(c)).Inc()
		}
		httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
