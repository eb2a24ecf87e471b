package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Tracing opens one server span per request, continuing a trace propagated
// by the caller. Handlers reach the span through the request context.
func Tracing() gin.HandlerFunc {
	tracer := otel.Tracer("bikeshare-api")
	propagator := otel.GetTextMapPropagator()

	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= 400 {
			span.SetAttributes(attribute.String("error.code", ErrorCode(c)))
		}
		// Business rejections are answers, not failures of the service.
		if status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// Annotate adds attributes to the request span.
func Annotate(c *gin.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(c.Request.Context()).SetAttributes(attrs...)
}
