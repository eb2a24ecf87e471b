package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	adapter "github.com/gwatts/gin-adapter"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/bikeshare-backend/customer"
	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/internal/middleware"
)

const customerKey = "customer"

// JWT validates auth0 access tokens issued for audience.
func JWT(domain, audience string) (gin.HandlerFunc, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, fmt.Errorf("parse issuer url: %w", err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)
	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("set up jwt validator: %w", err)
	}

	mw := jwtmiddleware.New(jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(errorResponse{Code: "UNAUTHORIZED", Message: err.Error()})
		}),
	)
	return adapter.Wrap(mw.CheckJWT), nil
}

// HeaderAuth trusts the subject named in header. It is meant for tests and
// local development behind a trusted proxy.
func HeaderAuth(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetHeader(header)
		if subject == "" {
			unauthorized(c)
			return
		}
		middleware.SetSubject(c, subject)
		c.Next()
	}
}

// identify resolves the authenticated subject to a customer, creating it on
// first sight.
func (a *API) identify(c *gin.Context) {
	subject, ok := middleware.Subject(c)
	if !ok {
		unauthorized(c)
		return
	}

	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	cust, err := a.svc.Customers.Resolve(c.Request.Context(), subject, token)
	if err != nil {
		renderError(c, err)
		return
	}

	c.Set(customerKey, cust)
	middleware.With(c, "customerId", cust.ID)
	middleware.Annotate(c,
		attribute.String("customer.id", cust.ID.String()),
		attribute.String("customer.role", string(cust.Role)),
	)
	c.Next()
}

func unauthorized(c *gin.Context) {
	middleware.SetErrorCode(c, "UNAUTHORIZED")
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "authentication required"})
}

func requireRole(role customer.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentCustomer(c).Role.Can(role) {
			renderError(c, fmt.Errorf("%w: requires %s", apperrors.ErrForbidden, role))
			return
		}
		c.Next()
	}
}

func currentCustomer(c *gin.Context) customer.Customer {
	return c.MustGet(customerKey).(customer.Customer)
}
