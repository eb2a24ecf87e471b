package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semanticallynull/bikeshare-backend/bike"
	"github.com/semanticallynull/bikeshare-backend/customer"
	"github.com/semanticallynull/bikeshare-backend/dock"
	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/internal/middleware"
	"github.com/semanticallynull/bikeshare-backend/internal/o11y"
	"github.com/semanticallynull/bikeshare-backend/internal/payment"
	"github.com/semanticallynull/bikeshare-backend/pricing"
	"github.com/semanticallynull/bikeshare-backend/reservation"
	"github.com/semanticallynull/bikeshare-backend/ride"
	"github.com/semanticallynull/bikeshare-backend/wallet"
)

// Services are the operations the handlers call. Payments is nil when no
// card provider is configured.
type Services struct {
	Reservations *reservation.Manager
	Rides        *ride.Controller
	Wallets      *wallet.Service
	Pricing      *pricing.Service
	Fleet        *bike.Fleet
	Bikes        *bike.Repository
	Docks        *dock.Repository
	Customers    *customer.Resolver
	Payments     *payment.Stripe
}

type API struct {
	r   *gin.Engine
	svc Services
}

// New wires the routes. auth authenticates every customer route; /metrics
// is only served when metrics credentials are set.
func New(svc Services, obs *o11y.Observability, auth gin.HandlerFunc, metricsUsername, metricsPassword string) *API {
	a := &API{
		r:   gin.New(),
		svc: svc,
	}

	a.r.Use(
		gin.Recovery(),
		middleware.Tracing(),
		middleware.Logging(obs.Logger),
		middleware.Metrics(obs.Registry),
	)

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metricsUsername != "" {
		a.r.GET("/metrics",
			gin.BasicAuth(gin.Accounts{metricsUsername: metricsPassword}),
			gin.WrapH(promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{})),
		)
	}

	a.r.GET("/bikes", a.bikesHandler)
	a.r.GET("/bikes/:id", a.bikeHandler)
	a.r.GET("/docks", a.docksHandler)
	a.r.GET("/pricing", a.pricingHandler)

	authed := a.r.Group("/", auth, a.identify)
	authed.GET("/me", a.meHandler)
	authed.POST("/bikes/:id/reserve", a.reserveHandler)
	authed.POST("/bikes/:id/unlock", a.unlockHandler)
	authed.GET("/reservations/current", a.currentReservationHandler)

	authed.POST("/rides", a.startRideHandler)
	authed.GET("/rides", a.ridesHandler)
	authed.GET("/rides/current", a.currentRideHandler)
	authed.POST("/rides/:id/heartbeat", a.heartbeatHandler)
	authed.POST("/rides/:id/end", a.endRideHandler)

	authed.GET("/wallet", a.walletHandler)
	authed.GET("/wallet/transactions", a.transactionsHandler)
	authed.POST("/wallet/topup", a.topUpHandler)
	authed.POST("/wallet/payment-setup", a.paymentSetupHandler)

	tech := authed.Group("/technician", requireRole(customer.RoleTechnician))
	tech.POST("/bikes/:id/maintenance", a.maintenanceHandler)

	admin := authed.Group("/admin", requireRole(customer.RoleAdmin))
	admin.GET("/pricing", a.pricingHandler)
	admin.PUT("/pricing", a.updatePricingHandler)
	admin.GET("/wallets/:customerId/audit", a.auditHandler)

	return a
}

func (a *API) Router() *gin.Engine {
	return a.r
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		renderError(c, apperrors.Invalid(name, "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}
