package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/actransporte/portal/internal/broadcast"
	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/geoloc"
	"github.com/actransporte/portal/internal/logger"
)

// errDeviceWatch wraps a device-reported watch failure for the session's
// error path.
func errDeviceWatch(msg string) error {
	return errors.Newf("device watch error: %s", msg).
		Component("api").
		Category(errors.CategoryNetwork).
		Build()
}

// initRouteRoutes registers the route broadcast endpoints.
func (c *Controller) initRouteRoutes() {
	routes := c.Group.Group("/routes")
	routes.POST("/start", c.StartRoute)
	routes.POST("/stop", c.StopRoute)
	routes.POST("/position", c.ReportPosition)
	routes.GET("/active", c.ActiveRoutes)
	routes.GET("/status", c.RouteStatus)
}

// startRouteRequest carries a driver's intent to broadcast a route.
type startRouteRequest struct {
	Matricula string `json:"matricula"`
	Rota      string `json:"rota"`
	// GeoAvailable is the device's report of whether geolocation exists
	// at all on the platform.
	GeoAvailable bool `json:"geoAvailable"`
	// Confirmed is the driver's explicit confirmation. Declining is not
	// an error: the session stays idle.
	Confirmed bool `json:"confirmed"`
}

// StartRoute opens a broadcast session for the driver. The first
// position sample is written before the session is reported as
// broadcasting; permission or write failures leave no session behind.
// POST /api/v1/routes/start
func (c *Controller) StartRoute(ctx echo.Context) error {
	var req startRouteRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Requisição inválida."})
	}
	req.Matricula = strings.TrimSpace(req.Matricula)
	req.Rota = strings.TrimSpace(req.Rota)
	if req.Matricula == "" || req.Rota == "" {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Informe matrícula e rota."})
	}

	driver, err := c.identity.ValidateDriver(ctx.Request().Context(), req.Matricula)
	if err != nil {
		return c.respondError(ctx, err)
	}

	session, err := c.routes.Start(ctx.Request().Context(), broadcast.StartRequest{
		Route:        req.Rota,
		Driver:       broadcast.Driver{ID: driver.Matricula, Name: driver.Nome},
		GeoAvailable: req.GeoAvailable,
		Confirmed:    req.Confirmed,
	})
	if err != nil {
		return c.respondError(ctx, err)
	}
	if session == nil {
		// Declined confirmation: a no-op back to idle.
		return ctx.JSON(http.StatusOK, map[string]string{"status": "idle"})
	}

	c.logInfoIfEnabled("route started",
		logger.String("matricula", driver.Matricula),
		logger.String("rota", req.Rota))

	return ctx.JSON(http.StatusOK, map[string]string{
		"status":    session.State().String(),
		"rota":      req.Rota,
		"motorista": driver.Nome,
	})
}

// stopRouteRequest identifies whose session to stop.
type stopRouteRequest struct {
	Matricula string `json:"matricula"`
}

// StopRoute ends the driver's broadcast session. Idempotent: stopping
// when nothing is broadcasting still returns OK.
// POST /api/v1/routes/stop
func (c *Controller) StopRoute(ctx echo.Context) error {
	var req stopRouteRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Requisição inválida."})
	}
	req.Matricula = strings.TrimSpace(req.Matricula)
	if req.Matricula == "" {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Informe sua matrícula."})
	}

	c.routes.Stop(req.Matricula)
	return ctx.JSON(http.StatusOK, map[string]string{"status": "stopped"})
}

// positionReport is one device geolocation reading, or a device-side
// subscription failure, POSTed by the driver's browser.
type positionReport struct {
	Matricula  string    `json:"matricula"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	Speed      *float64  `json:"speed,omitempty"`
	CapturedAt time.Time `json:"capturedAt,omitempty"`
	// Permission, when set, updates the stored permission state instead
	// of delivering a sample.
	Permission string `json:"permission,omitempty"`
	// Error, when set, reports a device-side watch failure.
	Error string `json:"error,omitempty"`
}

// ReportPosition feeds a device reading into the driver's position
// provider. The broadcast session consumes it as its next sample.
// POST /api/v1/routes/position
func (c *Controller) ReportPosition(ctx echo.Context) error {
	var req positionReport
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Requisição inválida."})
	}
	req.Matricula = strings.TrimSpace(req.Matricula)
	if req.Matricula == "" {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Informe sua matrícula."})
	}

	provider := c.routes.Provider(req.Matricula)

	if req.Permission != "" {
		provider.SetPermission(geoloc.PermissionState(req.Permission))
		return ctx.JSON(http.StatusOK, map[string]string{"status": "accepted"})
	}
	if req.Error != "" {
		provider.PushError(errDeviceWatch(req.Error))
		return ctx.JSON(http.StatusOK, map[string]string{"status": "accepted"})
	}

	captured := req.CapturedAt
	if captured.IsZero() {
		captured = time.Now()
	}
	provider.Push(geoloc.Sample{
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Accuracy:   req.Accuracy,
		Speed:      req.Speed,
		CapturedAt: captured,
	})
	return ctx.JSON(http.StatusOK, map[string]string{"status": "accepted"})
}

// ActiveRoutes lists the live routes currently marked active.
// GET /api/v1/routes/active
func (c *Controller) ActiveRoutes(ctx echo.Context) error {
	records, err := c.store.ActiveRoutes(ctx.Request().Context())
	if err != nil {
		return c.respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"routes": records,
		"count":  len(records),
	})
}

// RouteStatus reports the broadcast state of one driver's session.
// GET /api/v1/routes/status?matricula=<id>
func (c *Controller) RouteStatus(ctx echo.Context) error {
	matricula := strings.TrimSpace(ctx.QueryParam("matricula"))
	if matricula == "" {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Informe sua matrícula."})
	}
	session := c.routes.Session(matricula)
	if session == nil {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "idle"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": session.State().String()})
}
