// Package api implements the portal's HTTP surface: JSON endpoints under
// /api/v1, the live-route SSE stream, PWA support files, and the offline
// asset gateway.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/actransporte/portal/internal/broadcast"
	"github.com/actransporte/portal/internal/conf"
	"github.com/actransporte/portal/internal/docstore"
	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/identity"
	"github.com/actransporte/portal/internal/logger"
	"github.com/actransporte/portal/internal/observability"
	"github.com/actransporte/portal/internal/offlinecache"
)

// Controller handles all API requests.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings

	store    docstore.Store
	identity *identity.Service
	routes   *broadcast.Manager
	cache    *offlinecache.Manager
	metrics  *observability.Metrics
	log      logger.Logger
}

// New creates the API controller and registers every route on e.
func New(e *echo.Echo, settings *conf.Settings, store docstore.Store,
	ident *identity.Service, routes *broadcast.Manager, cache *offlinecache.Manager,
	m *observability.Metrics, log logger.Logger) *Controller {

	c := &Controller{
		Echo:     e,
		Group:    e.Group("/api/v1"),
		Settings: settings,
		store:    store,
		identity: ident,
		routes:   routes,
		cache:    cache,
		metrics:  m,
		log:      log,
	}

	c.initAuthRoutes()
	c.initDriverRoutes()
	c.initRouteRoutes()
	c.initStreamRoutes()
	c.initNoticeRoutes()
	c.registerPWARoutes()
	c.registerGatewayRoutes()

	e.GET("/healthz", healthHandler)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	return c
}

// errorResponse is the JSON body for failed requests. Message is in
// Portuguese because it is surfaced verbatim in the portal UI.
type errorResponse struct {
	Error string `json:"error"`
}

// respondError maps a service error onto an HTTP status and a
// user-facing message by its error category.
func (c *Controller) respondError(ctx echo.Context, err error) error {
	status := http.StatusInternalServerError
	message := "Erro interno. Tente novamente."

	switch errors.CategoryOf(err) {
	case errors.CategoryCapability:
		status = http.StatusBadRequest
		message = "Geolocalização não é suportada neste dispositivo."
	case errors.CategoryPermission:
		status = http.StatusForbidden
		message = "Permissão de localização negada. Habilite a localização para iniciar a rota."
	case errors.CategoryNotFound:
		status = http.StatusNotFound
		message = "Matrícula não encontrada."
	case errors.CategoryRecordInvalid:
		status = http.StatusForbidden
		message = "Acesso restrito a motoristas ativos."
	case errors.CategoryAuth:
		status = http.StatusUnauthorized
		message = "Credenciais inválidas."
		if errors.Is(err, identity.ErrTooManyAttempts) {
			status = http.StatusTooManyRequests
			message = "Muitas tentativas. Aguarde um minuto."
		}
	case errors.CategoryNetwork, errors.CategorySinkWrite:
		status = http.StatusBadGateway
		message = "Falha ao gravar a localização. Tente novamente."
	}

	c.logErrorIfEnabled("request failed",
		logger.Error(err),
		logger.String("path", ctx.Request().URL.Path),
		logger.Int("status", status))
	return ctx.JSON(status, errorResponse{Error: message})
}

func (c *Controller) logDebugIfEnabled(msg string, fields ...logger.Field) {
	if c.log != nil {
		c.log.Debug(msg, fields...)
	}
}

func (c *Controller) logInfoIfEnabled(msg string, fields ...logger.Field) {
	if c.log != nil {
		c.log.Info(msg, fields...)
	}
}

func (c *Controller) logErrorIfEnabled(msg string, fields ...logger.Field) {
	if c.log != nil {
		c.log.Error(msg, fields...)
	}
}

// setSSEHeaders prepares the response for server-sent events.
func setSSEHeaders(ctx echo.Context) {
	h := ctx.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	ctx.Response().WriteHeader(http.StatusOK)
}

// sendSSEMessage writes one named SSE event with a JSON payload and
// flushes it to the client.
func (c *Controller) sendSSEMessage(ctx echo.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(ctx.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	ctx.Response().Flush()
	return nil
}

func (c *Controller) recordSSEMessage(endpoint, event string) {
	if c.metrics != nil && c.metrics.HTTP != nil {
		c.metrics.HTTP.RecordSSEMessageSent(endpoint, event)
	}
}

func (c *Controller) recordSSEError(endpoint, kind string) {
	if c.metrics != nil && c.metrics.HTTP != nil {
		c.metrics.HTTP.RecordSSEError(endpoint, kind)
	}
}
