package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/actransporte/portal/internal/docstore"
	"github.com/actransporte/portal/internal/logger"
	"github.com/actransporte/portal/internal/observability/metrics"
)

// SSE connection configuration.
const (
	maxSSEConnectionDuration = 30 * time.Minute
	rateLimitWindow          = 1 * time.Minute
	heartbeatInterval        = 30 * time.Second
	disconnectNotifyTimeout  = 100 * time.Millisecond

	routeStreamEndpoint = "/api/v1/routes/stream"

	// routeChannelBuffer bounds pending collection snapshots per client.
	routeChannelBuffer = 10

	rateLimitRequestsPerWindow = 10
	rateLimitBurst             = 15
)

// routeStreamClient is one connected live-map subscriber.
type routeStreamClient struct {
	ID string
	// Snapshots receives the full rotas_ativas collection on every change.
	Snapshots chan []docstore.Record
	// Done is a buffered signal channel for disconnect notification.
	Done chan struct{}
}

// initStreamRoutes registers the live-route SSE endpoint.
func (c *Controller) initStreamRoutes() {
	rateLimiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rateLimitRequestsPerWindow,
				Burst:     rateLimitBurst,
				ExpiresIn: rateLimitWindow,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, errorResponse{
				Error: "Muitas conexões. Aguarde antes de tentar novamente.",
			})
		},
	}

	c.Group.GET("/routes/stream", c.StreamRoutes, middleware.RateLimiterWithConfig(rateLimiterConfig))
}

// StreamRoutes handles the SSE connection for real-time live-route
// updates. Every change to the rotas_ativas collection is pushed as a
// full snapshot; the passenger map redraws from it.
func (c *Controller) StreamRoutes(ctx echo.Context) error {
	connectionStart := time.Now()

	if c.metrics != nil && c.metrics.HTTP != nil {
		c.metrics.HTTP.SSEConnectionStarted(routeStreamEndpoint)
		defer func() {
			duration := time.Since(connectionStart).Seconds()
			closeReason := metrics.SSECloseReasonClosed
			switch ctx.Request().Context().Err() {
			case context.DeadlineExceeded:
				closeReason = metrics.SSECloseReasonTimeout
			case context.Canceled:
				closeReason = metrics.SSECloseReasonCanceled
			}
			c.metrics.HTTP.SSEConnectionClosed(routeStreamEndpoint, duration, closeReason)
		}()
	}

	timeoutCtx, cancel := context.WithTimeout(ctx.Request().Context(), maxSSEConnectionDuration)
	defer cancel()
	ctx.SetRequest(ctx.Request().WithContext(timeoutCtx))

	client, unsubscribe, err := c.setupRouteStreamClient(ctx)
	if err != nil {
		return err
	}
	defer unsubscribe()

	c.setupStreamDisconnectHandler(ctx, client)

	return c.runRouteStreamLoop(ctx, client, connectionStart)
}

// setupRouteStreamClient subscribes the client to collection changes and
// sends the connected handshake plus the current snapshot.
func (c *Controller) setupRouteStreamClient(ctx echo.Context) (*routeStreamClient, docstore.Unsubscribe, error) {
	setSSEHeaders(ctx)

	client := &routeStreamClient{
		ID:        uuid.New().String(),
		Snapshots: make(chan []docstore.Record, routeChannelBuffer),
		Done:      make(chan struct{}, 1),
	}

	unsubscribe, err := c.store.SubscribeCollection(docstore.CollectionRotasAtivas, func(records []docstore.Record) {
		select {
		case client.Snapshots <- records:
		default:
			// Client is not draining; drop the snapshot. The next change
			// delivers a fresh full snapshot anyway.
		}
	})
	if err != nil {
		return nil, nil, err
	}

	if err := c.sendSSEMessage(ctx, "connected", map[string]string{
		"clientId": client.ID,
		"message":  "Connected to route stream",
	}); err != nil {
		unsubscribe()
		return nil, nil, err
	}
	c.recordSSEMessage(routeStreamEndpoint, "connected")

	// Initial snapshot so the map renders without waiting for a change.
	if records, err := c.store.ActiveRoutes(ctx.Request().Context()); err == nil {
		if err := c.sendSSEMessage(ctx, "routes", map[string]any{
			"routes":    records,
			"count":     len(records),
			"timestamp": time.Now(),
		}); err != nil {
			unsubscribe()
			return nil, nil, err
		}
		c.recordSSEMessage(routeStreamEndpoint, "routes")
	}

	c.logStreamConnection(client.ID, ctx.RealIP(), true)
	return client, unsubscribe, nil
}

// setupStreamDisconnectHandler notifies the event loop when the client
// goes away or the connection deadline fires.
func (c *Controller) setupStreamDisconnectHandler(ctx echo.Context, client *routeStreamClient) {
	go func() {
		<-ctx.Request().Context().Done()
		select {
		case client.Done <- struct{}{}:
		case <-time.After(disconnectNotifyTimeout):
		}
		c.logStreamConnection(client.ID, ctx.RealIP(), false)
	}()
}

// runRouteStreamLoop runs the main SSE event loop.
func (c *Controller) runRouteStreamLoop(ctx echo.Context, client *routeStreamClient, connectionStart time.Time) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case records := <-client.Snapshots:
			if err := c.sendSSEMessage(ctx, "routes", map[string]any{
				"routes":    records,
				"count":     len(records),
				"timestamp": time.Now(),
			}); err != nil {
				c.logErrorIfEnabled("failed to send route snapshot",
					logger.Error(err),
					logger.String("clientId", client.ID))
				c.recordSSEError(routeStreamEndpoint, "send_failed")
				return err
			}
			c.recordSSEMessage(routeStreamEndpoint, "routes")

		case <-ticker.C:
			if time.Since(connectionStart) > maxSSEConnectionDuration {
				return nil
			}
			if err := c.sendSSEMessage(ctx, "heartbeat", map[string]string{
				"timestamp": time.Now().Format(time.RFC3339),
			}); err != nil {
				c.recordSSEError(routeStreamEndpoint, "heartbeat_failed")
				return err
			}
			c.recordSSEMessage(routeStreamEndpoint, "heartbeat")

		case <-client.Done:
			return nil
		}
	}
}

// logStreamConnection logs SSE client connection and disconnection.
func (c *Controller) logStreamConnection(clientID, ip string, connected bool) {
	action := "connected"
	if !connected {
		action = "disconnected"
	}
	c.logInfoIfEnabled("route stream client "+action,
		logger.String("clientId", clientID),
		logger.String("ip", ip))
}
