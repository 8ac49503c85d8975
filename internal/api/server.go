package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/actransporte/portal/internal/broadcast"
	"github.com/actransporte/portal/internal/conf"
	"github.com/actransporte/portal/internal/docstore"
	"github.com/actransporte/portal/internal/identity"
	"github.com/actransporte/portal/internal/logger"
	"github.com/actransporte/portal/internal/observability"
	"github.com/actransporte/portal/internal/offlinecache"
)

// Server owns the echo instance and its lifecycle.
type Server struct {
	echo       *echo.Echo
	settings   *conf.Settings
	Controller *Controller
	log        logger.Logger
}

// NewServer builds the HTTP server with every route registered.
func NewServer(settings *conf.Settings, store docstore.Store, ident *identity.Service,
	routes *broadcast.Manager, cache *offlinecache.Manager, m *observability.Metrics,
	log logger.Logger) *Server {

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	controller := New(e, settings, store, ident, routes, cache, m, log)

	return &Server{
		echo:       e,
		settings:   settings,
		Controller: controller,
		log:        log,
	}
}

// Start blocks serving HTTP until Shutdown or a listen failure.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.settings.WebServer.Port)
	s.log.Info("http server listening", logger.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
