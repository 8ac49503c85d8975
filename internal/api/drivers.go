package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/actransporte/portal/internal/logger"
)

// initDriverRoutes registers driver validation.
func (c *Controller) initDriverRoutes() {
	drivers := c.Group.Group("/drivers")
	drivers.POST("/validate", c.ValidateDriver)
}

// validateRequest carries the employee ID typed on the driver screen.
type validateRequest struct {
	Matricula string `json:"matricula"`
}

// ValidateDriver checks an employee ID against the directory: the record
// must exist, be active, and carry the motorista role. On failure the
// client keeps the input editable and shows the returned message.
// POST /api/v1/drivers/validate
func (c *Controller) ValidateDriver(ctx echo.Context) error {
	var req validateRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Informe sua matrícula."})
	}
	req.Matricula = strings.TrimSpace(req.Matricula)
	if req.Matricula == "" {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Informe sua matrícula."})
	}

	driver, err := c.identity.ValidateDriver(ctx.Request().Context(), req.Matricula)
	if err != nil {
		return c.respondError(ctx, err)
	}

	c.logDebugIfEnabled("driver validated",
		logger.String("matricula", driver.Matricula),
		logger.String("nome", driver.Nome))

	return ctx.JSON(http.StatusOK, map[string]string{
		"matricula": driver.Matricula,
		"nome":      driver.Nome,
	})
}
