package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/actransporte/portal/internal/logger"
)

// initAuthRoutes registers the admin sign-in endpoints.
func (c *Controller) initAuthRoutes() {
	auth := c.Group.Group("/auth")
	auth.POST("/login", c.Login)
	auth.POST("/logout", c.Logout)
	auth.GET("/session", c.CurrentSession)
}

// loginRequest is the admin sign-in body.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an admin and establishes the session cookie.
// POST /api/v1/auth/login
func (c *Controller) Login(ctx echo.Context) error {
	var req loginRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Informe e-mail e senha."})
	}
	if req.Email == "" || req.Password == "" {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Informe e-mail e senha."})
	}

	admin, err := c.identity.SignIn(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		return c.respondError(ctx, err)
	}

	if err := c.identity.Establish(ctx.Response(), ctx.Request(), admin.Email); err != nil {
		c.logErrorIfEnabled("failed to establish session", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "Erro interno. Tente novamente."})
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"email": admin.Email,
		"nome":  admin.Nome,
	})
}

// Logout clears the admin session. Idempotent.
// POST /api/v1/auth/logout
func (c *Controller) Logout(ctx echo.Context) error {
	if err := c.identity.SignOut(ctx.Response(), ctx.Request()); err != nil {
		c.logErrorIfEnabled("failed to clear session", logger.Error(err))
	}
	return ctx.JSON(http.StatusOK, map[string]string{"message": "Sessão encerrada"})
}

// CurrentSession reports the signed-in admin, if any.
// GET /api/v1/auth/session
func (c *Controller) CurrentSession(ctx echo.Context) error {
	email := c.identity.SessionEmail(ctx.Request())
	if email == "" {
		return ctx.JSON(http.StatusUnauthorized, errorResponse{Error: "Não autenticado."})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"email": email})
}

// authMiddleware rejects requests without a signed-in admin session.
func (c *Controller) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if c.identity.SessionEmail(ctx.Request()) == "" {
			return ctx.JSON(http.StatusUnauthorized, errorResponse{Error: "Não autenticado."})
		}
		return next(ctx)
	}
}
