package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/logger"
	"github.com/actransporte/portal/internal/notification"
)

// initNoticeRoutes registers the notice endpoints. The list and unread
// count feed the portal's notification bell; marking a notice read
// mutates shared state and needs a signed-in admin.
func (c *Controller) initNoticeRoutes() {
	notices := c.Group.Group("/notices")
	notices.GET("", c.GetNotices)
	notices.GET("/unread/count", c.GetUnreadCount)
	notices.PUT("/:id/read", c.MarkNoticeRead, c.authMiddleware)
}

// GetNotices returns a page of notices, newest first.
// GET /api/v1/notices?type=&priority=&unread=&limit=&offset=
func (c *Controller) GetNotices(ctx echo.Context) error {
	if !notification.IsInitialized() {
		return ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: "Serviço de avisos indisponível."})
	}
	service := notification.GetService()

	filter := &notification.FilterOptions{Limit: 50}
	if typeParam := ctx.QueryParam("type"); typeParam != "" {
		filter.Types = []notification.Type{notification.Type(typeParam)}
	}
	if priorityParam := ctx.QueryParam("priority"); priorityParam != "" {
		filter.Priorities = []notification.Priority{notification.Priority(priorityParam)}
	}
	if ctx.QueryParam("unread") == "true" {
		filter.UnreadOnly = true
	}
	if limitParam := ctx.QueryParam("limit"); limitParam != "" {
		if limit, err := strconv.Atoi(limitParam); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if offsetParam := ctx.QueryParam("offset"); offsetParam != "" {
		if offset, err := strconv.Atoi(offsetParam); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	notices := service.List(filter)
	return ctx.JSON(http.StatusOK, map[string]any{
		"notices": notices,
		"count":   len(notices),
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// GetUnreadCount returns the count of unread notices.
// GET /api/v1/notices/unread/count
func (c *Controller) GetUnreadCount(ctx echo.Context) error {
	if !notification.IsInitialized() {
		return ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: "Serviço de avisos indisponível."})
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"unreadCount": notification.GetService().UnreadCount(),
	})
}

// MarkNoticeRead marks one notice as read.
// PUT /api/v1/notices/:id/read
func (c *Controller) MarkNoticeRead(ctx echo.Context) error {
	if !notification.IsInitialized() {
		return ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: "Serviço de avisos indisponível."})
	}
	id := ctx.Param("id")
	if id == "" {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Identificador do aviso é obrigatório."})
	}

	if err := notification.GetService().MarkAsRead(id); err != nil {
		if errors.Is(err, notification.ErrNoticeNotFound) {
			return ctx.JSON(http.StatusNotFound, errorResponse{Error: "Aviso não encontrado."})
		}
		c.logErrorIfEnabled("failed to mark notice as read",
			logger.Error(err),
			logger.String("id", id))
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "Erro interno. Tente novamente."})
	}

	return ctx.JSON(http.StatusOK, map[string]string{"message": "Aviso marcado como lido"})
}
