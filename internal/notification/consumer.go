package notification

import (
	"fmt"

	"github.com/actransporte/portal/internal/events"
	"github.com/actransporte/portal/internal/logger"
)

// RouteEventConsumer turns route lifecycle events into notices and
// forwards high-priority ones to the configured push targets.
type RouteEventConsumer struct {
	service *Service
	pusher  *Pusher
	log     logger.Logger
}

// NewRouteEventConsumer creates a consumer. pusher may be nil when no push
// targets are configured.
func NewRouteEventConsumer(service *Service, pusher *Pusher, log logger.Logger) *RouteEventConsumer {
	return &RouteEventConsumer{service: service, pusher: pusher, log: log}
}

// Handle implements events.Handler.
func (c *RouteEventConsumer) Handle(event *events.Event) {
	notice := c.noticeFor(event)
	if notice == nil {
		return
	}
	c.service.Create(notice)
	if c.pusher != nil && notice.Priority == PriorityHigh {
		c.pusher.Push(notice)
	}
}

func (c *RouteEventConsumer) noticeFor(event *events.Event) *Notice {
	switch event.Name {
	case events.EventRouteStarted:
		return NewNotice(TypeRoute, PriorityMedium,
			fmt.Sprintf("Rota iniciada: %s", event.Route),
			fmt.Sprintf("%s está compartilhando a localização na rota %s.", event.DriverName, event.Route)).
			WithMetadata("driver_id", event.DriverID).
			WithMetadata("route", event.Route)
	case events.EventRouteStopped:
		return NewNotice(TypeRoute, PriorityLow,
			fmt.Sprintf("Rota encerrada: %s", event.Route),
			fmt.Sprintf("%s parou de compartilhar a localização.", event.DriverName)).
			WithMetadata("driver_id", event.DriverID).
			WithMetadata("route", event.Route)
	case events.EventRouteWatchError:
		msg := "A transmissão de localização foi interrompida por um erro."
		if v, ok := event.Properties["error"].(string); ok {
			msg = v
		}
		return NewNotice(TypeError, PriorityHigh,
			fmt.Sprintf("Falha na rota %s", event.Route), msg).
			WithMetadata("driver_id", event.DriverID).
			WithMetadata("route", event.Route)
	default:
		c.log.Debug("ignoring unknown route event", logger.String("event", event.Name))
		return nil
	}
}
