package notification

import (
	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/actransporte/portal/internal/logger"
)

// Pusher forwards notices to external services (Telegram, ntfy, email, …)
// through shoutrrr URLs. Delivery is best-effort: failures are logged and
// never propagate to notice creation.
type Pusher struct {
	sender *router.ServiceRouter
	log    logger.Logger
}

// NewPusher creates a pusher for the given shoutrrr service URLs. Returns
// nil with no error when urls is empty.
func NewPusher(urls []string, log logger.Logger) (*Pusher, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, err
	}
	return &Pusher{sender: sender, log: log}, nil
}

// Push sends one notice to every configured target.
func (p *Pusher) Push(notice *Notice) {
	params := types.Params{"title": notice.Title}
	for _, err := range p.sender.Send(notice.Message, &params) {
		if err != nil {
			p.log.Warn("notice push failed",
				logger.String("notice_id", notice.ID),
				logger.Error(err))
		}
	}
}
