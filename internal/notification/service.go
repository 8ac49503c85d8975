package notification

import (
	"sort"
	"sync"
	"time"

	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/logger"
)

// ErrNoticeNotFound is returned for lookups of unknown notice ids.
var ErrNoticeNotFound = errors.NewStd("notification: notice not found")

const (
	// subscriberBuffer is each subscriber channel's capacity. A slow SSE
	// client drops notices rather than blocking the creator.
	subscriberBuffer = 16
	// cleanupInterval is how often expired notices are purged.
	cleanupInterval = 1 * time.Hour
)

// ServiceConfig configures the notice service.
type ServiceConfig struct {
	// Retention is how long notices are kept. Zero disables cleanup.
	Retention time.Duration
	// MaxNotices bounds the stored set; oldest fall off first.
	MaxNotices int
}

// FilterOptions narrows List results.
type FilterOptions struct {
	Types      []Type
	Priorities []Priority
	UnreadOnly bool
	Limit      int
	Offset     int
}

// Service stores notices and fans new ones out to subscribers.
type Service struct {
	cfg ServiceConfig
	log logger.Logger

	mu      sync.RWMutex
	notices map[string]*Notice
	subs    map[chan *Notice]struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewService creates a notice service and starts its retention cleanup.
func NewService(cfg ServiceConfig, log logger.Logger) *Service {
	if cfg.MaxNotices <= 0 {
		cfg.MaxNotices = 500
	}
	s := &Service{
		cfg:     cfg,
		log:     log,
		notices: make(map[string]*Notice),
		subs:    make(map[chan *Notice]struct{}),
		stopCh:  make(chan struct{}),
	}
	if cfg.Retention > 0 {
		go s.cleanupLoop()
	}
	return s
}

// Create stores a notice and broadcasts it to subscribers.
func (s *Service) Create(n *Notice) {
	s.mu.Lock()
	s.notices[n.ID] = n
	s.trimLocked()
	subs := make([]chan *Notice, 0, len(s.subs))
	for ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- n.Clone():
		default:
			// Subscriber is not draining; drop rather than block.
		}
	}
}

// Subscribe registers for future notices. The caller must Unsubscribe.
func (s *Service) Subscribe() <-chan *Notice {
	ch := make(chan *Notice, subscriberBuffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Service) Unsubscribe(ch <-chan *Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if sub == ch {
			delete(s.subs, sub)
			close(sub)
			return
		}
	}
}

// List returns notices matching the filter, newest first.
func (s *Service) List(filter *FilterOptions) []*Notice {
	if filter == nil {
		filter = &FilterOptions{}
	}

	s.mu.RLock()
	out := make([]*Notice, 0, len(s.notices))
	for _, n := range s.notices {
		if filter.UnreadOnly && n.Read {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, n.Type) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, n.Priority) {
			continue
		}
		out = append(out, n.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// Get returns one notice by id.
func (s *Service) Get(id string) (*Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notices[id]
	if !ok {
		return nil, ErrNoticeNotFound
	}
	return n.Clone(), nil
}

// MarkAsRead flips a notice's read flag.
func (s *Service) MarkAsRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notices[id]
	if !ok {
		return ErrNoticeNotFound
	}
	n.Read = true
	return nil
}

// UnreadCount returns the number of unread notices.
func (s *Service) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notices {
		if !n.Read {
			count++
		}
	}
	return count
}

// Stop shuts down the cleanup goroutine.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// trimLocked drops the oldest notices beyond MaxNotices. Caller holds mu.
func (s *Service) trimLocked() {
	excess := len(s.notices) - s.cfg.MaxNotices
	if excess <= 0 {
		return
	}
	ids := make([]string, 0, len(s.notices))
	for id := range s.notices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.notices[ids[i]].Timestamp.Before(s.notices[ids[j]].Timestamp)
	})
	for _, id := range ids[:excess] {
		delete(s.notices, id)
	}
}

func (s *Service) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.Retention)
			s.mu.Lock()
			removed := 0
			for id, n := range s.notices {
				if n.Timestamp.Before(cutoff) {
					delete(s.notices, id)
					removed++
				}
			}
			s.mu.Unlock()
			if removed > 0 {
				s.log.Debug("expired notices removed", logger.Int("count", removed))
			}
		case <-s.stopCh:
			return
		}
	}
}

func containsType(types []Type, t Type) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func containsPriority(ps []Priority, p Priority) bool {
	for _, v := range ps {
		if v == p {
			return true
		}
	}
	return false
}
