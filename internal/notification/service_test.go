package notification

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actransporte/portal/internal/logger"
)

func newTestService(t *testing.T, cfg ServiceConfig) *Service {
	t.Helper()
	svc := NewService(cfg, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	t.Cleanup(svc.Stop)
	return svc
}

func TestService_CreateAndList(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, ServiceConfig{})

	svc.Create(NewNotice(TypeRoute, PriorityMedium, "Rota iniciada: ROTA 01", "Ana está compartilhando a localização."))
	time.Sleep(time.Millisecond)
	svc.Create(NewNotice(TypeSystem, PriorityLow, "Manutenção", "Atualização programada."))

	notices := svc.List(&FilterOptions{Limit: 10})
	require.Len(t, notices, 2)
	assert.Equal(t, "Manutenção", notices[0].Title, "newest first")
	assert.Equal(t, "Rota iniciada: ROTA 01", notices[1].Title)
}

func TestService_List_Filters(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, ServiceConfig{})

	svc.Create(NewNotice(TypeRoute, PriorityMedium, "rota", "a"))
	svc.Create(NewNotice(TypeError, PriorityHigh, "erro", "b"))
	svc.Create(NewNotice(TypeSystem, PriorityLow, "sistema", "c"))

	byType := svc.List(&FilterOptions{Types: []Type{TypeError}, Limit: 10})
	require.Len(t, byType, 1)
	assert.Equal(t, "erro", byType[0].Title)

	byPriority := svc.List(&FilterOptions{Priorities: []Priority{PriorityLow}, Limit: 10})
	require.Len(t, byPriority, 1)
	assert.Equal(t, "sistema", byPriority[0].Title)
}

func TestService_List_Pagination(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, ServiceConfig{})

	for i := 0; i < 5; i++ {
		svc.Create(NewNotice(TypeRoute, PriorityMedium, "n", "m"))
		time.Sleep(time.Millisecond)
	}

	page := svc.List(&FilterOptions{Limit: 2, Offset: 2})
	assert.Len(t, page, 2)

	tail := svc.List(&FilterOptions{Limit: 10, Offset: 4})
	assert.Len(t, tail, 1)
}

func TestService_MarkAsReadAndUnreadCount(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, ServiceConfig{})

	n := NewNotice(TypeRoute, PriorityMedium, "titulo", "corpo")
	svc.Create(n)
	svc.Create(NewNotice(TypeRoute, PriorityMedium, "outro", "corpo"))
	assert.Equal(t, 2, svc.UnreadCount())

	require.NoError(t, svc.MarkAsRead(n.ID))
	assert.Equal(t, 1, svc.UnreadCount())

	got, err := svc.Get(n.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)

	unread := svc.List(&FilterOptions{UnreadOnly: true, Limit: 10})
	require.Len(t, unread, 1)
	assert.Equal(t, "outro", unread[0].Title)
}

func TestService_MarkAsRead_Unknown(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, ServiceConfig{})

	err := svc.MarkAsRead("no-such-id")
	assert.ErrorIs(t, err, ErrNoticeNotFound)
}

func TestService_MaxNoticesDropsOldest(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, ServiceConfig{MaxNotices: 3})

	first := NewNotice(TypeRoute, PriorityMedium, "primeiro", "m")
	svc.Create(first)
	time.Sleep(time.Millisecond)
	for i := 0; i < 3; i++ {
		svc.Create(NewNotice(TypeRoute, PriorityMedium, "seguinte", "m"))
		time.Sleep(time.Millisecond)
	}

	notices := svc.List(&FilterOptions{Limit: 10})
	assert.Len(t, notices, 3)
	_, err := svc.Get(first.ID)
	assert.ErrorIs(t, err, ErrNoticeNotFound)
}

func TestService_Subscribe(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, ServiceConfig{})

	ch := svc.Subscribe()
	defer svc.Unsubscribe(ch)

	created := NewNotice(TypeRoute, PriorityHigh, "Falha na rota", "erro")
	svc.Create(created)

	select {
	case got := <-ch:
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, PriorityHigh, got.Priority)
	case <-time.After(time.Second):
		t.Fatal("no notice delivered to subscriber")
	}
}

func TestService_Unsubscribe(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, ServiceConfig{})

	ch := svc.Subscribe()
	svc.Unsubscribe(ch)

	svc.Create(NewNotice(TypeRoute, PriorityMedium, "t", "m"))
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel must be closed after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}
