package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actransporte/portal/internal/conf"
	"github.com/actransporte/portal/internal/docstore"
	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/geoloc"
	"github.com/actransporte/portal/internal/logger"
)

func setupDocstoreSink(t *testing.T) (*DocstoreSink, *docstore.GormStore) {
	t.Helper()
	store, err := docstore.Open(conf.DocstoreSettings{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "sink_test.db"),
	}, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewDocstoreSink(store), store
}

func locationRecord(active bool, lat, lon float64) LocationRecord {
	return LocationRecord{
		Driver: Driver{ID: "M123", Name: "Ana"},
		Route:  "ROTA 01",
		Sample: geoloc.Sample{
			Latitude:   lat,
			Longitude:  lon,
			Accuracy:   8,
			CapturedAt: time.Now(),
		},
		Active: active,
	}
}

func TestDocstoreSink_Upsert_WritesLiveRecord(t *testing.T) {
	t.Parallel()

	sink, store := setupDocstoreSink(t)
	ctx := context.Background()

	require.NoError(t, sink.Upsert(ctx, locationRecord(true, -3.1, -60.0)))

	rec, err := store.ReadRecord(ctx, docstore.CollectionRotasAtivas, "M123")
	require.NoError(t, err)
	assert.Equal(t, "Ana", rec["motorista"])
	assert.Equal(t, "ROTA 01", rec["rota"])
	assert.Equal(t, true, rec["ativo"])
	assert.InDelta(t, -3.1, rec["latitude"].(float64), 1e-9)
}

func TestDocstoreSink_TerminalUpsertKeepsLastPosition(t *testing.T) {
	t.Parallel()

	sink, store := setupDocstoreSink(t)
	ctx := context.Background()

	require.NoError(t, sink.Upsert(ctx, locationRecord(true, -3.1, -60.0)))

	// The terminal upsert carries a zero sample; it must flip the flag
	// without wiping the last known position.
	terminal := LocationRecord{
		Driver: Driver{ID: "M123", Name: "Ana"},
		Route:  "ROTA 01",
		Sample: geoloc.Sample{CapturedAt: time.Now()},
		Active: false,
	}
	require.NoError(t, sink.Upsert(ctx, terminal))

	rec, err := store.ReadRecord(ctx, docstore.CollectionRotasAtivas, "M123")
	require.NoError(t, err)
	assert.Equal(t, false, rec["ativo"])
	assert.InDelta(t, -3.1, rec["latitude"].(float64), 1e-9)
	assert.InDelta(t, -60.0, rec["longitude"].(float64), 1e-9)
}

// fakeMQTT records published payloads.
type fakeMQTT struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (f *fakeMQTT) Connect(context.Context) error { return nil }
func (f *fakeMQTT) IsConnected() bool             { return true }
func (f *fakeMQTT) Disconnect()                   {}

func (f *fakeMQTT) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestMQTTSink_PublishesPerDriverTopic(t *testing.T) {
	t.Parallel()

	client := &fakeMQTT{}
	sink := NewMQTTSink(client, "actransporte/rotas")

	speed := 12.5
	rec := locationRecord(true, -3.1, -60.0)
	rec.Sample.Speed = &speed
	require.NoError(t, sink.Upsert(context.Background(), rec))

	require.Len(t, client.topics, 1)
	assert.Equal(t, "actransporte/rotas/M123", client.topics[0])

	var payload map[string]any
	require.NoError(t, json.Unmarshal(client.payloads[0], &payload))
	assert.Equal(t, "Ana", payload["motorista"])
	assert.Equal(t, "ROTA 01", payload["rota"])
	assert.Equal(t, true, payload["ativo"])
	assert.InDelta(t, 12.5, payload["speed"].(float64), 1e-9)
}

func TestMultiSink_PrimaryErrorWins(t *testing.T) {
	t.Parallel()

	primary := &recordingSink{}
	primaryErr := errors.NewStd("primary down")
	primary.failNextUpserts(1, primaryErr)
	secondary := &recordingSink{}

	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	sink := NewMultiSink(log, primary, secondary)

	err := sink.Upsert(context.Background(), locationRecord(true, 1, 2))
	assert.ErrorIs(t, err, primaryErr)

	// The secondary still received the record.
	assert.Len(t, secondary.all(), 1)
}

func TestMultiSink_SecondaryFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	primary := &recordingSink{}
	secondary := &recordingSink{}
	secondary.failNextUpserts(1, errors.NewStd("mqtt offline"))

	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	sink := NewMultiSink(log, primary, secondary)

	require.NoError(t, sink.Upsert(context.Background(), locationRecord(true, 1, 2)))
	assert.Len(t, primary.all(), 1)
}
