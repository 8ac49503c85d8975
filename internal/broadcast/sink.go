// Package broadcast implements the location broadcast loop: a supervised,
// cancellable stream of position samples from a driver's device to the
// live-route sink, with one session per driver and idempotent stop.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/actransporte/portal/internal/docstore"
	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/geoloc"
	"github.com/actransporte/portal/internal/logger"
	"github.com/actransporte/portal/internal/mqtt"
)

// Driver identifies the broadcasting employee.
type Driver struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LocationRecord is one sink upsert: where this driver is now.
type LocationRecord struct {
	Driver Driver
	Route  string
	Sample geoloc.Sample
	Active bool
}

// Sink receives location upserts keyed by driver identity.
type Sink interface {
	Name() string
	Upsert(ctx context.Context, rec LocationRecord) error
}

// DocstoreSink writes live-route records to the document store. This is
// the primary sink: the confirmation sample must land here before a
// session is declared active.
type DocstoreSink struct {
	store docstore.Store
}

// NewDocstoreSink creates the document-store sink.
func NewDocstoreSink(store docstore.Store) *DocstoreSink {
	return &DocstoreSink{store: store}
}

// Name implements Sink.
func (s *DocstoreSink) Name() string { return "docstore" }

// Upsert implements Sink. A terminal upsert (Active false) only flips the
// active flag and timestamp; the merge keeps the last known position on
// the record instead of zeroing it.
func (s *DocstoreSink) Upsert(ctx context.Context, rec LocationRecord) error {
	fields := docstore.Record{
		"motorista": rec.Driver.Name,
		"rota":      rec.Route,
		"ativo":     rec.Active,
		"timestamp": rec.Sample.CapturedAt,
	}
	if rec.Active {
		fields["latitude"] = rec.Sample.Latitude
		fields["longitude"] = rec.Sample.Longitude
		fields["accuracy"] = rec.Sample.Accuracy
		if rec.Sample.Speed != nil {
			fields["speed"] = *rec.Sample.Speed
		}
	}
	if err := s.store.UpsertRecord(ctx, docstore.CollectionRotasAtivas, rec.Driver.ID, fields); err != nil {
		return errors.New(err).
			Component("broadcast").
			Category(errors.CategorySinkWrite).
			Context("driver", rec.Driver.ID).
			Build()
	}
	return nil
}

// MQTTSink publishes each sample as JSON to <prefix>/<driver id>. Purely
// best-effort fan-out for external consumers.
type MQTTSink struct {
	client mqtt.Client
	prefix string
}

// NewMQTTSink creates the MQTT fan-out sink.
func NewMQTTSink(client mqtt.Client, topicPrefix string) *MQTTSink {
	return &MQTTSink{client: client, prefix: topicPrefix}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

type mqttPayload struct {
	Motorista string   `json:"motorista"`
	Rota      string   `json:"rota"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
	Speed     *float64 `json:"speed,omitempty"`
	Ativo     bool     `json:"ativo"`
	Timestamp string   `json:"timestamp"`
}

// Upsert implements Sink.
func (s *MQTTSink) Upsert(ctx context.Context, rec LocationRecord) error {
	payload, err := json.Marshal(mqttPayload{
		Motorista: rec.Driver.Name,
		Rota:      rec.Route,
		Latitude:  rec.Sample.Latitude,
		Longitude: rec.Sample.Longitude,
		Accuracy:  rec.Sample.Accuracy,
		Speed:     rec.Sample.Speed,
		Ativo:     rec.Active,
		Timestamp: rec.Sample.CapturedAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.prefix+"/"+rec.Driver.ID, payload)
}

// MultiSink fans an upsert out to a primary sink and best-effort
// secondaries. The primary's error is returned; secondary failures are
// only logged.
type MultiSink struct {
	primary     Sink
	secondaries []Sink
	log         logger.Logger
}

// NewMultiSink creates a fan-out sink. The first argument is the primary.
func NewMultiSink(log logger.Logger, primary Sink, secondaries ...Sink) *MultiSink {
	return &MultiSink{primary: primary, secondaries: secondaries, log: log}
}

// Name implements Sink.
func (s *MultiSink) Name() string { return s.primary.Name() }

// Upsert implements Sink.
func (s *MultiSink) Upsert(ctx context.Context, rec LocationRecord) error {
	err := s.primary.Upsert(ctx, rec)
	for _, sec := range s.secondaries {
		if secErr := sec.Upsert(ctx, rec); secErr != nil {
			s.log.Warn("secondary sink write failed",
				logger.String("sink", sec.Name()),
				logger.String("driver", rec.Driver.ID),
				logger.Error(secErr))
		}
	}
	return err
}
