// Package docstore implements the document-store contract the portal runs
// against: keyed record reads, merging upserts, and collection
// subscriptions with in-process change fan-out. The backing store is GORM
// over sqlite (default) or mysql.
package docstore

import (
	"context"

	"github.com/actransporte/portal/internal/docstore/entities"
	"github.com/actransporte/portal/internal/errors"
)

// Collection names. These match the document keys the portal frontend was
// written against.
const (
	CollectionColaboradores = "colaboradores"
	CollectionRotasAtivas   = "rotas_ativas"
)

// ErrRecordAbsent is returned by ReadRecord when no record exists under the
// given id.
var ErrRecordAbsent = errors.NewStd("docstore: record absent")

// Record is one document as a field map, mirroring the schemaless contract
// the frontend consumed.
type Record map[string]any

// Unsubscribe cancels a collection subscription. Idempotent.
type Unsubscribe func()

// Store is the document-store contract.
type Store interface {
	// ReadRecord returns the record stored under id in collection, or
	// ErrRecordAbsent.
	ReadRecord(ctx context.Context, collection, id string) (Record, error)

	// UpsertRecord inserts or merges fields into the record under id.
	// Merge semantics: fields absent from the map keep their stored value.
	UpsertRecord(ctx context.Context, collection, id string, fields Record) error

	// SubscribeCollection registers onChange to receive the collection's
	// full record set after every upsert.
	SubscribeCollection(collection string, onChange func(records []Record)) (Unsubscribe, error)

	// Colaborador reads one employee record in typed form.
	Colaborador(ctx context.Context, matricula string) (*entities.Colaborador, error)

	// ColaboradorByEmail looks an employee up by sign-in email.
	ColaboradorByEmail(ctx context.Context, email string) (*entities.Colaborador, error)

	// SaveColaborador inserts or replaces an employee record.
	SaveColaborador(ctx context.Context, c *entities.Colaborador) error

	// ActiveRoutes lists live-route records currently marked active.
	ActiveRoutes(ctx context.Context) ([]entities.RotaAtiva, error)

	// Close releases the backing database and stops the change notifier.
	Close() error
}
