package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/actransporte/portal/internal/conf"
	"github.com/actransporte/portal/internal/docstore/entities"
	"github.com/actransporte/portal/internal/errors"
	"github.com/actransporte/portal/internal/logger"
)

// changeQueueSize is the capacity of the async change-notification channel.
// Upserts never block on slow subscribers; excess notifications coalesce
// into the next delivery since every delivery carries the full record set.
const changeQueueSize = 256

// GormStore implements Store over a GORM database.
type GormStore struct {
	db  *gorm.DB
	log logger.Logger

	subMu  sync.Mutex
	nextID int
	subs   map[string]map[int]func(records []Record)

	changeCh chan string
	stopCh   chan struct{}
	stopOnce sync.Once
	done     sync.WaitGroup
}

// Open connects to the configured database, migrates the collections, and
// starts the change notifier.
func Open(settings conf.DocstoreSettings, log logger.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch settings.Driver {
	case "sqlite":
		dialector = sqlite.Open(settings.DSN)
	case "mysql":
		dialector = mysql.Open(settings.DSN)
	default:
		return nil, errors.Newf("unsupported docstore driver %q", settings.Driver).
			Component("docstore").
			Category(errors.CategoryConfig).
			Build()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open docstore: %w", err)
	}

	if err := db.AutoMigrate(&entities.Colaborador{}, &entities.RotaAtiva{}); err != nil {
		return nil, fmt.Errorf("failed to migrate docstore: %w", err)
	}

	s := &GormStore{
		db:       db,
		log:      log,
		subs:     make(map[string]map[int]func(records []Record)),
		changeCh: make(chan string, changeQueueSize),
		stopCh:   make(chan struct{}),
	}
	s.done.Add(1)
	go s.notifyLoop()
	return s, nil
}

// ReadRecord implements Store.
func (s *GormStore) ReadRecord(ctx context.Context, collection, id string) (Record, error) {
	switch collection {
	case CollectionColaboradores:
		c, err := s.Colaborador(ctx, id)
		if err != nil {
			return nil, err
		}
		return colaboradorRecord(c), nil
	case CollectionRotasAtivas:
		var r entities.RotaAtiva
		if err := s.db.WithContext(ctx).First(&r, "motorista_id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrRecordAbsent
			}
			return nil, fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
		}
		return rotaRecord(&r), nil
	default:
		return nil, errors.Newf("unknown collection %q", collection).
			Component("docstore").
			Category(errors.CategoryNotFound).
			Build()
	}
}

// UpsertRecord implements Store. Fields absent from the map keep their
// stored value, matching merge upsert semantics.
func (s *GormStore) UpsertRecord(ctx context.Context, collection, id string, fields Record) error {
	var err error
	switch collection {
	case CollectionColaboradores:
		err = s.upsertColaborador(ctx, id, fields)
	case CollectionRotasAtivas:
		err = s.upsertRota(ctx, id, fields)
	default:
		return errors.Newf("unknown collection %q", collection).
			Component("docstore").
			Category(errors.CategoryNotFound).
			Build()
	}
	if err != nil {
		return err
	}
	s.notifyChange(collection)
	return nil
}

func (s *GormStore) upsertColaborador(ctx context.Context, id string, fields Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c := entities.Colaborador{Matricula: id}
		if err := tx.First(&c, "matricula = ?", id).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		applyColaboradorFields(&c, fields)
		return tx.Save(&c).Error
	})
}

func (s *GormStore) upsertRota(ctx context.Context, id string, fields Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := entities.RotaAtiva{MotoristaID: id}
		if err := tx.First(&r, "motorista_id = ?", id).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		applyRotaFields(&r, fields)
		return tx.Save(&r).Error
	})
}

// SubscribeCollection implements Store.
func (s *GormStore) SubscribeCollection(collection string, onChange func(records []Record)) (Unsubscribe, error) {
	switch collection {
	case CollectionColaboradores, CollectionRotasAtivas:
	default:
		return nil, errors.Newf("unknown collection %q", collection).
			Component("docstore").
			Category(errors.CategoryNotFound).
			Build()
	}

	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[int]func(records []Record))
	}
	s.subs[collection][id] = onChange
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs[collection], id)
		s.subMu.Unlock()
	}, nil
}

// notifyChange queues a change notification without blocking the writer.
func (s *GormStore) notifyChange(collection string) {
	select {
	case s.changeCh <- collection:
	default:
		// Queue full; the pending notification already carries the change
		// since deliveries snapshot the full collection.
	}
}

// notifyLoop delivers collection snapshots to subscribers, one change at a
// time, off the writer's goroutine.
func (s *GormStore) notifyLoop() {
	defer s.done.Done()
	for {
		select {
		case collection := <-s.changeCh:
			s.deliver(collection)
		case <-s.stopCh:
			return
		}
	}
}

func (s *GormStore) deliver(collection string) {
	s.subMu.Lock()
	handlers := make([]func(records []Record), 0, len(s.subs[collection]))
	for _, h := range s.subs[collection] {
		handlers = append(handlers, h)
	}
	s.subMu.Unlock()
	if len(handlers) == 0 {
		return
	}

	records, err := s.collectionRecords(context.Background(), collection)
	if err != nil {
		s.log.Error("failed to snapshot collection for subscribers",
			logger.String("collection", collection),
			logger.Error(err))
		return
	}
	for _, h := range handlers {
		h(records)
	}
}

func (s *GormStore) collectionRecords(ctx context.Context, collection string) ([]Record, error) {
	switch collection {
	case CollectionColaboradores:
		var rows []entities.Colaborador
		if err := s.db.WithContext(ctx).Order("matricula ASC").Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]Record, 0, len(rows))
		for i := range rows {
			out = append(out, colaboradorRecord(&rows[i]))
		}
		return out, nil
	case CollectionRotasAtivas:
		var rows []entities.RotaAtiva
		if err := s.db.WithContext(ctx).Order("motorista_id ASC").Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]Record, 0, len(rows))
		for i := range rows {
			out = append(out, rotaRecord(&rows[i]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
}

// Colaborador implements Store.
func (s *GormStore) Colaborador(ctx context.Context, matricula string) (*entities.Colaborador, error) {
	var c entities.Colaborador
	if err := s.db.WithContext(ctx).First(&c, "matricula = ?", matricula).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordAbsent
		}
		return nil, fmt.Errorf("failed to read colaborador %s: %w", matricula, err)
	}
	return &c, nil
}

// ColaboradorByEmail implements Store.
func (s *GormStore) ColaboradorByEmail(ctx context.Context, email string) (*entities.Colaborador, error) {
	var c entities.Colaborador
	if err := s.db.WithContext(ctx).First(&c, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordAbsent
		}
		return nil, fmt.Errorf("failed to read colaborador by email: %w", err)
	}
	return &c, nil
}

// SaveColaborador implements Store.
func (s *GormStore) SaveColaborador(ctx context.Context, c *entities.Colaborador) error {
	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		return fmt.Errorf("failed to save colaborador %s: %w", c.Matricula, err)
	}
	s.notifyChange(CollectionColaboradores)
	return nil
}

// ActiveRoutes implements Store.
func (s *GormStore) ActiveRoutes(ctx context.Context) ([]entities.RotaAtiva, error) {
	var rows []entities.RotaAtiva
	if err := s.db.WithContext(ctx).Where("ativo = ?", true).Order("rota ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list active routes: %w", err)
	}
	return rows, nil
}

// Close implements Store.
func (s *GormStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.done.Wait()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Field application and record conversion. Field names are the document
// keys the frontend reads and writes.

func applyColaboradorFields(c *entities.Colaborador, fields Record) {
	if v, ok := fields["nome"].(string); ok {
		c.Nome = v
	}
	if v, ok := fields["ativo"].(bool); ok {
		c.Ativo = v
	}
	if v, ok := fields["perfil"].(string); ok {
		c.Perfil = v
	}
	if v, ok := fields["email"].(string); ok {
		c.Email = v
	}
	if v, ok := fields["password_hash"].(string); ok {
		c.PasswordHash = v
	}
}

func applyRotaFields(r *entities.RotaAtiva, fields Record) {
	if v, ok := fields["motorista"].(string); ok {
		r.Motorista = v
	}
	if v, ok := fields["rota"].(string); ok {
		r.Rota = v
	}
	if v, ok := asFloat(fields["latitude"]); ok {
		r.Latitude = v
	}
	if v, ok := asFloat(fields["longitude"]); ok {
		r.Longitude = v
	}
	if v, ok := asFloat(fields["accuracy"]); ok {
		r.Accuracy = v
	}
	if v, ok := asFloat(fields["speed"]); ok {
		speed := v
		r.Speed = &speed
	}
	if v, ok := fields["ativo"].(bool); ok {
		r.Ativo = v
	}
	if v, ok := fields["timestamp"].(time.Time); ok {
		r.Timestamp = v
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case *float64:
		if n == nil {
			return 0, false
		}
		return *n, true
	default:
		return 0, false
	}
}

func colaboradorRecord(c *entities.Colaborador) Record {
	return Record{
		"matricula": c.Matricula,
		"nome":      c.Nome,
		"ativo":     c.Ativo,
		"perfil":    c.Perfil,
		"email":     c.Email,
	}
}

func rotaRecord(r *entities.RotaAtiva) Record {
	out := Record{
		"motorista_id": r.MotoristaID,
		"motorista":    r.Motorista,
		"rota":         r.Rota,
		"latitude":     r.Latitude,
		"longitude":    r.Longitude,
		"accuracy":     r.Accuracy,
		"ativo":        r.Ativo,
		"timestamp":    r.Timestamp,
	}
	if r.Speed != nil {
		out["speed"] = *r.Speed
	}
	return out
}
