package entity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Stupremee/fhir/internal/platform/history"
	"github.com/Stupremee/fhir/internal/platform/index"
	"github.com/Stupremee/fhir/internal/platform/metrics"
	"github.com/Stupremee/fhir/internal/platform/schema"
	"github.com/Stupremee/fhir/internal/platform/search"
	"github.com/Stupremee/fhir/pkg/pagination"
)

// Deps are the collaborators of a Service. Repo should already enforce the
// schema, see WithSchema.
type Deps struct {
	Repo      Repository
	Tx        TxRunner
	Hook      MutationHook
	History   HistoryReader
	Registry  *index.Registry
	Searcher  Searcher
	Validator *schema.Validator
	Logger    zerolog.Logger
}

type Service struct {
	repo      Repository
	tx        TxRunner
	hook      MutationHook
	history   HistoryReader
	registry  *index.Registry
	searcher  Searcher
	validator *schema.Validator
	logger    zerolog.Logger

	reindexOnUpdate bool
}

func NewService(d Deps) *Service {
	return &Service{
		repo:            d.Repo,
		tx:              d.Tx,
		hook:            d.Hook,
		history:         d.History,
		registry:        d.Registry,
		searcher:        d.Searcher,
		validator:       d.Validator,
		logger:          d.Logger.With().Str("component", "entity").Logger(),
		reindexOnUpdate: true,
	}
}

// SetReindexOnUpdate controls whether updates re-derive index rows. When off,
// index rows keep the values extracted at creation.
func (s *Service) SetReindexOnUpdate(on bool) { s.reindexOnUpdate = on }

// GenerateID returns a new time-ordered entity id.
func GenerateID() (uuid.UUID, error) {
	return uuid.NewV7()
}

// Create stores raw as a new entity and returns its id. Any "id" in raw is
// discarded.
func (s *Service) Create(ctx context.Context, raw json.RawMessage) (uuid.UUID, error) {
	p, err := parsePayload(raw)
	if err != nil {
		return uuid.Nil, err
	}
	if !p.hasType {
		return uuid.Nil, ErrMissingResourceType
	}

	id, err := GenerateID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate id: %w", err)
	}
	e := &Entity{ID: id, ResourceType: p.resourceType, Data: p.data}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Insert(ctx, e); err != nil {
			return err
		}
		if err := s.index(ctx, e); err != nil {
			return err
		}
		return s.hook.AfterInsert(ctx, e.ID, e.Data)
	})
	if err != nil {
		return uuid.Nil, err
	}

	metrics.EntityMutations.WithLabelValues(e.ResourceType, string(history.OpInsert)).Inc()
	return e.ID, nil
}

// Update replaces the document of an existing entity. "id" and
// "resourceType" in raw are ignored; the stored resource type is kept and the
// document is validated against it. A non-empty resourceType limits the
// update to entities of that type.
func (s *Service) Update(ctx context.Context, resourceType string, id uuid.UUID, raw json.RawMessage) (*Entity, error) {
	p, err := parsePayload(raw)
	if err != nil {
		return nil, err
	}

	var e *Entity
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		old, err := s.lock(ctx, resourceType, id)
		if err != nil {
			return err
		}
		if p.hasType && p.resourceType != old.ResourceType {
			s.logger.Warn().
				Str("entity_id", id.String()).
				Str("resource_type", old.ResourceType).
				Str("given_resource_type", p.resourceType).
				Msg("ignoring resourceType change on update")
		}

		e = &Entity{ID: id, ResourceType: old.ResourceType, Data: p.data}
		if err := s.repo.Update(ctx, e); err != nil {
			return err
		}
		if s.reindexOnUpdate {
			if err := s.repo.DeleteIndex(ctx, id); err != nil {
				return fmt.Errorf("clear index: %w", err)
			}
			if err := s.index(ctx, e); err != nil {
				return err
			}
		}
		return s.hook.AfterUpdate(ctx, id, old.Data, e.Data)
	})
	if err != nil {
		return nil, err
	}

	metrics.EntityMutations.WithLabelValues(e.ResourceType, string(history.OpUpdate)).Inc()
	return e, nil
}

// Delete removes an entity. Its index rows go with it, its history stays.
func (s *Service) Delete(ctx context.Context, resourceType string, id uuid.UUID) error {
	var rt string
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		old, err := s.lock(ctx, resourceType, id)
		if err != nil {
			return err
		}
		rt = old.ResourceType
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		return s.hook.AfterDelete(ctx, id, old.Data)
	})
	if err != nil {
		return err
	}

	metrics.EntityMutations.WithLabelValues(rt, string(history.OpDelete)).Inc()
	return nil
}

// Get returns the document of resourceType/id with "id" and "resourceType"
// filled in. A stored entity of another type is ErrNotFound.
func (s *Service) Get(ctx context.Context, resourceType string, id uuid.UUID) (json.RawMessage, error) {
	e, err := s.repo.Get(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}
	return e.Document()
}

// History returns the current document with its trail, oldest entry first.
func (s *Service) History(ctx context.Context, resourceType string, id uuid.UUID) (*HistoryView, error) {
	current, err := s.Get(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.history.Trail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if entries == nil {
		entries = []*history.Entry{}
	}
	return &HistoryView{Current: current, History: entries}, nil
}

// Search returns the ids matching one predicate, in index order.
func (s *Service) Search(ctx context.Context, resourceType, key, operator, value string) ([]uuid.UUID, error) {
	return s.searcher.Search(ctx, resourceType, key, operator, search.Raw(value))
}

// List runs one predicate and returns a page of the matching documents along
// with the number of distinct matches.
func (s *Service) List(ctx context.Context, resourceType, key string, op search.Operator, value string, p pagination.Params) ([]json.RawMessage, int, error) {
	ids, err := s.searcher.SearchOp(ctx, resourceType, key, op, search.Raw(value))
	if err != nil {
		return nil, 0, err
	}

	ids = dedupe(ids)
	start, end := p.Window(len(ids))
	entities, err := s.repo.GetMany(ctx, resourceType, ids[start:end])
	if err != nil {
		return nil, 0, err
	}

	docs := make([]json.RawMessage, 0, len(entities))
	for _, e := range entities {
		doc, err := e.Document()
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, len(ids), nil
}

// IsValid reports whether raw is a valid document of resourceType. Anything
// that is not a JSON object is invalid.
func (s *Service) IsValid(resourceType string, raw json.RawMessage) bool {
	doc, err := decodeObject(raw)
	if err != nil {
		return false
	}
	return s.validator.IsValidFor(resourceType, doc)
}

func (s *Service) lock(ctx context.Context, resourceType string, id uuid.UUID) (*Entity, error) {
	old, err := s.repo.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if resourceType != "" && old.ResourceType != resourceType {
		return nil, ErrNotFound
	}
	return old, nil
}

// index extracts and stores the index values of e. Values the extractor had
// to skip are logged; they never fail the write.
func (s *Service) index(ctx context.Context, e *Entity) error {
	values, err := s.registry.Extract(e.ResourceType, e.Data)
	if err != nil {
		return fmt.Errorf("extract index values: %w", err)
	}

	for _, w := range values.Warnings {
		metrics.IndexWarnings.WithLabelValues(e.ResourceType, w.Key).Inc()
		s.logger.Warn().
			Str("entity_id", e.ID.String()).
			Str("resource_type", e.ResourceType).
			Str("key", w.Key).
			Str("value", w.Value).
			Str("reason", w.Reason).
			Msg("skipping index value")
	}

	if values.Len() == 0 {
		return nil
	}
	if err := s.repo.InsertIndex(ctx, e, values); err != nil {
		return fmt.Errorf("store index values: %w", err)
	}
	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
