package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Stupremee/fhir/internal/platform/metrics"
)

// Repository persists history entries. Implementations must write through
// the transaction carried by ctx so entries commit with their mutation.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*Entry, error)
}

// Recorder turns entity mutations into history entries. The entity store
// calls it inside the unit of work of every insert, update and delete; an
// error from the recorder aborts that unit of work.
type Recorder struct {
	repo   Repository
	logger zerolog.Logger
}

func NewRecorder(repo Repository, logger zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger.With().Str("component", "history").Logger()}
}

func (r *Recorder) AfterInsert(ctx context.Context, entityID uuid.UUID, data json.RawMessage) error {
	return r.append(ctx, &Entry{EntityID: entityID, Operation: OpInsert, Data: clone(data)})
}

func (r *Recorder) AfterDelete(ctx context.Context, entityID uuid.UUID, old json.RawMessage) error {
	return r.append(ctx, &Entry{EntityID: entityID, Operation: OpDelete, Data: clone(old)})
}

// AfterUpdate records the structural diff between old and new. Nothing is
// written when the documents are identical. Documents that differ only in
// ways the diff ignores, such as array order, get an entry with empty diffs.
func (r *Recorder) AfterUpdate(ctx context.Context, entityID uuid.UUID, old, new json.RawMessage) error {
	same, err := Identical(old, new)
	if err != nil {
		return fmt.Errorf("diff entity %s: %w", entityID, err)
	}
	if same {
		r.logger.Debug().Str("entity_id", entityID.String()).Msg("update without changes, no history written")
		return nil
	}
	d, err := Compute(old, new)
	if err != nil {
		return fmt.Errorf("diff entity %s: %w", entityID, err)
	}
	return r.append(ctx, &Entry{
		EntityID:  entityID,
		Operation: OpUpdate,
		Added:     d.Added,
		Changed:   d.Changed,
		Removed:   d.Removed,
	})
}

// Trail returns every entry of an entity, oldest first.
func (r *Recorder) Trail(ctx context.Context, entityID uuid.UUID) ([]*Entry, error) {
	return r.repo.ListByEntity(ctx, entityID)
}

func (r *Recorder) append(ctx context.Context, e *Entry) error {
	if err := r.repo.Append(ctx, e); err != nil {
		return fmt.Errorf("append %s history for entity %s: %w", e.Operation, e.EntityID, err)
	}
	metrics.HistoryEntries.WithLabelValues(string(e.Operation)).Inc()
	return nil
}

func clone(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
