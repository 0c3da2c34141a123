package entity

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/Stupremee/fhir/internal/platform/history"
	"github.com/Stupremee/fhir/internal/platform/index"
	"github.com/Stupremee/fhir/internal/platform/search"
)

// Repository persists entities and their index rows. Implementations write
// through the transaction carried by ctx.
type Repository interface {
	Insert(ctx context.Context, e *Entity) error
	// Get returns ErrNotFound unless a row matches both id and resourceType.
	Get(ctx context.Context, resourceType string, id uuid.UUID) (*Entity, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Entity, error)
	// GetMany returns the entities of resourceType among ids, in the order of
	// ids. Missing ids are skipped.
	GetMany(ctx context.Context, resourceType string, ids []uuid.UUID) ([]*Entity, error)
	// Update replaces the document of e.ID. The resource type is never changed.
	Update(ctx context.Context, e *Entity) error
	Delete(ctx context.Context, id uuid.UUID) error

	InsertIndex(ctx context.Context, e *Entity, v index.Values) error
	DeleteIndex(ctx context.Context, id uuid.UUID) error
}

// TxRunner runs fn as one unit of work. An error from fn undoes everything
// fn wrote.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MutationHook is called inside the unit of work of every entity mutation,
// after the row has been written. An error aborts the mutation.
type MutationHook interface {
	AfterInsert(ctx context.Context, id uuid.UUID, data json.RawMessage) error
	AfterUpdate(ctx context.Context, id uuid.UUID, old, new json.RawMessage) error
	AfterDelete(ctx context.Context, id uuid.UUID, old json.RawMessage) error
}

// HistoryReader lists the audit trail of an entity, oldest first.
type HistoryReader interface {
	Trail(ctx context.Context, id uuid.UUID) ([]*history.Entry, error)
}

// Searcher resolves a single search predicate to entity ids.
type Searcher interface {
	Search(ctx context.Context, resourceType, key, operator string, v search.Value) ([]uuid.UUID, error)
	SearchOp(ctx context.Context, resourceType, key string, op search.Operator, v search.Value) ([]uuid.UUID, error)
}

var (
	_ MutationHook  = (*history.Recorder)(nil)
	_ HistoryReader = (*history.Recorder)(nil)
	_ Searcher      = (*search.Translator)(nil)
)
