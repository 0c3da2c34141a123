package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Stupremee/fhir/internal/platform/db"
	"github.com/Stupremee/fhir/internal/platform/index"
	"github.com/Stupremee/fhir/internal/platform/metrics"
)

// SQLSTATE for a violated CHECK constraint.
const checkViolation = "23514"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Insert(ctx context.Context, e *Entity) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO fhir.entity (id, resource_type, data) VALUES ($1, $2, $3)`,
		e.ID, e.ResourceType, []byte(e.Data))
	return mapPgError(err)
}

func (r *repoPG) Get(ctx context.Context, resourceType string, id uuid.UUID) (*Entity, error) {
	e := &Entity{ID: id, ResourceType: resourceType}
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT data FROM fhir.entity WHERE id = $1 AND resource_type = $2`,
		id, resourceType).Scan(&e.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Entity, error) {
	e := &Entity{ID: id}
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT resource_type, data FROM fhir.entity WHERE id = $1 FOR UPDATE`,
		id).Scan(&e.ResourceType, &e.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repoPG) GetMany(ctx context.Context, resourceType string, ids []uuid.UUID) ([]*Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, data FROM fhir.entity WHERE resource_type = $1 AND id = ANY($2::uuid[])`,
		resourceType, keys)
	if err != nil {
		return nil, err
	}

	found, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Entity, error) {
		e := &Entity{ResourceType: resourceType}
		return e, row.Scan(&e.ID, &e.Data)
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*Entity, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}
	out := make([]*Entity, 0, len(found))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *repoPG) Update(ctx context.Context, e *Entity) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE fhir.entity SET data = $2 WHERE id = $1`,
		e.ID, []byte(e.Data))
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM fhir.entity WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertIndex writes all values in one round trip.
func (r *repoPG) InsertIndex(ctx context.Context, e *Entity, v index.Values) error {
	b := &pgx.Batch{}
	textSQL := `INSERT INTO ` + index.KeyText.Table() + ` (entity_id, entity, key, value) VALUES ($1, $2, $3, $4)`
	dateSQL := `INSERT INTO ` + index.KeyDate.Table() + ` (entity_id, entity, key, value) VALUES ($1, $2, $3, $4)`

	var texts, dates int
	for _, key := range v.SortedTextKeys() {
		for _, val := range v.Text[key] {
			b.Queue(textSQL, e.ID, e.ResourceType, key, val)
			texts++
		}
	}
	for _, key := range v.SortedDateKeys() {
		for _, val := range v.Date[key] {
			b.Queue(dateSQL, e.ID, e.ResourceType, key, val)
			dates++
		}
	}
	if b.Len() == 0 {
		return nil
	}

	br := r.conn(ctx).SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert index row: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	metrics.IndexRows.WithLabelValues(e.ResourceType, index.KeyText.String()).Add(float64(texts))
	metrics.IndexRows.WithLabelValues(e.ResourceType, index.KeyDate.String()).Add(float64(dates))
	return nil
}

func (r *repoPG) DeleteIndex(ctx context.Context, id uuid.UUID) error {
	b := &pgx.Batch{}
	for _, kt := range []index.KeyType{index.KeyText, index.KeyDate} {
		b.Queue(`DELETE FROM `+kt.Table()+` WHERE entity_id = $1`, id)
	}
	return r.conn(ctx).SendBatch(ctx, b).Close()
}

// mapPgError turns the table's CHECK constraints into ErrInvalidDocument.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == checkViolation {
		return fmt.Errorf("%w: %s", ErrInvalidDocument, pgErr.ConstraintName)
	}
	return err
}
