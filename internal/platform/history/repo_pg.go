package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Stupremee/fhir/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Append(ctx context.Context, e *Entry) error {
	added, err := marshalMap(e.Added)
	if err != nil {
		return err
	}
	changed, err := marshalMap(e.Changed)
	if err != nil {
		return err
	}
	removed, err := marshalMap(e.Removed)
	if err != nil {
		return err
	}

	var data []byte
	if e.Operation != OpUpdate {
		data = e.Data
	}

	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO fhir.entity_history
			(entity_id, timestamp, operation, data, update_added_values, update_changed_values, update_removed_values)
		VALUES ($1, now(), $2, $3, $4, $5, $6)
		RETURNING id, timestamp`,
		e.EntityID, string(e.Operation), data, added, changed, removed,
	).Scan(&e.ID, &e.Timestamp)
}

func (r *repoPG) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, entity_id, timestamp, operation, data,
			update_added_values, update_changed_values, update_removed_values
		FROM fhir.entity_history
		WHERE entity_id = $1
		ORDER BY timestamp ASC, id ASC`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e                       Entry
			op                      string
			data                    []byte
			added, changed, removed []byte
		)
		if err := rows.Scan(&e.ID, &e.EntityID, &e.Timestamp, &op, &data, &added, &changed, &removed); err != nil {
			return nil, err
		}
		e.Operation = Operation(op)
		if !e.Operation.Valid() {
			return nil, fmt.Errorf("history entry %d: unknown operation %q", e.ID, op)
		}
		if data != nil {
			e.Data = json.RawMessage(data)
		}
		if e.Added, err = unmarshalMap(added); err != nil {
			return nil, err
		}
		if e.Changed, err = unmarshalMap(changed); err != nil {
			return nil, err
		}
		if e.Removed, err = unmarshalMap(removed); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode diff: %w", err)
	}
	return b, nil
}

func unmarshalMap(raw []byte) (map[string]any, error) {
	if raw == nil {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode diff: %w", err)
	}
	return m, nil
}
