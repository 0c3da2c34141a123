package search

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Stupremee/fhir/internal/platform/db"
)

type runnerPG struct{ pool *pgxpool.Pool }

func NewRunnerPG(pool *pgxpool.Pool) Runner {
	return &runnerPG{pool: pool}
}

func (r *runnerPG) EntityIDs(ctx context.Context, sql string, args ...any) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}
