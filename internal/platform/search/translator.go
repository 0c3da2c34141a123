// Package search translates single-predicate searches into queries against
// the typed index tables.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Stupremee/fhir/internal/platform/index"
	"github.com/Stupremee/fhir/internal/platform/metrics"
)

var (
	ErrUnknownOperator     = errors.New("unknown search operator")
	ErrUnknownSearchKey    = errors.New("unknown search key")
	ErrInvalidValueType    = errors.New("the search value is not valid for this search key")
	ErrUnsupportedOperator = errors.New("search operator is not supported for this search key")
)

// IsInputError reports whether err was caused by the search request itself.
func IsInputError(err error) bool {
	return errors.Is(err, ErrUnknownOperator) ||
		errors.Is(err, ErrUnknownSearchKey) ||
		errors.Is(err, ErrInvalidValueType) ||
		errors.Is(err, ErrUnsupportedOperator)
}

// KeyResolver resolves the value type behind a search key.
type KeyResolver interface {
	KeyType(resourceType, key string) (index.KeyType, bool)
}

// TextNormalizer is implemented by resolvers whose extractors store text
// values of some keys in a normalised form.
type TextNormalizer interface {
	NormalizeText(resourceType, key, value string) string
}

// Runner executes an index query and returns the matched entity ids in the
// order the query produced them.
type Runner interface {
	EntityIDs(ctx context.Context, sql string, args ...any) ([]uuid.UUID, error)
}

// Query is a resolved single-predicate search.
type Query struct {
	ResourceType string
	Key          string
	Operator     Operator
	KeyType      index.KeyType
	Arg          any
}

// SQL renders the query against the index table of q.KeyType.
func (q Query) SQL() (string, []any) {
	sql := "SELECT entity_id FROM " + q.KeyType.Table() +
		" WHERE entity = $1 AND key = $2 AND value " + q.Operator.SQL() + " $3" +
		" ORDER BY id"
	return sql, []any{q.ResourceType, q.Key, q.Arg}
}

// Translate resolves operator token, key and value into a Query.
func Translate(r KeyResolver, resourceType, key, operator string, v Value) (Query, error) {
	op, err := ParseOperator(operator)
	if err != nil {
		return Query{}, err
	}
	return TranslateOp(r, resourceType, key, op, v)
}

// TranslateOp is Translate for an already parsed operator.
func TranslateOp(r KeyResolver, resourceType, key string, op Operator, v Value) (Query, error) {
	kt, ok := r.KeyType(resourceType, key)
	if !ok {
		return Query{}, fmt.Errorf("%w: '%s'", ErrUnknownSearchKey, key)
	}

	arg, err := v.bind(kt)
	if err != nil {
		return Query{}, err
	}
	if n, ok := r.(TextNormalizer); ok && kt == index.KeyText {
		arg = n.NormalizeText(resourceType, key, arg.(string))
	}

	if op.TextOnly() && kt != index.KeyText {
		return Query{}, fmt.Errorf("%w: %s on %s key '%s'", ErrUnsupportedOperator, op, kt, key)
	}

	return Query{
		ResourceType: resourceType,
		Key:          key,
		Operator:     op,
		KeyType:      kt,
		Arg:          arg,
	}, nil
}

// Translator runs searches against the index.
type Translator struct {
	resolver KeyResolver
	runner   Runner
}

func NewTranslator(resolver KeyResolver, runner Runner) *Translator {
	return &Translator{resolver: resolver, runner: runner}
}

// Search returns the ids of entities of resourceType whose key compares to v
// under operator. Input errors are returned before any index is queried.
func (t *Translator) Search(ctx context.Context, resourceType, key, operator string, v Value) ([]uuid.UUID, error) {
	op, err := ParseOperator(operator)
	if err != nil {
		return nil, err
	}
	return t.SearchOp(ctx, resourceType, key, op, v)
}

// SearchOp is Search for an already parsed operator.
func (t *Translator) SearchOp(ctx context.Context, resourceType, key string, op Operator, v Value) ([]uuid.UUID, error) {
	q, err := TranslateOp(t.resolver, resourceType, key, op, v)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sql, args := q.SQL()
	ids, err := t.runner.EntityIDs(ctx, sql, args...)
	metrics.SearchDuration.WithLabelValues(resourceType, key, op.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("search %s.%s: %w", resourceType, key, err)
	}
	return ids, nil
}
