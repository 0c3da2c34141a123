package search

import (
	"fmt"
	"strings"
)

// Operator is a comparison between an index value and a search value.
type Operator int

const (
	OpEq Operator = iota + 1
	OpNe
	OpLt
	OpLte
	OpGt
	OpGte
	OpLike
	OpTrgm
)

var operatorTokens = map[string]Operator{
	"eq": OpEq, "=": OpEq,
	"ne": OpNe, "!=": OpNe, "<>": OpNe,
	"lt": OpLt, "<": OpLt,
	"lte": OpLte, "<=": OpLte,
	"gt": OpGt, ">": OpGt,
	"gte": OpGte, ">=": OpGte,
	"like": OpLike, "~": OpLike,
	"trgm": OpTrgm, "%": OpTrgm,
}

// ParseOperator maps a caller token to an Operator.
func ParseOperator(token string) (Operator, error) {
	op, ok := operatorTokens[token]
	if !ok {
		return 0, fmt.Errorf("%w: '%s'", ErrUnknownOperator, token)
	}
	return op, nil
}

func (o Operator) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpLt:
		return "lt"
	case OpLte:
		return "lte"
	case OpGt:
		return "gt"
	case OpGte:
		return "gte"
	case OpLike:
		return "like"
	case OpTrgm:
		return "trgm"
	default:
		return "unknown"
	}
}

// SQL is the PostgreSQL operator. OpTrgm needs the pg_trgm extension.
func (o Operator) SQL() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLike:
		return "ILIKE"
	case OpTrgm:
		return "%"
	default:
		return ""
	}
}

// TextOnly reports whether the operator only applies to text values.
func (o Operator) TextOnly() bool {
	return o == OpLike || o == OpTrgm
}

// httpPrefixes are checked in order; the four-letter ones first so "like"
// is never read as an unknown two-letter prefix.
var httpPrefixes = []struct {
	prefix string
	op     Operator
}{
	{"like", OpLike},
	{"trgm", OpTrgm},
	{"eq", OpEq},
	{"ne", OpNe},
	{"gt", OpGt},
	{"ge", OpGte},
	{"lt", OpLt},
	{"le", OpLte},
}

// ParsePrefixed splits a query-string value such as "gefemale" or
// "like%lux%" into its operator and comparison value. A value without a known
// prefix is an equality comparison on the whole value.
func ParsePrefixed(raw string) (Operator, string) {
	for _, p := range httpPrefixes {
		if strings.HasPrefix(raw, p.prefix) {
			return p.op, raw[len(p.prefix):]
		}
	}
	return OpEq, raw
}
