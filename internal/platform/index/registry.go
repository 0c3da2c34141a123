// Package index derives searchable (key, value) pairs from stored documents.
//
// Each resource type that supports search registers a Capability: a pure
// extractor plus a resolver naming the value type behind every key. Resource
// types without a capability are stored and fetched normally but cannot be
// searched.
package index

import (
	"encoding/json"
	"sort"
	"time"
)

// KeyType is the value type backing an index key. It selects the index table.
type KeyType int

const (
	KeyText KeyType = iota + 1
	KeyDate
)

func (k KeyType) String() string {
	switch k {
	case KeyText:
		return "text"
	case KeyDate:
		return "date"
	default:
		return "unknown"
	}
}

// Table is the index table holding values of this type.
func (k KeyType) Table() string {
	return "fhir.entity_index_" + k.String()
}

// Warning reports a value that could not be indexed. It never rejects the
// write that produced it.
type Warning struct {
	Key    string
	Value  string
	Reason string
}

// Values are the index entries extracted from one document, grouped by type.
type Values struct {
	Text     map[string][]string
	Date     map[string][]time.Time
	Warnings []Warning
}

func (v *Values) AddText(key string, vals ...string) {
	if len(vals) == 0 {
		return
	}
	if v.Text == nil {
		v.Text = make(map[string][]string)
	}
	v.Text[key] = append(v.Text[key], vals...)
}

func (v *Values) AddDate(key string, vals ...time.Time) {
	if len(vals) == 0 {
		return
	}
	if v.Date == nil {
		v.Date = make(map[string][]time.Time)
	}
	v.Date[key] = append(v.Date[key], vals...)
}

func (v *Values) Warn(key, value, reason string) {
	v.Warnings = append(v.Warnings, Warning{Key: key, Value: value, Reason: reason})
}

// Len is the number of index rows the values produce.
func (v Values) Len() int {
	n := 0
	for _, vals := range v.Text {
		n += len(vals)
	}
	for _, vals := range v.Date {
		n += len(vals)
	}
	return n
}

// SortedTextKeys returns the text keys in a stable order.
func (v Values) SortedTextKeys() []string {
	return sortedKeys(v.Text)
}

// SortedDateKeys returns the date keys in a stable order.
func (v Values) SortedDateKeys() []string {
	return sortedKeys(v.Date)
}

func sortedKeys[T any](m map[string][]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Capability is the indexing support of a single resource type.
type Capability struct {
	// Extract derives index values from a stored document. It must not have
	// side effects.
	Extract func(doc json.RawMessage) (Values, error)
	// KeyType resolves the type backing key, or false for unknown keys.
	KeyType func(key string) (KeyType, bool)
	// Normalize maps a text search value to the form Extract stores for key.
	// Nil leaves values unchanged.
	Normalize func(key, value string) string
}

// Registry maps resource type names to their capability. It is built once
// and read-only afterwards.
type Registry struct {
	caps map[string]Capability
}

// NewRegistry copies caps into a new registry.
func NewRegistry(caps map[string]Capability) *Registry {
	r := &Registry{caps: make(map[string]Capability, len(caps))}
	for rt, c := range caps {
		r.caps[rt] = c
	}
	return r
}

// DefaultRegistry returns the registry of built-in extractors.
func DefaultRegistry() *Registry {
	return NewRegistry(map[string]Capability{
		ResourcePatient: PatientCapability(),
	})
}

// Searchable reports whether resourceType has a registered extractor.
func (r *Registry) Searchable(resourceType string) bool {
	_, ok := r.caps[resourceType]
	return ok
}

// ResourceTypes lists the searchable resource types in sorted order.
func (r *Registry) ResourceTypes() []string {
	out := make([]string, 0, len(r.caps))
	for rt := range r.caps {
		out = append(out, rt)
	}
	sort.Strings(out)
	return out
}

// Extract returns the index values for doc. Unregistered resource types
// yield empty values.
func (r *Registry) Extract(resourceType string, doc json.RawMessage) (Values, error) {
	c, ok := r.caps[resourceType]
	if !ok || c.Extract == nil {
		return Values{}, nil
	}
	return c.Extract(doc)
}

// KeyType resolves the type backing key for resourceType.
func (r *Registry) KeyType(resourceType, key string) (KeyType, bool) {
	c, ok := r.caps[resourceType]
	if !ok || c.KeyType == nil {
		return 0, false
	}
	return c.KeyType(key)
}

// NormalizeText maps a text search value for key to the stored form.
func (r *Registry) NormalizeText(resourceType, key, value string) string {
	c, ok := r.caps[resourceType]
	if !ok || c.Normalize == nil {
		return value
	}
	return c.Normalize(key, value)
}
