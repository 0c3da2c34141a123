package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strconv"
)

// ErrMalformedDocument is returned when a document cannot be diffed.
var ErrMalformedDocument = errors.New("malformed document")

// Diff partitions the leaf-level differences between two documents by
// dot-joined path. Changed and Added hold new values; Removed holds the old
// ones. A subtree that exists on one side only is recorded at its root.
type Diff struct {
	Added   map[string]any
	Changed map[string]any
	Removed map[string]any
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// Compute diffs two JSON object documents. Arrays are compared element by
// element after sorting both sides canonically, so reordering alone is not a
// change.
func Compute(old, new json.RawMessage) (Diff, error) {
	before, err := decodeObject(old)
	if err != nil {
		return Diff{}, fmt.Errorf("old document: %w", err)
	}
	after, err := decodeObject(new)
	if err != nil {
		return Diff{}, fmt.Errorf("new document: %w", err)
	}

	d := Diff{
		Added:   map[string]any{},
		Changed: map[string]any{},
		Removed: map[string]any{},
	}
	if err := diffObjects("", before, after, &d); err != nil {
		return Diff{}, err
	}
	return d, nil
}

// Identical reports whether two JSON object documents hold the same values,
// including array order and the textual form of numbers.
func Identical(old, new json.RawMessage) (bool, error) {
	before, err := decodeObject(old)
	if err != nil {
		return false, fmt.Errorf("old document: %w", err)
	}
	after, err := decodeObject(new)
	if err != nil {
		return false, fmt.Errorf("new document: %w", err)
	}
	return reflect.DeepEqual(before, after), nil
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformedDocument)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedDocument)
	}
	return obj, nil
}

func join(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}

func diffObjects(prefix string, old, new map[string]any, d *Diff) error {
	keys := make(map[string]struct{}, len(old)+len(new))
	for k := range old {
		keys[k] = struct{}{}
	}
	for k := range new {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, key := range sorted {
		path := join(prefix, key)
		oldVal, inOld := old[key]
		newVal, inNew := new[key]

		switch {
		case !inOld:
			d.Added[path] = newVal
		case !inNew:
			d.Removed[path] = oldVal
		default:
			if err := diffValues(path, oldVal, newVal, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func diffValues(path string, old, new any, d *Diff) error {
	switch o := old.(type) {
	case map[string]any:
		if n, ok := new.(map[string]any); ok {
			return diffObjects(path, o, n, d)
		}
	case []any:
		if n, ok := new.([]any); ok {
			return diffArrays(path, o, n, d)
		}
	}

	equal, err := scalarEqual(old, new)
	if err != nil {
		return fmt.Errorf("%w at %q: %v", ErrMalformedDocument, path, err)
	}
	if !equal {
		d.Changed[path] = new
	}
	return nil
}

func diffArrays(path string, old, new []any, d *Diff) error {
	a, err := canonicalSort(old)
	if err != nil {
		return fmt.Errorf("%w at %q: %v", ErrMalformedDocument, path, err)
	}
	b, err := canonicalSort(new)
	if err != nil {
		return fmt.Errorf("%w at %q: %v", ErrMalformedDocument, path, err)
	}

	for i := 0; i < len(a) || i < len(b); i++ {
		elem := join(path, strconv.Itoa(i))
		switch {
		case i >= len(a):
			d.Added[elem] = b[i]
		case i >= len(b):
			d.Removed[elem] = a[i]
		default:
			if err := diffValues(elem, a[i], b[i], d); err != nil {
				return err
			}
		}
	}
	return nil
}

// canonicalSort returns a copy of items ordered by their canonical encoding.
func canonicalSort(items []any) ([]any, error) {
	type keyed struct {
		key  string
		item any
	}
	ks := make([]keyed, len(items))
	for i, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		ks[i] = keyed{key: string(b), item: item}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].key < ks[j].key })

	out := make([]any, len(ks))
	for i, k := range ks {
		out[i] = k.item
	}
	return out, nil
}

func scalarEqual(a, b any) (bool, error) {
	an, aNum := a.(json.Number)
	bn, bNum := b.(json.Number)
	if aNum && bNum {
		if an == bn {
			return true, nil
		}
		ar, ok := new(big.Rat).SetString(string(an))
		if !ok {
			return false, fmt.Errorf("invalid number %q", an)
		}
		br, ok := new(big.Rat).SetString(string(bn))
		if !ok {
			return false, fmt.Errorf("invalid number %q", bn)
		}
		return ar.Cmp(br) == 0, nil
	}

	switch a.(type) {
	case nil, bool, string, json.Number:
	default:
		// Mixed container/scalar pairs are plain changes.
		return false, nil
	}
	return a == b, nil
}
