package history

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func mustCompute(t *testing.T, old, new string) Diff {
	t.Helper()
	d, err := Compute(json.RawMessage(old), json.RawMessage(new))
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	return d
}

func TestCompute_Identical(t *testing.T) {
	doc := `{"gender":"female","name":[{"family":"Lux-Brennard","given":["Marie"]}]}`
	if d := mustCompute(t, doc, doc); !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestCompute_Partition(t *testing.T) {
	old := `{"gender":"female","birthDate":"1998-04-17","active":true,"name":[{"family":"Lux-Brennard","given":["Marie"]}]}`
	new := `{"gender":"other","birthDate":"1998-04-17","language":"en","name":[{"family":"Lux","given":["Marie"]}]}`

	d := mustCompute(t, old, new)

	wantChanged := map[string]any{"gender": "other", "name.0.family": "Lux"}
	wantAdded := map[string]any{"language": "en"}
	wantRemoved := map[string]any{"active": true}

	if !reflect.DeepEqual(d.Changed, wantChanged) {
		t.Errorf("changed = %v, want %v", d.Changed, wantChanged)
	}
	if !reflect.DeepEqual(d.Added, wantAdded) {
		t.Errorf("added = %v, want %v", d.Added, wantAdded)
	}
	if !reflect.DeepEqual(d.Removed, wantRemoved) {
		t.Errorf("removed = %v, want %v", d.Removed, wantRemoved)
	}

	for path := range d.Changed {
		if _, ok := d.Added[path]; ok {
			t.Errorf("path %s in both changed and added", path)
		}
		if _, ok := d.Removed[path]; ok {
			t.Errorf("path %s in both changed and removed", path)
		}
	}
}

func TestCompute_SubtreeRecordedAtRoot(t *testing.T) {
	d := mustCompute(t,
		`{"meta":{"profile":["a"]}}`,
		`{"contact":[{"name":{"family":"Lux"}}]}`,
	)

	if _, ok := d.Removed["meta"]; !ok || len(d.Removed) != 1 {
		t.Errorf("expected meta removed as a whole, got %v", d.Removed)
	}
	if _, ok := d.Added["contact"]; !ok || len(d.Added) != 1 {
		t.Errorf("expected contact added as a whole, got %v", d.Added)
	}
}

func TestCompute_ArrayGrowthAndShrink(t *testing.T) {
	d := mustCompute(t, `{"given":["Marie"]}`, `{"given":["Marie","Anne"]}`)
	// Canonical ordering puts "Anne" first.
	if !reflect.DeepEqual(d.Changed, map[string]any{"given.0": "Anne"}) {
		t.Errorf("changed = %v", d.Changed)
	}
	if !reflect.DeepEqual(d.Added, map[string]any{"given.1": "Marie"}) {
		t.Errorf("added = %v", d.Added)
	}

	d = mustCompute(t, `{"given":["Anne","Marie"]}`, `{"given":["Anne"]}`)
	if !reflect.DeepEqual(d.Removed, map[string]any{"given.1": "Marie"}) {
		t.Errorf("removed = %v", d.Removed)
	}
	if len(d.Changed) != 0 || len(d.Added) != 0 {
		t.Errorf("unexpected changes: %+v", d)
	}
}

func TestCompute_ArrayReorderIsNoChange(t *testing.T) {
	d := mustCompute(t, `{"given":["Marie","Anne"]}`, `{"given":["Anne","Marie"]}`)
	if !d.Empty() {
		t.Errorf("expected reordering to be ignored, got %+v", d)
	}
}

func TestCompute_Numbers(t *testing.T) {
	if d := mustCompute(t, `{"n":1.0}`, `{"n":1}`); !d.Empty() {
		t.Errorf("expected numerically equal values to match, got %+v", d)
	}
	d := mustCompute(t, `{"n":1}`, `{"n":2}`)
	if got, ok := d.Changed["n"].(json.Number); !ok || got != "2" {
		t.Errorf("expected n changed to 2, got %v", d.Changed)
	}
}

func TestCompute_TypeChange(t *testing.T) {
	d := mustCompute(t, `{"x":"a"}`, `{"x":{"y":1}}`)
	if _, ok := d.Changed["x"]; !ok {
		t.Errorf("expected x changed, got %+v", d)
	}
	d = mustCompute(t, `{"x":[1]}`, `{"x":null}`)
	if v, ok := d.Changed["x"]; !ok || v != nil {
		t.Errorf("expected x changed to null, got %+v", d)
	}
}

func TestCompute_Malformed(t *testing.T) {
	tests := []struct{ old, new string }{
		{`{"a":1}`, `{"a":`},
		{`[1,2]`, `{"a":1}`},
		{`{"a":1}`, `"text"`},
		{`{"a":1} {"b":2}`, `{"a":1}`},
	}
	for _, tt := range tests {
		if _, err := Compute(json.RawMessage(tt.old), json.RawMessage(tt.new)); !errors.Is(err, ErrMalformedDocument) {
			t.Errorf("Compute(%s, %s): expected ErrMalformedDocument, got %v", tt.old, tt.new, err)
		}
	}
}
