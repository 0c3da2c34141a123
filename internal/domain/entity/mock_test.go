package entity

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Stupremee/fhir/internal/platform/history"
	"github.com/Stupremee/fhir/internal/platform/index"
)

// -- In-memory store shared by the mocks --

type textRow struct {
	id       int
	entityID uuid.UUID
	entity   string
	key      string
	value    string
}

type dateRow struct {
	id       int
	entityID uuid.UUID
	entity   string
	key      string
	value    time.Time
}

type memState struct {
	entities map[uuid.UUID]Entity
	texts    []textRow
	dates    []dateRow
	history  []history.Entry
	seq      int
}

func (s memState) clone() memState {
	out := memState{
		entities: make(map[uuid.UUID]Entity, len(s.entities)),
		texts:    append([]textRow(nil), s.texts...),
		dates:    append([]dateRow(nil), s.dates...),
		history:  append([]history.Entry(nil), s.history...),
		seq:      s.seq,
	}
	for k, v := range s.entities {
		out.entities[k] = v
	}
	return out
}

type memStore struct {
	state memState
	// indexQueries counts the queries that reached an index table.
	indexQueries int
	failAppend   error
}

func newMemStore() *memStore {
	return &memStore{state: memState{entities: make(map[uuid.UUID]Entity)}}
}

// InTx snapshots the state and restores it when fn fails.
func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := m.state.clone()
	if err := fn(ctx); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// -- Repository --

type mockRepo struct{ *memStore }

func (m mockRepo) Insert(_ context.Context, e *Entity) error {
	if _, ok := m.state.entities[e.ID]; ok {
		return errors.New("duplicate key")
	}
	m.state.entities[e.ID] = *e
	return nil
}

func (m mockRepo) Get(_ context.Context, resourceType string, id uuid.UUID) (*Entity, error) {
	e, ok := m.state.entities[id]
	if !ok || e.ResourceType != resourceType {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m mockRepo) GetForUpdate(_ context.Context, id uuid.UUID) (*Entity, error) {
	e, ok := m.state.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m mockRepo) GetMany(ctx context.Context, resourceType string, ids []uuid.UUID) ([]*Entity, error) {
	var out []*Entity
	for _, id := range ids {
		if e, err := m.Get(ctx, resourceType, id); err == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m mockRepo) Update(_ context.Context, e *Entity) error {
	old, ok := m.state.entities[e.ID]
	if !ok {
		return ErrNotFound
	}
	old.Data = e.Data
	m.state.entities[e.ID] = old
	return nil
}

func (m mockRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.state.entities[id]; !ok {
		return ErrNotFound
	}
	delete(m.state.entities, id)
	return m.DeleteIndex(ctx, id)
}

func (m mockRepo) InsertIndex(_ context.Context, e *Entity, v index.Values) error {
	for _, key := range v.SortedTextKeys() {
		for _, val := range v.Text[key] {
			m.state.seq++
			m.state.texts = append(m.state.texts, textRow{m.state.seq, e.ID, e.ResourceType, key, val})
		}
	}
	for _, key := range v.SortedDateKeys() {
		for _, val := range v.Date[key] {
			m.state.seq++
			m.state.dates = append(m.state.dates, dateRow{m.state.seq, e.ID, e.ResourceType, key, val})
		}
	}
	return nil
}

func (m mockRepo) DeleteIndex(_ context.Context, id uuid.UUID) error {
	texts := m.state.texts[:0:0]
	for _, r := range m.state.texts {
		if r.entityID != id {
			texts = append(texts, r)
		}
	}
	dates := m.state.dates[:0:0]
	for _, r := range m.state.dates {
		if r.entityID != id {
			dates = append(dates, r)
		}
	}
	m.state.texts, m.state.dates = texts, dates
	return nil
}

func (m mockRepo) textValues(id uuid.UUID, key string) []string {
	var out []string
	for _, r := range m.state.texts {
		if r.entityID == id && r.key == key {
			out = append(out, r.value)
		}
	}
	return out
}

func (m mockRepo) dateValues(id uuid.UUID, key string) []time.Time {
	var out []time.Time
	for _, r := range m.state.dates {
		if r.entityID == id && r.key == key {
			out = append(out, r.value)
		}
	}
	return out
}

// -- history.Repository --

type mockHistoryRepo struct{ *memStore }

func (m mockHistoryRepo) Append(_ context.Context, e *history.Entry) error {
	if m.failAppend != nil {
		return m.failAppend
	}
	e.ID = int64(len(m.state.history) + 1)
	e.Timestamp = time.Now().UTC()
	m.state.history = append(m.state.history, *e)
	return nil
}

func (m mockHistoryRepo) ListByEntity(_ context.Context, id uuid.UUID) ([]*history.Entry, error) {
	var out []*history.Entry
	for i := range m.state.history {
		if m.state.history[i].EntityID == id {
			e := m.state.history[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

// -- search.Runner --

// mockRunner evaluates the generated index query against the in-memory rows.
// It understands the comparison operators used by the tests.
type mockRunner struct{ *memStore }

func (m mockRunner) EntityIDs(_ context.Context, sql string, args ...any) ([]uuid.UUID, error) {
	m.indexQueries++
	entity, key := args[0].(string), args[1].(string)

	type match struct {
		id  int
		eid uuid.UUID
	}
	var matches []match

	switch {
	case strings.Contains(sql, index.KeyText.Table()):
		want := args[2].(string)
		for _, r := range m.state.texts {
			if r.entity == entity && r.key == key && compareText(sql, r.value, want) {
				matches = append(matches, match{r.id, r.entityID})
			}
		}
	case strings.Contains(sql, index.KeyDate.Table()):
		want := args[2].(time.Time)
		for _, r := range m.state.dates {
			if r.entity == entity && r.key == key && compareDate(sql, r.value, want) {
				matches = append(matches, match{r.id, r.entityID})
			}
		}
	default:
		return nil, errors.New("unexpected query: " + sql)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].id < matches[j].id })
	ids := make([]uuid.UUID, len(matches))
	for i, mt := range matches {
		ids[i] = mt.eid
	}
	return ids, nil
}

func compareText(sql, got, want string) bool {
	switch {
	case strings.Contains(sql, "value <> $3"):
		return got != want
	case strings.Contains(sql, "value = $3"):
		return got == want
	case strings.Contains(sql, "value ILIKE $3"):
		return strings.Contains(strings.ToLower(got), strings.Trim(strings.ToLower(want), "%"))
	}
	return false
}

func compareDate(sql string, got, want time.Time) bool {
	switch {
	case strings.Contains(sql, "value = $3"):
		return got.Equal(want)
	case strings.Contains(sql, "value >= $3"):
		return !got.Before(want)
	case strings.Contains(sql, "value > $3"):
		return got.After(want)
	case strings.Contains(sql, "value <= $3"):
		return !got.After(want)
	case strings.Contains(sql, "value < $3"):
		return got.Before(want)
	}
	return false
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
