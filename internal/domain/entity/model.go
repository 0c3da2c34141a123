// Package entity stores FHIR resources as JSON documents, keeps their search
// index in step and records every mutation in the history trail.
package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/Stupremee/fhir/internal/platform/history"
	"github.com/Stupremee/fhir/internal/platform/search"
)

const (
	fieldID           = "id"
	fieldResourceType = "resourceType"
)

var (
	ErrNotObject           = errors.New("the given entity is not a JSON object")
	ErrMissingResourceType = errors.New("the given entity does not have a 'resourceType'")
	ErrInvalidDocument     = errors.New("the given entity does not match the schema of its resource type")
	ErrNotFound            = errors.New("entity not found")
	ErrSearchPredicate     = errors.New("exactly one search parameter must be provided")
)

// IsInputError reports whether err was caused by the caller's input rather
// than by a constraint or the storage layer.
func IsInputError(err error) bool {
	return errors.Is(err, ErrNotObject) ||
		errors.Is(err, ErrMissingResourceType) ||
		errors.Is(err, ErrSearchPredicate) ||
		search.IsInputError(err)
}

// Entity is a stored resource. Data never carries "id" or "resourceType";
// both are columns and are put back by Document.
type Entity struct {
	ID           uuid.UUID
	ResourceType string
	Data         json.RawMessage
}

// Document returns the external shape of the entity.
func (e *Entity) Document() (json.RawMessage, error) {
	doc, err := decodeObject(e.Data)
	if err != nil {
		return nil, fmt.Errorf("decode entity %s: %w", e.ID, err)
	}
	doc[fieldID] = e.ID.String()
	doc[fieldResourceType] = e.ResourceType
	return encode(doc)
}

// payload is an inbound document split into its stored body and the
// identity fields removed from it.
type payload struct {
	resourceType string
	hasType      bool
	data         json.RawMessage
}

func parsePayload(raw []byte) (*payload, error) {
	doc, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	p := &payload{}
	if v, ok := doc[fieldResourceType]; ok {
		p.resourceType, p.hasType = v.(string)
		p.hasType = p.hasType && p.resourceType != ""
	}
	delete(doc, fieldResourceType)
	delete(doc, fieldID)

	if p.data, err = encode(doc); err != nil {
		return nil, err
	}
	return p, nil
}

// decodeObject decodes raw into a map, keeping numbers as json.Number so
// values survive the round trip unchanged.
func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", ErrNotObject)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

func encode(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// HistoryView is the current document of an entity with its full trail.
type HistoryView struct {
	Current json.RawMessage  `json:"current"`
	History []*history.Entry `json:"history"`
}
