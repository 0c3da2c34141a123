// Package schema validates FHIR documents against the JSON schema bundled
// with the binary.
package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaURL is the resource URL the bundled schema is registered under.
const SchemaURL = "http://hl7.org/fhir/json-schema/4.0"

//go:embed fhir.schema.json
var bundled []byte

var (
	// ErrInvalid is returned when a document does not match the schema.
	ErrInvalid = errors.New("document does not match the FHIR schema")
	// ErrResourceTypeMismatch is returned by ValidateFor when the document
	// names a different resource type than the one expected.
	ErrResourceTypeMismatch = errors.New("resourceType does not match")
)

// Validator is a compiled schema. It is immutable and safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// New compiles raw as a JSON schema registered under SchemaURL.
func New(raw []byte) (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(SchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(SchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

var loadDefault = sync.OnceValues(func() (*Validator, error) {
	return New(bundled)
})

// Default returns the process-wide validator for the bundled schema. The
// schema is compiled on first use and never again.
func Default() (*Validator, error) {
	return loadDefault()
}

// Compile warms the default validator. It only has to be called to move the
// compilation cost to startup.
func Compile() error {
	_, err := Default()
	return err
}

// Validate checks doc, a value decoded from JSON, against the schema.
func (v *Validator) Validate(doc any) error {
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// IsValid reports whether doc matches the schema.
func (v *Validator) IsValid(doc any) bool {
	return v.Validate(doc) == nil
}

// ValidateFor checks doc as a resource of resourceType. A document naming a
// different resourceType fails; a document without one is validated as if it
// carried resourceType. doc itself is never modified.
func (v *Validator) ValidateFor(resourceType string, doc map[string]any) error {
	view := make(map[string]any, len(doc)+1)
	for k, val := range doc {
		view[k] = val
	}

	if existing, ok := doc["resourceType"]; ok {
		if s, isString := existing.(string); !isString || s != resourceType {
			return fmt.Errorf("%w: expected %q, got %v", ErrResourceTypeMismatch, resourceType, existing)
		}
	} else {
		view["resourceType"] = resourceType
	}

	return v.Validate(view)
}

// IsValidFor reports whether ValidateFor accepts doc.
func (v *Validator) IsValidFor(resourceType string, doc map[string]any) bool {
	return v.ValidateFor(resourceType, doc) == nil
}

// IsValid validates doc with the default validator. It reports false if the
// bundled schema cannot be compiled.
func IsValid(doc any) bool {
	v, err := Default()
	if err != nil {
		return false
	}
	return v.IsValid(doc)
}

// IsValidFor validates doc as resourceType with the default validator.
func IsValidFor(resourceType string, doc map[string]any) bool {
	v, err := Default()
	if err != nil {
		return false
	}
	return v.IsValidFor(resourceType, doc)
}
