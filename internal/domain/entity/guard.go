package entity

import (
	"context"
	"fmt"

	"github.com/Stupremee/fhir/internal/platform/metrics"
	"github.com/Stupremee/fhir/internal/platform/schema"
)

// validatingRepo rejects every write whose document does not match the
// schema of its resource type, whatever code path issued it.
type validatingRepo struct {
	Repository
	validator *schema.Validator
}

// WithSchema wraps repo so Insert and Update fail with ErrInvalidDocument
// when the document does not validate against v.
func WithSchema(repo Repository, v *schema.Validator) Repository {
	return &validatingRepo{Repository: repo, validator: v}
}

func (r *validatingRepo) Insert(ctx context.Context, e *Entity) error {
	if err := r.check(e); err != nil {
		return err
	}
	return r.Repository.Insert(ctx, e)
}

func (r *validatingRepo) Update(ctx context.Context, e *Entity) error {
	if err := r.check(e); err != nil {
		return err
	}
	return r.Repository.Update(ctx, e)
}

func (r *validatingRepo) check(e *Entity) error {
	doc, err := decodeObject(e.Data)
	if err == nil {
		_, hasID := doc[fieldID]
		_, hasType := doc[fieldResourceType]
		if hasID || hasType {
			err = fmt.Errorf("stored document carries %q or %q", fieldID, fieldResourceType)
		} else {
			err = r.validator.ValidateFor(e.ResourceType, doc)
		}
	}
	if err != nil {
		metrics.EntityRejections.WithLabelValues(e.ResourceType).Inc()
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}
