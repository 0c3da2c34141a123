package search

import (
	"fmt"
	"time"

	"github.com/Stupremee/fhir/internal/platform/index"
	"github.com/Stupremee/fhir/pkg/fhirmodels"
)

type valueKind int

const (
	kindRaw valueKind = iota
	kindText
	kindDate
)

// Value is a search value. Text and Date values carry a fixed type that must
// match the key; Raw values come from untyped input such as a query string and
// are converted to the key's type.
type Value struct {
	kind valueKind
	text string
	date time.Time
}

func Text(s string) Value    { return Value{kind: kindText, text: s} }
func Date(t time.Time) Value { return Value{kind: kindDate, date: t} }
func Raw(s string) Value     { return Value{kind: kindRaw, text: s} }

func (v Value) String() string {
	if v.kind == kindDate {
		return v.date.Format(fhirmodels.DateLayout)
	}
	return v.text
}

// bind converts v to the argument bound against a column of type kt.
func (v Value) bind(kt index.KeyType) (any, error) {
	switch kt {
	case index.KeyText:
		if v.kind == kindDate {
			return nil, fmt.Errorf("%w: date given for a text key", ErrInvalidValueType)
		}
		return v.text, nil
	case index.KeyDate:
		switch v.kind {
		case kindDate:
			return v.date, nil
		case kindRaw:
			t, err := time.Parse(fhirmodels.DateLayout, v.text)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a date", ErrInvalidValueType, v.text)
			}
			return t, nil
		default:
			return nil, fmt.Errorf("%w: text given for a date key", ErrInvalidValueType)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported key type %s", ErrInvalidValueType, kt)
	}
}
