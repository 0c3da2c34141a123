package index

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/Stupremee/fhir/pkg/fhirmodels"
)

const ResourcePatient = "Patient"

// Patient index keys.
const (
	KeyGender    = "gender"
	KeyName      = "name"
	KeyBirthDate = "birth_date"
)

func PatientCapability() Capability {
	return Capability{
		Extract:   ExtractPatient,
		KeyType:   patientKeyType,
		Normalize: patientNormalize,
	}
}

func patientNormalize(key, value string) string {
	if key == KeyName {
		return NormalizeName(value)
	}
	return value
}

func patientKeyType(key string) (KeyType, bool) {
	switch key {
	case KeyBirthDate:
		return KeyDate, true
	case KeyGender, KeyName:
		return KeyText, true
	default:
		return 0, false
	}
}

// ExtractPatient indexes gender, the full name and the birth date of a
// Patient document. A birth date that is not a complete calendar date is
// skipped with a warning.
func ExtractPatient(doc json.RawMessage) (Values, error) {
	var p fhirmodels.Patient
	if err := json.Unmarshal(doc, &p); err != nil {
		return Values{}, fmt.Errorf("decode patient: %w", err)
	}

	var v Values
	if p.Gender != "" {
		v.AddText(KeyGender, p.Gender)
	}

	if name := FullName(p.Name); name != "" {
		v.AddText(KeyName, name)
	}

	if p.BirthDate != "" {
		date, err := time.Parse(fhirmodels.DateLayout, p.BirthDate)
		if err != nil {
			v.Warn(KeyBirthDate, p.BirthDate, "not a calendar date")
		} else {
			v.AddDate(KeyBirthDate, date)
		}
	}

	return v, nil
}

// FullName joins the tokens of every name with single spaces and returns the
// NFC-normalised lowercase result.
func FullName(names []fhirmodels.HumanName) string {
	var tokens []string
	for _, n := range names {
		tokens = append(tokens, n.Tokens()...)
	}
	return NormalizeName(strings.TrimSpace(strings.Join(tokens, " ")))
}

// NormalizeName is the NFC-normalised lowercase form names are indexed in.
func NormalizeName(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}
