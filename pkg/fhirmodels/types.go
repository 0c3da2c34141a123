package fhirmodels

// AdministrativeGender codes.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

// DateLayout is the layout of a complete FHIR date (YYYY-MM-DD).
const DateLayout = "2006-01-02"
