package fhirmodels

import "strings"

// HumanName is the FHIR HumanName datatype, restricted to the parts used for
// indexing.
type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
	Suffix []string `json:"suffix,omitempty"`
}

// Tokens returns the name parts in display order: prefixes, given names,
// family name, suffixes. Empty parts are dropped.
func (n HumanName) Tokens() []string {
	tokens := make([]string, 0, len(n.Prefix)+len(n.Given)+len(n.Suffix)+1)
	add := func(parts ...string) {
		for _, p := range parts {
			if strings.TrimSpace(p) != "" {
				tokens = append(tokens, p)
			}
		}
	}
	add(n.Prefix...)
	add(n.Given...)
	add(n.Family)
	add(n.Suffix...)
	return tokens
}

// Patient is a partial view of a FHIR Patient. Fields not needed by the
// server are ignored when decoding.
type Patient struct {
	ResourceType string      `json:"resourceType,omitempty"`
	Active       *bool       `json:"active,omitempty"`
	Name         []HumanName `json:"name,omitempty"`
	Gender       string      `json:"gender,omitempty"`
	BirthDate    string      `json:"birthDate,omitempty"`
}
