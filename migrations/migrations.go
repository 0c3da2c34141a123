// Package migrations bundles the SQL files that create the fhir schema.
package migrations

import "embed"

// FS holds the versioned migration files, named NNN_description.sql.
//
//go:embed *.sql
var FS embed.FS
