// Package migrations bundles the SQL schema files applied at startup.
package migrations

import "embed"

// FS holds every *.sql migration in this directory
//
//go:embed *.sql
var FS embed.FS
