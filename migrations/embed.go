// Package migrations holds the versioned PostgreSQL schema.
package migrations

import "embed"

// FS contains the up and down migration files
//
//go:embed *.sql
var FS embed.FS
