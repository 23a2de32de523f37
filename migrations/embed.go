// Package migrations ships the goose SQL migrations with the binaries.
package migrations

import "embed"

// FS holds every migration file.
//
//go:embed *.sql
var FS embed.FS
