// Package migrations holds the SQL schema, embedded into the migrate binary.
package migrations

import "embed"

// FS contains every NNN_name.up.sql / NNN_name.down.sql pair
//
//go:embed *.sql
var FS embed.FS
