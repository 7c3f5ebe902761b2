// Package migrations embeds the SQL migrations of the Postgres store.
package migrations

import "embed"

// FS holds the goose migration files.
//
//go:embed *.sql
var FS embed.FS
