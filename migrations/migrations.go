// Package migrations embeds the goose SQL migration files so
// pkg/storage/postgres can apply them without relying on a filesystem path
// at runtime.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
