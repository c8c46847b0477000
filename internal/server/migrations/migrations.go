// Package migrations embeds the server schema. Every statement is
// create-if-missing so it is safe on both SQLite and PostgreSQL.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
