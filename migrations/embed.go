// Package migrations embeds the Postgres schema for the KV storage backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
