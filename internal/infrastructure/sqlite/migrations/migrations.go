// Package migrations embeds the SQLite schema so the binary can migrate
// itself without shipping SQL files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
