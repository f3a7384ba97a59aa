// Package migrations embeds the schema migrations so the binaries ship
// them and apply on startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
