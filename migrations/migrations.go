// Package migrations embeds the star-schema DDL so the binary and the
// tests carry the schema with them.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
