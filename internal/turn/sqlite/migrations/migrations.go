// Package migrations embeds the turn store schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
