// Package migrations embeds the dispatch journal schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
