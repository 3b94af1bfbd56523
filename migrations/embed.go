// Package migrations embeds the sqlite schema for the invocation audit store.
package migrations

import "embed"

// FS holds every .sql file in this directory, applied in name order.
//
//go:embed *.sql
var FS embed.FS
