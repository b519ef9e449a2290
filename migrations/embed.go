// Package migrations embeds the catalog read model schema applied by golang-migrate.
package migrations

import "embed"

// FS holds the numbered up and down migrations.
//
//go:embed *.sql
var FS embed.FS
