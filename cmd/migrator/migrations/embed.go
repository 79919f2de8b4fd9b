// Package migrations embeds the ledger schema so the migrator and the
// database test helpers apply the same files.
package migrations

import "embed"

//go:embed *.sql
var Schema embed.FS
