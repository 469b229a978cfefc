// Package migrations embeds SQL migration files, one directory per driver.
package migrations

import "embed"

// FS holds the embedded SQL migration files.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
