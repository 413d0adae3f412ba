package migrations

import "embed"

// FS contains the embedded schema migrations, one directory per driver.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
