// Package migrations holds the service's embedded SQL migrations.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
