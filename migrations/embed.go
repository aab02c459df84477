// Package migrations embeds the SQL schema for the iofs migrate driver.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
