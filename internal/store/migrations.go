package store

import "embed"

// Migrations holds the SQL schema consumed by golang-migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS
