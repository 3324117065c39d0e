package db

import "embed"

// EmbedMigrations holds the goose migrations of the run ledger schema.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
