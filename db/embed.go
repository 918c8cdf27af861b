// Package db provides the embedded database schema and default seed catalog.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedCatalog is the default provisioning dataset (users, wallets, products)
// used by cmd/seed-db when no catalog file is given.
//
//go:embed seed/catalog.json
var SeedCatalog []byte
