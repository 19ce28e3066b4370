// Package addrdb holds all the migrations for the deployment-address cache
// database
package addrdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the address cache
var Migrations = migrate.NewMigrations()
