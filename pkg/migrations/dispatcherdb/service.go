// Package dispatcherdb holds all the migrations for the dispatcher database
package dispatcherdb

import "github.com/uptrace/bun/migrate"

// Migrations is the ordered set of dispatcher schema migrations
var Migrations = migrate.NewMigrations()
