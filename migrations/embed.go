// Package migrations embeds the Gift Planner schema. Importing it for its
// side effect registers the files with the database package:
//
//	import _ "github.com/nerrad567/giftplanner-core/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/giftplanner-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
