package versions

import (
	"log"

	"script_ink/script_bazaar/schema"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID:      "1",
			Migrate: Migration_1_initial_migration,
		},
		{
			ID:      "2",
			Migrate: Migration_2_script_lineage,
			// Rollback is not supported, the added columns are required by every later version.
		},
		{
			ID:      "3",
			Migrate: Migration_3_entities,
			Rollback: func(txn *gorm.DB) error {
				return txn.Migrator().DropTable("entities")
			},
		},
		{
			ID:      "4",
			Migrate: Migration_4_merge_requests_and_truth_locks,
			Rollback: func(txn *gorm.DB) error {
				return txn.Migrator().DropTable("merge_requests", "truth_locks")
			},
		},
	}
}

// New returns the migrator for db. A database without any tables is created
// directly from the current models; a legacy database is walked through every
// version so its data is converted.
func New(db *gorm.DB) *gormigrate.Gormigrate {
	migration := gormigrate.New(db, gormigrate.DefaultOptions, Migrations())

	if !db.Migrator().HasTable("scripts") {
		migration.InitSchema(func(txn *gorm.DB) error {
			log.Println("clean database detected, running full schema initialization")
			return txn.AutoMigrate(schema.AllModels()...)
		})
	}

	return migration
}
