package versions

import (
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Migration_2_script_lineage adds lineage pointers and covers to scripts.
// Every existing script becomes the root of its own lineage.
func Migration_2_script_lineage(txn *gorm.DB) error {
	type Script struct {
		Cover    string     `gorm:"size:300"`
		RootId   *uuid.UUID `gorm:"type:uuid;index"`
		ParentId *uuid.UUID `gorm:"type:uuid;index"`
	}

	for _, column := range []string{"Cover", "RootId", "ParentId"} {
		if txn.Migrator().HasColumn(&Script{}, column) {
			continue
		}
		if err := txn.Migrator().AddColumn(&Script{}, column); err != nil {
			return err
		}
	}

	result := txn.Exec("UPDATE scripts SET root_id = id WHERE root_id IS NULL")
	if result.Error != nil {
		return result.Error
	}
	slog.Info("backfilled script lineage roots", "scripts", result.RowsAffected)

	return nil
}
