package versions

import (
	"log/slog"
	"time"

	"script_ink/script_bazaar/entities"
	"script_ink/script_bazaar/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Migration_3_entities creates the entity table and materializes the legacy
// sections of every script that has them. Scripts that are never migrated here
// are still materialized lazily on first read.
func Migration_3_entities(txn *gorm.DB) error {
	type Entity struct {
		Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
		ScriptId  uuid.UUID `gorm:"type:uuid;not null;index"`
		Kind      string    `gorm:"size:20;not null"`
		Title     string    `gorm:"size:200;not null"`
		Content   string    `gorm:"type:text"`
		Props     string    `gorm:"type:text"`
		SortOrder int       `gorm:"not null;default:0"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	type LegacySection struct {
		ScriptId uuid.UUID
		Section  string
		Content  string
	}

	if err := txn.AutoMigrate(&Entity{}); err != nil {
		return err
	}

	var scriptIds []uuid.UUID
	if err := txn.Model(&LegacySection{}).Distinct("script_id").Pluck("script_id", &scriptIds).Error; err != nil {
		return err
	}

	total := 0
	for _, scriptId := range scriptIds {
		var existing int64
		if err := txn.Model(&Entity{}).Where("script_id = ?", scriptId).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			continue
		}

		var rows []LegacySection
		if err := txn.Where("script_id = ?", scriptId).Find(&rows).Error; err != nil {
			return err
		}
		sections := make([]schema.LegacySection, 0, len(rows))
		for _, row := range rows {
			sections = append(sections, schema.LegacySection{ScriptId: row.ScriptId, Section: row.Section, Content: row.Content})
		}

		materialized, err := entities.FromLegacySections(scriptId, sections)
		if err != nil {
			return err
		}
		if len(materialized) == 0 {
			continue
		}

		snapshot := make([]Entity, 0, len(materialized))
		for _, e := range materialized {
			snapshot = append(snapshot, Entity{
				Id:        e.Id,
				ScriptId:  e.ScriptId,
				Kind:      e.Kind,
				Title:     e.Title,
				Content:   e.Content,
				Props:     e.Props,
				SortOrder: e.SortOrder,
				CreatedAt: e.CreatedAt,
				UpdatedAt: e.UpdatedAt,
			})
		}
		if err := txn.Create(&snapshot).Error; err != nil {
			return err
		}
		total += len(snapshot)
	}
	slog.Info("materialized legacy sections", "scripts", len(scriptIds), "entities", total)

	return nil
}
