package versions

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Migration_1_initial_migration creates the schema used before scripts were
// split into entities: each script stored its content as flat sections.
func Migration_1_initial_migration(txn *gorm.DB) error {
	type User struct {
		Id          uuid.UUID `gorm:"type:uuid;primaryKey"`
		Username    string    `gorm:"unique;size:50;not null"`
		Email       string    `gorm:"unique;size:254;not null"`
		DisplayName string    `gorm:"size:100"`
		Password    []byte
		IsAdmin     bool `gorm:"not null;default:false"`
		CreatedAt   time.Time
	}

	type Script struct {
		Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
		Title     string    `gorm:"size:200;not null"`
		Summary   string    `gorm:"type:text"`
		IsPublic  bool      `gorm:"not null;default:false"`
		AllowFork bool      `gorm:"not null;default:false"`
		AuthorId  uuid.UUID `gorm:"type:uuid;not null;index"`
		CreatedAt time.Time
		UpdatedAt time.Time
		DeletedAt gorm.DeletedAt `gorm:"index"`
	}

	type Tag struct {
		Id   uuid.UUID `gorm:"type:uuid;primaryKey"`
		Name string    `gorm:"unique;size:50;not null"`
	}

	type ScriptTag struct {
		ScriptId uuid.UUID `gorm:"type:uuid;primaryKey"`
		TagId    uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	}

	type LegacySection struct {
		ScriptId uuid.UUID `gorm:"type:uuid;primaryKey"`
		Section  string    `gorm:"size:50;primaryKey"`
		Content  string    `gorm:"type:text"`
	}

	return txn.AutoMigrate(&User{}, &Script{}, &Tag{}, &ScriptTag{}, &LegacySection{})
}
