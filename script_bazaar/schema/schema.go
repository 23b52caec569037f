package schema

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username    string `gorm:"unique;size:50;not null"`
	Email       string `gorm:"unique;size:254;not null"`
	DisplayName string `gorm:"size:100"`
	Password    []byte

	IsAdmin bool `gorm:"not null;default:false"`

	CreatedAt time.Time
}

// Name is the display name, falling back to the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

type Script struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title   string `gorm:"size:200;not null"`
	Summary string `gorm:"type:text"`
	Cover   string `gorm:"size:300"`

	IsPublic  bool `gorm:"not null;default:false"`
	AllowFork bool `gorm:"not null;default:false"`

	// RootId equals Id for roots. ParentId is nil for roots and is only set at creation.
	RootId   uuid.UUID  `gorm:"type:uuid;not null;index"`
	ParentId *uuid.UUID `gorm:"type:uuid;index"`

	AuthorId uuid.UUID `gorm:"type:uuid;not null;index"`
	Author   *User     `gorm:"foreignKey:AuthorId;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (s *Script) IsRoot() bool {
	return s.ParentId == nil
}

// LineageRoot resolves the root of the script's lineage, treating an unset root as the script itself.
func (s *Script) LineageRoot() uuid.UUID {
	if s.RootId == uuid.Nil {
		return s.Id
	}
	return s.RootId
}

type Tag struct {
	Id   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string    `gorm:"unique;size:50;not null"`
}

type ScriptTag struct {
	ScriptId uuid.UUID `gorm:"type:uuid;primaryKey"`
	TagId    uuid.UUID `gorm:"type:uuid;primaryKey;index"`

	Tag *Tag `gorm:"constraint:OnDelete:CASCADE"`
}

type Entity struct {
	Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ScriptId uuid.UUID `gorm:"type:uuid;not null;index"`

	Kind  string `gorm:"size:20;not null"`
	Title string `gorm:"size:200;not null"`

	// JSON encoded rich-content document and property bag.
	Content string `gorm:"type:text"`
	Props   string `gorm:"type:text"`

	SortOrder int `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LegacySection holds the flat per-section content written before scripts were split into entities.
type LegacySection struct {
	ScriptId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Section  string    `gorm:"size:50;primaryKey"`
	Content  string    `gorm:"type:text"`
}

type MergeRequest struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SourceScriptId uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_merge_request_pending_pair,where:status = 'pending'"`
	TargetScriptId uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_merge_request_pending_pair,where:status = 'pending'"`

	SourceScript *Script `gorm:"foreignKey:SourceScriptId;constraint:OnDelete:CASCADE"`
	TargetScript *Script `gorm:"foreignKey:TargetScriptId;constraint:OnDelete:CASCADE"`

	AuthorId uuid.UUID `gorm:"type:uuid;not null"`
	Author   *User     `gorm:"foreignKey:AuthorId;constraint:OnDelete:CASCADE"`

	Summary string `gorm:"type:text;not null"`
	Status  string `gorm:"size:20;not null;default:'pending'"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type TruthLock struct {
	Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ScriptId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`

	Truth    string `gorm:"type:text;not null"`
	LockedAt time.Time
}

// AllModels lists every table managed by the service, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&User{}, &Script{}, &Tag{}, &ScriptTag{}, &Entity{}, &LegacySection{}, &MergeRequest{}, &TruthLock{},
	}
}
