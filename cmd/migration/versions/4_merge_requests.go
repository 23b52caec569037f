package versions

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Migration_4_merge_requests_and_truth_locks adds merge requests, with at most
// one pending request per source and target pair, and truth locks.
func Migration_4_merge_requests_and_truth_locks(txn *gorm.DB) error {
	type User struct {
		Id uuid.UUID `gorm:"type:uuid;primaryKey"`
	}

	type Script struct {
		Id uuid.UUID `gorm:"type:uuid;primaryKey"`
	}

	type MergeRequest struct {
		Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
		SourceScriptId uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_merge_request_pending_pair,where:status = 'pending'"`
		TargetScriptId uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_merge_request_pending_pair,where:status = 'pending'"`
		SourceScript   *Script   `gorm:"foreignKey:SourceScriptId;constraint:OnDelete:CASCADE"`
		TargetScript   *Script   `gorm:"foreignKey:TargetScriptId;constraint:OnDelete:CASCADE"`
		AuthorId       uuid.UUID `gorm:"type:uuid;not null"`
		Author         *User     `gorm:"foreignKey:AuthorId;constraint:OnDelete:CASCADE"`
		Summary        string    `gorm:"type:text;not null"`
		Status         string    `gorm:"size:20;not null;default:'pending'"`
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	type TruthLock struct {
		Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
		ScriptId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
		Truth    string    `gorm:"type:text;not null"`
		LockedAt time.Time
	}

	return txn.AutoMigrate(&MergeRequest{}, &TruthLock{})
}
