package core

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"script_ink/script_bazaar/metrics"
	"script_ink/script_bazaar/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func findTruthLock(txn *gorm.DB, scriptId uuid.UUID) (*schema.TruthLock, error) {
	var lock schema.TruthLock
	result := txn.Limit(1).Find(&lock, "script_id = ?", scriptId)
	if result.Error != nil {
		slog.Error("sql error loading truth lock", "script_id", scriptId, "error", result.Error)
		return nil, internalError("loading truth lock", schema.ErrDbAccessFailed)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &lock, nil
}

// GetTruthLock returns the pinned truth of a script, or nil if none was set.
func (s *Service) GetTruthLock(ctx context.Context, actor Actor, scriptId uuid.UUID) (*schema.TruthLock, error) {
	if err := actor.requireSession(); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	script, err := loadScript(db, scriptId)
	if err != nil {
		return nil, err
	}
	if err := requirePermission(actor, script, OwnerPermission); err != nil {
		return nil, err
	}

	return findTruthLock(db, scriptId)
}

// SetTruthLock pins truth for a script. An existing lock is overwritten in
// place so a script never has more than one lock row.
func (s *Service) SetTruthLock(ctx context.Context, actor Actor, scriptId uuid.UUID, truth string) (uuid.UUID, error) {
	if err := actor.requireSession(); err != nil {
		return uuid.Nil, err
	}
	if strings.TrimSpace(truth) == "" {
		return uuid.Nil, Errorf(InvalidArgument, "truth must not be empty")
	}

	var lockId uuid.UUID
	err := s.txn(ctx, func(txn *gorm.DB) error {
		script, err := loadScript(txn, scriptId)
		if err != nil {
			return err
		}
		if err := requirePermission(actor, script, OwnerPermission); err != nil {
			return err
		}

		existing, err := findTruthLock(txn, scriptId)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if existing != nil {
			lockId = existing.Id
			result := txn.Model(existing).Updates(map[string]interface{}{"truth": truth, "locked_at": now})
			if result.Error != nil {
				slog.Error("sql error updating truth lock", "script_id", scriptId, "error", result.Error)
				return internalError("updating truth lock", schema.ErrDbAccessFailed)
			}
			return nil
		}

		lock := schema.TruthLock{Id: uuid.New(), ScriptId: scriptId, Truth: truth, LockedAt: now}
		if err := txn.Create(&lock).Error; err != nil {
			slog.Error("sql error creating truth lock", "script_id", scriptId, "error", err)
			return internalError("creating truth lock", schema.ErrDbAccessFailed)
		}
		lockId = lock.Id
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	metrics.TruthLocks.Inc()
	slog.Info("truth locked", "script_id", scriptId, "lock_id", lockId, "actor_id", actor.Id)

	return lockId, nil
}
