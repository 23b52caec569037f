// Package core implements script authoring operations independent of any
// transport. Every operation receives the acting user explicitly.
package core

import (
	"context"
	"errors"
	"log/slog"

	"script_ink/script_bazaar/cache"
	"script_ink/script_bazaar/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service struct {
	db           *gorm.DB
	lineageCache cache.LineageCache
}

func NewService(db *gorm.DB, lineageCache cache.LineageCache) *Service {
	if lineageCache == nil {
		lineageCache = cache.NoopLineageCache{}
	}
	return &Service{db: db, lineageCache: lineageCache}
}

func (s *Service) txn(ctx context.Context, fn func(txn *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func loadScript(txn *gorm.DB, scriptId uuid.UUID) (schema.Script, error) {
	script, err := schema.GetScript(scriptId, txn, false)
	if err != nil {
		if errors.Is(err, schema.ErrScriptNotFound) {
			return script, Errorf(NotFound, "script %v not found", scriptId)
		}
		return script, internalError("loading script", err)
	}
	return script, nil
}

func (s *Service) invalidateLineage(ctx context.Context, rootId uuid.UUID) {
	if err := s.lineageCache.Invalidate(ctx, rootId); err != nil {
		slog.Warn("unable to invalidate cached lineage", "root_id", rootId, "error", err)
	}
}
