package core

import (
	"context"
	"log/slog"

	"script_ink/script_bazaar/content"
	"script_ink/script_bazaar/entities"
	"script_ink/script_bazaar/metrics"
	"script_ink/script_bazaar/schema"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const ForkTitleSuffix = " (adaptation)"

type ForkResult struct {
	ScriptId uuid.UUID
	RootId   uuid.UUID
	Entities int
}

// Fork copies a public, forkable script into a new private script owned by
// actor. The new script, its entities and its tags are written in a single
// transaction.
func (s *Service) Fork(ctx context.Context, actor Actor, sourceId uuid.UUID) (ForkResult, error) {
	if err := actor.requireSession(); err != nil {
		return ForkResult{}, err
	}

	timer := prometheus.NewTimer(metrics.ForkLatency)
	defer timer.ObserveDuration()

	var result ForkResult
	err := s.txn(ctx, func(txn *gorm.DB) error {
		source, err := loadScript(txn, sourceId)
		if err != nil {
			return err
		}
		if !source.IsPublic || !source.AllowFork {
			return Errorf(Forbidden, "script %v is not open for forking", sourceId)
		}

		parentId := source.Id
		fork := schema.Script{
			Id:        uuid.New(),
			Title:     clipTitle(source.Title + ForkTitleSuffix),
			Summary:   source.Summary,
			Cover:     source.Cover,
			IsPublic:  false,
			AllowFork: false,
			RootId:    source.LineageRoot(),
			ParentId:  &parentId,
			AuthorId:  actor.Id,
		}
		if err := txn.Create(&fork).Error; err != nil {
			slog.Error("sql error creating fork", "source_id", sourceId, "error", err)
			return internalError("creating fork", schema.ErrDbAccessFailed)
		}

		sourceEntities, err := EnsureScriptEntities(txn, source.Id)
		if err != nil {
			return err
		}

		copies, _ := CopyEntities(fork.Id, sourceEntities)
		if len(copies) > 0 {
			if err := txn.Create(&copies).Error; err != nil {
				slog.Error("sql error copying entities", "source_id", sourceId, "fork_id", fork.Id, "error", err)
				return internalError("copying entities", schema.ErrDbAccessFailed)
			}
		}

		tags, err := schema.ScriptTagNames(source.Id, txn)
		if err != nil {
			return internalError("loading tags", err)
		}
		if err := SyncScriptTags(txn, fork.Id, tags); err != nil {
			return err
		}

		result = ForkResult{ScriptId: fork.Id, RootId: fork.RootId, Entities: len(copies)}
		return nil
	})
	if err != nil {
		return ForkResult{}, err
	}

	metrics.ForksTotal.Inc()
	metrics.ForkedEntities.Observe(float64(result.Entities))
	slog.Info("forked script", "source_id", sourceId, "fork_id", result.ScriptId, "root_id", result.RootId, "entities", result.Entities, "author_id", actor.Id)

	s.invalidateLineage(ctx, result.RootId)

	return result, nil
}

// CopyEntities deep copies entities under scriptId with fresh ids. Mentions in
// content and reference props that point at copied entities are rewritten to
// the new ids, other references are copied unchanged. Returns the copies and
// the old to new id mapping.
func CopyEntities(scriptId uuid.UUID, source []schema.Entity) ([]schema.Entity, map[string]string) {
	newIds := make(map[uuid.UUID]uuid.UUID, len(source))
	mapping := make(map[string]string, len(source))
	for _, entity := range source {
		newIds[entity.Id] = uuid.New()
		mapping[entity.Id.String()] = newIds[entity.Id].String()
	}

	copies := make([]schema.Entity, 0, len(source))
	for _, entity := range source {
		kind, _ := entities.ParseKind(entity.Kind)

		copied := schema.Entity{
			Id:        newIds[entity.Id],
			ScriptId:  scriptId,
			Kind:      string(kind),
			Title:     entity.Title,
			Content:   remapContent(entity, mapping),
			Props:     remapProps(kind, entity, mapping),
			SortOrder: entity.SortOrder,
		}
		copies = append(copies, copied)
	}

	return copies, mapping
}

func remapContent(entity schema.Entity, mapping map[string]string) string {
	doc, err := content.DecodeString(entity.Content)
	if err != nil {
		slog.Warn("copying undecodable entity content verbatim", "entity_id", entity.Id, "error", err)
		return entity.Content
	}
	encoded, err := content.EncodeString(content.Remap(doc, mapping))
	if err != nil {
		slog.Warn("copying entity content verbatim", "entity_id", entity.Id, "error", err)
		return entity.Content
	}
	return encoded
}

func remapProps(kind entities.Kind, entity schema.Entity, mapping map[string]string) string {
	props, err := entities.DecodeProps(entity.Props)
	if err != nil {
		slog.Warn("copying undecodable entity props verbatim", "entity_id", entity.Id, "error", err)
		return entity.Props
	}
	encoded, err := entities.RemapProps(kind, props, mapping).Encode()
	if err != nil {
		slog.Warn("copying entity props verbatim", "entity_id", entity.Id, "error", err)
		return entity.Props
	}
	return encoded
}
