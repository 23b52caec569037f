package core

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"script_ink/script_bazaar/content"
	"script_ink/script_bazaar/entities"
	"script_ink/script_bazaar/schema"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EnsureScriptEntities returns the entities of a script, first materializing
// them from legacy flat sections if the script has none yet. Idempotent.
func EnsureScriptEntities(txn *gorm.DB, scriptId uuid.UUID) ([]schema.Entity, error) {
	rows, err := schema.ListEntities(scriptId, txn)
	if err != nil {
		return nil, internalError("loading entities", err)
	}
	if len(rows) > 0 {
		return rows, nil
	}

	var sections []schema.LegacySection
	if err := txn.Where("script_id = ?", scriptId).Find(&sections).Error; err != nil {
		slog.Error("sql error loading legacy sections", "script_id", scriptId, "error", err)
		return nil, internalError("loading legacy sections", schema.ErrDbAccessFailed)
	}
	if len(sections) == 0 {
		return rows, nil
	}

	materialized, err := entities.FromLegacySections(scriptId, sections)
	if err != nil {
		return nil, internalError("materializing legacy sections", err)
	}
	if err := txn.Create(&materialized).Error; err != nil {
		slog.Error("sql error materializing legacy sections", "script_id", scriptId, "error", err)
		return nil, internalError("materializing legacy sections", schema.ErrDbAccessFailed)
	}

	slog.Info("materialized legacy sections", "script_id", scriptId, "entities", len(materialized))

	return materialized, nil
}

func sortEntities(rows []schema.Entity) {
	sort.SliceStable(rows, func(i, j int) bool {
		ki, _ := entities.ParseKind(rows[i].Kind)
		kj, _ := entities.ParseKind(rows[j].Kind)
		if ki.Rank() != kj.Rank() {
			return ki.Rank() < kj.Rank()
		}
		return rows[i].SortOrder < rows[j].SortOrder
	})
}

func (s *Service) ListEntities(ctx context.Context, actor Actor, scriptId uuid.UUID) ([]schema.Entity, error) {
	var rows []schema.Entity
	err := s.txn(ctx, func(txn *gorm.DB) error {
		script, err := loadScript(txn, scriptId)
		if err != nil {
			return err
		}
		if err := requirePermission(actor, script, ReadPermission); err != nil {
			return err
		}

		rows, err = EnsureScriptEntities(txn, scriptId)
		return err
	})
	if err != nil {
		return nil, err
	}

	sortEntities(rows)
	return rows, nil
}

type EntityParams struct {
	Kind      string
	Title     string
	Content   json.RawMessage
	Props     entities.Props
	SortOrder *int
}

// UpsertEntity creates or replaces the entity with the given id. Reference
// props must point at entities of the same script.
func (s *Service) UpsertEntity(ctx context.Context, actor Actor, scriptId, entityId uuid.UUID, params EntityParams) (schema.Entity, error) {
	if err := actor.requireSession(); err != nil {
		return schema.Entity{}, err
	}

	kind, known := entities.ParseKind(params.Kind)
	if !known {
		slog.Warn("unknown entity kind, storing as flow node", "script_id", scriptId, "entity_id", entityId, "kind", params.Kind)
	}

	doc, err := content.Decode(params.Content)
	if err != nil {
		return schema.Entity{}, Errorf(InvalidArgument, "%v", err)
	}
	encodedDoc, err := content.EncodeString(doc)
	if err != nil {
		return schema.Entity{}, internalError("encoding content", err)
	}

	props := params.Props
	if props == nil {
		props = entities.Props{}
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = kind.DefaultTitle()
	}

	var entity schema.Entity
	err = s.txn(ctx, func(txn *gorm.DB) error {
		script, err := loadScript(txn, scriptId)
		if err != nil {
			return err
		}
		if err := requirePermission(actor, script, OwnerPermission); err != nil {
			return err
		}

		existing, err := EnsureScriptEntities(txn, scriptId)
		if err != nil {
			return err
		}

		ids := mapset.NewThreadUnsafeSet(entityId.String())
		sortOrder := len(existing)
		var current *schema.Entity
		for i := range existing {
			ids.Add(existing[i].Id.String())
			if existing[i].Id == entityId {
				current = &existing[i]
			}
		}

		if current == nil {
			var clash int64
			if err := txn.Model(&schema.Entity{}).Where("id = ?", entityId).Count(&clash).Error; err != nil {
				slog.Error("sql error checking entity id", "entity_id", entityId, "error", err)
				return internalError("saving entity", schema.ErrDbAccessFailed)
			}
			if clash > 0 {
				return Errorf(Conflict, "entity id %v belongs to another script", entityId)
			}
		} else {
			sortOrder = current.SortOrder
		}
		if params.SortOrder != nil {
			sortOrder = *params.SortOrder
		}

		if err := entities.ValidateProps(kind, props, ids); err != nil {
			return Errorf(InvalidArgument, "%v", err)
		}
		encodedProps, err := props.Encode()
		if err != nil {
			return Errorf(InvalidArgument, "%v", err)
		}

		entity = schema.Entity{
			Id:        entityId,
			ScriptId:  scriptId,
			Kind:      string(kind),
			Title:     clipTitle(title),
			Content:   encodedDoc,
			Props:     encodedProps,
			SortOrder: sortOrder,
		}
		if current != nil {
			entity.CreatedAt = current.CreatedAt
		}

		if err := txn.Save(&entity).Error; err != nil {
			slog.Error("sql error saving entity", "script_id", scriptId, "entity_id", entityId, "error", err)
			return internalError("saving entity", schema.ErrDbAccessFailed)
		}
		return nil
	})
	if err != nil {
		return schema.Entity{}, err
	}

	return entity, nil
}

// DeleteEntity removes an entity and drops prop references to it held by
// other entities of the script.
func (s *Service) DeleteEntity(ctx context.Context, actor Actor, scriptId, entityId uuid.UUID) error {
	if err := actor.requireSession(); err != nil {
		return err
	}

	return s.txn(ctx, func(txn *gorm.DB) error {
		script, err := loadScript(txn, scriptId)
		if err != nil {
			return err
		}
		if err := requirePermission(actor, script, OwnerPermission); err != nil {
			return err
		}

		entity, err := schema.GetEntity(scriptId, entityId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrEntityNotFound) {
				return Errorf(NotFound, "entity %v not found", entityId)
			}
			return internalError("loading entity", err)
		}

		if err := txn.Delete(&entity).Error; err != nil {
			slog.Error("sql error deleting entity", "entity_id", entityId, "error", err)
			return internalError("deleting entity", schema.ErrDbAccessFailed)
		}

		rest, err := schema.ListEntities(scriptId, txn)
		if err != nil {
			return internalError("loading entities", err)
		}
		for _, other := range rest {
			kind, _ := entities.ParseKind(other.Kind)
			props, err := entities.DecodeProps(other.Props)
			if err != nil {
				continue
			}
			updated, changed := entities.DropReference(kind, props, entityId.String())
			if !changed {
				continue
			}
			encoded, err := updated.Encode()
			if err != nil {
				return internalError("updating entity references", err)
			}
			if err := txn.Model(&other).Update("props", encoded).Error; err != nil {
				slog.Error("sql error updating entity references", "entity_id", other.Id, "error", err)
				return internalError("updating entity references", schema.ErrDbAccessFailed)
			}
		}

		return nil
	})
}
