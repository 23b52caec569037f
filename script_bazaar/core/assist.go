package core

import (
	"context"

	"script_ink/script_bazaar/assist"
	"script_ink/script_bazaar/content"
	"script_ink/script_bazaar/entities"
	"script_ink/script_bazaar/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AssistContext gathers what an assist provider may see about a script. The
// locked truth takes precedence over the live truth entity. With a focus only
// the focused entity and the truth entities are included.
func (s *Service) AssistContext(ctx context.Context, actor Actor, scriptId uuid.UUID, focus *uuid.UUID) (assist.ScriptContext, error) {
	if err := actor.requireSession(); err != nil {
		return assist.ScriptContext{}, err
	}

	var out assist.ScriptContext
	err := s.txn(ctx, func(txn *gorm.DB) error {
		script, err := loadScript(txn, scriptId)
		if err != nil {
			return err
		}
		if err := requirePermission(actor, script, OwnerPermission); err != nil {
			return err
		}

		rows, err := EnsureScriptEntities(txn, scriptId)
		if err != nil {
			return err
		}
		sortEntities(rows)

		lock, err := findTruthLock(txn, scriptId)
		if err != nil {
			return err
		}

		out = assist.ScriptContext{
			ScriptId: script.Id,
			Title:    script.Title,
			Summary:  script.Summary,
			Entities: make([]assist.EntityContext, 0, len(rows)),
			Focus:    focus,
		}
		if lock != nil {
			out.Truth = lock.Truth
			out.TruthLocked = true
		}

		focusFound := false
		for _, row := range rows {
			kind, _ := entities.ParseKind(row.Kind)
			text := plainText(row)

			if kind == entities.Truth && !out.TruthLocked && out.Truth == "" {
				out.Truth = text
			}

			if focus != nil && row.Id == *focus {
				focusFound = true
			} else if focus != nil && kind != entities.Truth {
				continue
			}

			out.Entities = append(out.Entities, assist.EntityContext{Id: row.Id, Kind: string(kind), Title: row.Title, Text: text})
		}

		if focus != nil && !focusFound {
			return Errorf(NotFound, "entity %v not found", *focus)
		}
		return nil
	})
	if err != nil {
		return assist.ScriptContext{}, err
	}

	return out, nil
}

func plainText(entity schema.Entity) string {
	doc, err := content.DecodeString(entity.Content)
	if err != nil {
		return ""
	}
	return content.PlainText(doc)
}
