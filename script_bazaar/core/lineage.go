package core

import (
	"context"
	"errors"
	"log/slog"

	"script_ink/script_bazaar/lineage"
	"script_ink/script_bazaar/schema"

	"github.com/google/uuid"
)

// GetLineage returns every live script sharing the root of scriptId. Missing
// scripts and scripts the actor may not read both report NotFound, and so does
// a readable fork whose lineage root the actor may not read.
func (s *Service) GetLineage(ctx context.Context, actor Actor, scriptId uuid.UUID) (lineage.Lineage, error) {
	db := s.db.WithContext(ctx)

	script, err := schema.GetScript(scriptId, db, false)
	if err != nil {
		return lineage.Lineage{}, translateLookup(err, "script", scriptId)
	}
	if ScriptPermission(actor, script) < ReadPermission {
		return lineage.Lineage{}, Errorf(NotFound, "script %v not found", scriptId)
	}

	rootId := script.LineageRoot()
	if rootId != script.Id {
		root, err := schema.GetScript(rootId, db, false)
		if err != nil && !errors.Is(err, schema.ErrScriptNotFound) {
			return lineage.Lineage{}, internalError("loading lineage root", err)
		}
		if err == nil && ScriptPermission(actor, root) < ReadPermission {
			return lineage.Lineage{}, Errorf(NotFound, "script %v not found", scriptId)
		}
	}

	cached, err := s.lineageCache.Get(ctx, rootId)
	if err != nil {
		slog.Warn("lineage cache unavailable, loading from db", "root_id", rootId, "error", err)
	} else if cached != nil {
		return *cached, nil
	}

	var scripts []schema.Script
	result := db.Preload("Author").Where("root_id = ?", rootId).Order("created_at").Find(&scripts)
	if result.Error != nil {
		slog.Error("sql error loading lineage", "root_id", rootId, "error", result.Error)
		return lineage.Lineage{}, internalError("loading lineage", schema.ErrDbAccessFailed)
	}

	value := lineage.Lineage{RootId: rootId, Nodes: make([]lineage.Node, 0, len(scripts))}
	for _, member := range scripts {
		node := lineage.Node{
			Id:        member.Id,
			Title:     member.Title,
			ParentId:  member.ParentId,
			RootId:    member.LineageRoot(),
			AuthorId:  member.AuthorId,
			CreatedAt: member.CreatedAt,
		}
		if member.Author != nil {
			node.AuthorName = member.Author.Name()
		}
		value.Nodes = append(value.Nodes, node)
	}

	if err := s.lineageCache.Set(ctx, value); err != nil {
		slog.Warn("unable to cache lineage", "root_id", rootId, "error", err)
	}

	return value, nil
}
