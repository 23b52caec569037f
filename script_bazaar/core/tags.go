package core

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"script_ink/script_bazaar/schema"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MaxTagsPerScript = 16
	maxTagLength     = 50
)

// NormalizeTags trims, lower cases and de-duplicates tag names, keeping the
// first occurrence order and at most MaxTagsPerScript names.
func NormalizeTags(names []string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if utf8.RuneCountInString(name) > maxTagLength {
			name = string([]rune(name)[:maxTagLength])
		}
		if !seen.Add(name) {
			continue
		}
		out = append(out, name)
		if len(out) == MaxTagsPerScript {
			break
		}
	}
	return out
}

// SyncScriptTags replaces the tag set of a script. Must run inside the
// caller's transaction.
func SyncScriptTags(txn *gorm.DB, scriptId uuid.UUID, names []string) error {
	names = NormalizeTags(names)

	result := txn.Where("script_id = ?", scriptId).Delete(&schema.ScriptTag{})
	if result.Error != nil {
		slog.Error("sql error clearing script tags", "script_id", scriptId, "error", result.Error)
		return internalError("syncing tags", schema.ErrDbAccessFailed)
	}

	for _, name := range names {
		var tag schema.Tag
		result := txn.Limit(1).Find(&tag, "name = ?", name)
		if result.Error != nil {
			slog.Error("sql error looking up tag", "tag", name, "error", result.Error)
			return internalError("syncing tags", schema.ErrDbAccessFailed)
		}
		if result.RowsAffected == 0 {
			tag = schema.Tag{Id: uuid.New(), Name: name}
			if err := txn.Create(&tag).Error; err != nil {
				slog.Error("sql error creating tag", "tag", name, "error", err)
				return internalError("syncing tags", schema.ErrDbAccessFailed)
			}
		}

		if err := txn.Create(&schema.ScriptTag{ScriptId: scriptId, TagId: tag.Id}).Error; err != nil {
			slog.Error("sql error attaching tag", "script_id", scriptId, "tag", name, "error", err)
			return internalError("syncing tags", schema.ErrDbAccessFailed)
		}
	}

	return nil
}

type TagCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count" gorm:"column:script_count"`
}

// ListTags counts how many public scripts use each tag.
func (s *Service) ListTags(ctx context.Context) ([]TagCount, error) {
	counts := make([]TagCount, 0)

	result := s.db.WithContext(ctx).Table("tags").
		Select("tags.name AS name, COUNT(scripts.id) AS script_count").
		Joins("JOIN script_tags ON script_tags.tag_id = tags.id").
		Joins("JOIN scripts ON scripts.id = script_tags.script_id").
		Where("scripts.is_public = ? AND scripts.deleted_at IS NULL", true).
		Group("tags.name").
		Order("script_count DESC").Order("tags.name").
		Scan(&counts)
	if result.Error != nil {
		slog.Error("sql error counting tags", "error", result.Error)
		return nil, internalError("listing tags", schema.ErrDbAccessFailed)
	}

	return counts, nil
}

func tagsByScript(txn *gorm.DB, scriptIds []uuid.UUID) (map[uuid.UUID][]string, error) {
	out := make(map[uuid.UUID][]string, len(scriptIds))
	if len(scriptIds) == 0 {
		return out, nil
	}

	var rows []struct {
		ScriptId uuid.UUID
		Name     string
	}
	result := txn.Table("script_tags").
		Select("script_tags.script_id AS script_id, tags.name AS name").
		Joins("JOIN tags ON tags.id = script_tags.tag_id").
		Where("script_tags.script_id IN ?", scriptIds).
		Order("tags.name").
		Scan(&rows)
	if result.Error != nil {
		slog.Error("sql error listing tags for scripts", "error", result.Error)
		return nil, internalError("listing tags", schema.ErrDbAccessFailed)
	}

	for _, row := range rows {
		out[row.ScriptId] = append(out[row.ScriptId], row.Name)
	}
	return out, nil
}
