package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrScriptNotFound       = errors.New("script not found")
	ErrEntityNotFound       = errors.New("entity not found")
	ErrMergeRequestNotFound = errors.New("merge request not found")
	ErrDbAccessFailed       = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

// GetScript loads a script that has not been soft deleted.
func GetScript(scriptId uuid.UUID, db *gorm.DB, loadAuthor bool) (Script, error) {
	var script Script

	var result *gorm.DB = db
	if loadAuthor {
		result = result.Preload("Author")
	}
	result = result.First(&script, "id = ?", scriptId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return script, ErrScriptNotFound
		}
		slog.Error("sql error in get script", "script_id", scriptId, "error", result.Error)
		return script, ErrDbAccessFailed
	}

	return script, nil
}

func GetEntity(scriptId, entityId uuid.UUID, db *gorm.DB) (Entity, error) {
	var entity Entity

	result := db.First(&entity, "id = ? AND script_id = ?", entityId, scriptId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return entity, ErrEntityNotFound
		}
		slog.Error("sql error in get entity", "script_id", scriptId, "entity_id", entityId, "error", result.Error)
		return entity, ErrDbAccessFailed
	}

	return entity, nil
}

func ListEntities(scriptId uuid.UUID, db *gorm.DB) ([]Entity, error) {
	var entities []Entity

	result := db.Where("script_id = ?", scriptId).Order("sort_order").Order("created_at").Find(&entities)
	if result.Error != nil {
		slog.Error("sql error listing entities", "script_id", scriptId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}

	return entities, nil
}

func GetMergeRequest(requestId uuid.UUID, db *gorm.DB) (MergeRequest, error) {
	var request MergeRequest

	result := db.First(&request, "id = ?", requestId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return request, ErrMergeRequestNotFound
		}
		slog.Error("sql error in get merge request", "request_id", requestId, "error", result.Error)
		return request, ErrDbAccessFailed
	}

	return request, nil
}

// ScriptTagNames returns the sorted tag names attached to a script.
func ScriptTagNames(scriptId uuid.UUID, db *gorm.DB) ([]string, error) {
	var names []string

	result := db.Table("tags").
		Joins("JOIN script_tags ON script_tags.tag_id = tags.id").
		Where("script_tags.script_id = ?", scriptId).
		Order("tags.name").
		Pluck("tags.name", &names)
	if result.Error != nil {
		slog.Error("sql error listing script tags", "script_id", scriptId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}

	return names, nil
}
