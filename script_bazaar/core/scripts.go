package core

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"script_ink/script_bazaar/entities"
	"script_ink/script_bazaar/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxTitleLength = 200

type ScriptParams struct {
	Title     string
	Summary   string
	IsPublic  bool
	AllowFork bool
	Tags      []string
}

// ScriptUpdate holds optional changes; nil fields are left as is.
type ScriptUpdate struct {
	Title     *string
	Summary   *string
	IsPublic  *bool
	AllowFork *bool
	Tags      []string
}

type ScriptInfo struct {
	Script     schema.Script
	Tags       []string
	Permission Permission
	TruthLock  bool
}

func clipTitle(title string) string {
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	return string([]rune(title)[:maxTitleLength])
}

// CreateScript creates a root script with the default entity set.
func (s *Service) CreateScript(ctx context.Context, actor Actor, params ScriptParams) (schema.Script, error) {
	if err := actor.requireSession(); err != nil {
		return schema.Script{}, err
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		return schema.Script{}, Errorf(InvalidArgument, "script title must not be empty")
	}

	templates, err := entities.DefaultTemplates()
	if err != nil {
		return schema.Script{}, internalError("loading default entities", err)
	}

	id := uuid.New()
	script := schema.Script{
		Id:        id,
		Title:     clipTitle(title),
		Summary:   params.Summary,
		IsPublic:  params.IsPublic,
		AllowFork: params.AllowFork,
		RootId:    id,
		ParentId:  nil,
		AuthorId:  actor.Id,
	}

	err = s.txn(ctx, func(txn *gorm.DB) error {
		if err := txn.Create(&script).Error; err != nil {
			slog.Error("sql error creating script", "error", err)
			return internalError("creating script", schema.ErrDbAccessFailed)
		}

		if err := SyncScriptTags(txn, script.Id, params.Tags); err != nil {
			return err
		}

		rows, err := entities.FromTemplates(script.Id, templates)
		if err != nil {
			return internalError("creating default entities", err)
		}
		if len(rows) > 0 {
			if err := txn.Create(&rows).Error; err != nil {
				slog.Error("sql error creating default entities", "script_id", script.Id, "error", err)
				return internalError("creating default entities", schema.ErrDbAccessFailed)
			}
		}

		return nil
	})
	if err != nil {
		return schema.Script{}, err
	}

	slog.Info("created script", "script_id", script.Id, "author_id", actor.Id)

	return script, nil
}

func (s *Service) GetScript(ctx context.Context, actor Actor, scriptId uuid.UUID) (ScriptInfo, error) {
	db := s.db.WithContext(ctx)

	script, err := schema.GetScript(scriptId, db, true)
	if err != nil {
		return ScriptInfo{}, translateLookup(err, "script", scriptId)
	}

	if err := requirePermission(actor, script, ReadPermission); err != nil {
		return ScriptInfo{}, err
	}

	tags, err := schema.ScriptTagNames(script.Id, db)
	if err != nil {
		return ScriptInfo{}, internalError("loading script tags", err)
	}

	var locks int64
	if err := db.Model(&schema.TruthLock{}).Where("script_id = ?", script.Id).Count(&locks).Error; err != nil {
		slog.Error("sql error checking truth lock", "script_id", script.Id, "error", err)
		return ScriptInfo{}, internalError("loading script", schema.ErrDbAccessFailed)
	}

	return ScriptInfo{Script: script, Tags: tags, Permission: ScriptPermission(actor, script), TruthLock: locks > 0}, nil
}

type ListOptions struct {
	Tag  string
	Mine bool
}

// ListScripts returns public scripts and the actor's own, newest first.
func (s *Service) ListScripts(ctx context.Context, actor Actor, opts ListOptions) ([]ScriptInfo, error) {
	if opts.Mine {
		if err := actor.requireSession(); err != nil {
			return nil, err
		}
	}

	db := s.db.WithContext(ctx)

	query := db.Model(&schema.Script{}).Preload("Author")
	switch {
	case opts.Mine:
		query = query.Where("scripts.author_id = ?", actor.Id)
	case actor.Authenticated():
		query = query.Where("(scripts.is_public = ? OR scripts.author_id = ?)", true, actor.Id)
	default:
		query = query.Where("scripts.is_public = ?", true)
	}

	if tag := NormalizeTags([]string{opts.Tag}); len(tag) == 1 {
		query = query.
			Joins("JOIN script_tags ON script_tags.script_id = scripts.id").
			Joins("JOIN tags ON tags.id = script_tags.tag_id").
			Where("tags.name = ?", tag[0])
	}

	var scripts []schema.Script
	if err := query.Order("scripts.updated_at DESC").Find(&scripts).Error; err != nil {
		slog.Error("sql error listing scripts", "error", err)
		return nil, internalError("listing scripts", schema.ErrDbAccessFailed)
	}

	ids := make([]uuid.UUID, 0, len(scripts))
	for _, script := range scripts {
		ids = append(ids, script.Id)
	}
	tags, err := tagsByScript(db, ids)
	if err != nil {
		return nil, err
	}

	infos := make([]ScriptInfo, 0, len(scripts))
	for _, script := range scripts {
		infos = append(infos, ScriptInfo{Script: script, Tags: tags[script.Id], Permission: ScriptPermission(actor, script)})
	}
	return infos, nil
}

func (s *Service) UpdateScript(ctx context.Context, actor Actor, scriptId uuid.UUID, update ScriptUpdate) error {
	if err := actor.requireSession(); err != nil {
		return err
	}

	var rootId uuid.UUID
	err := s.txn(ctx, func(txn *gorm.DB) error {
		script, err := loadScript(txn, scriptId)
		if err != nil {
			return err
		}
		if err := requirePermission(actor, script, OwnerPermission); err != nil {
			return err
		}
		rootId = script.LineageRoot()

		changes := map[string]interface{}{}
		if update.Title != nil {
			title := strings.TrimSpace(*update.Title)
			if title == "" {
				return Errorf(InvalidArgument, "script title must not be empty")
			}
			changes["title"] = clipTitle(title)
		}
		if update.Summary != nil {
			changes["summary"] = *update.Summary
		}
		if update.IsPublic != nil {
			changes["is_public"] = *update.IsPublic
		}
		if update.AllowFork != nil {
			changes["allow_fork"] = *update.AllowFork
		}

		if len(changes) > 0 {
			if err := txn.Model(&script).Updates(changes).Error; err != nil {
				slog.Error("sql error updating script", "script_id", scriptId, "error", err)
				return internalError("updating script", schema.ErrDbAccessFailed)
			}
		}

		if update.Tags != nil {
			if err := SyncScriptTags(txn, script.Id, update.Tags); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateLineage(ctx, rootId)
	return nil
}

// DeleteScript soft deletes a script. Scripts that still have live forks
// cannot be deleted.
func (s *Service) DeleteScript(ctx context.Context, actor Actor, scriptId uuid.UUID) error {
	if err := actor.requireSession(); err != nil {
		return err
	}

	var rootId uuid.UUID
	err := s.txn(ctx, func(txn *gorm.DB) error {
		script, err := loadScript(txn, scriptId)
		if err != nil {
			return err
		}
		if err := requirePermission(actor, script, OwnerPermission); err != nil {
			return err
		}
		rootId = script.LineageRoot()

		var forks int64
		if err := txn.Model(&schema.Script{}).Where("parent_id = ?", scriptId).Count(&forks).Error; err != nil {
			slog.Error("sql error counting forks", "script_id", scriptId, "error", err)
			return internalError("deleting script", schema.ErrDbAccessFailed)
		}
		if forks > 0 {
			return Errorf(Conflict, "script %v has %d forks and cannot be deleted", scriptId, forks)
		}

		if err := txn.Delete(&script).Error; err != nil {
			slog.Error("sql error deleting script", "script_id", scriptId, "error", err)
			return internalError("deleting script", schema.ErrDbAccessFailed)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("deleted script", "script_id", scriptId, "author_id", actor.Id)
	s.invalidateLineage(ctx, rootId)
	return nil
}

// SetCover records the storage key of a new cover and returns the previous
// one. Forks share their parent's cover file, so the previous key is only
// returned when no other script still references it.
func (s *Service) SetCover(ctx context.Context, actor Actor, scriptId uuid.UUID, key string) (string, error) {
	if err := actor.requireSession(); err != nil {
		return "", err
	}

	var previous string
	err := s.txn(ctx, func(txn *gorm.DB) error {
		script, err := loadScript(txn, scriptId)
		if err != nil {
			return err
		}
		if err := requirePermission(actor, script, OwnerPermission); err != nil {
			return err
		}
		previous = script.Cover

		if err := txn.Model(&script).Update("cover", key).Error; err != nil {
			slog.Error("sql error updating cover", "script_id", scriptId, "error", err)
			return internalError("updating cover", schema.ErrDbAccessFailed)
		}

		if previous == "" {
			return nil
		}
		var shared int64
		if err := txn.Unscoped().Model(&schema.Script{}).Where("cover = ?", previous).Count(&shared).Error; err != nil {
			slog.Error("sql error counting cover references", "script_id", scriptId, "error", err)
			return internalError("updating cover", schema.ErrDbAccessFailed)
		}
		if shared > 0 {
			previous = ""
		}
		return nil
	})
	return previous, err
}

func translateLookup(err error, what string, id uuid.UUID) error {
	if KindOf(err) == NotFound {
		return Errorf(NotFound, "%v %v not found", what, id)
	}
	return internalError("loading "+what, err)
}

// CheckOwner fails unless actor is the author of the script.
func (s *Service) CheckOwner(ctx context.Context, actor Actor, scriptId uuid.UUID) error {
	if err := actor.requireSession(); err != nil {
		return err
	}
	script, err := loadScript(s.db.WithContext(ctx), scriptId)
	if err != nil {
		return err
	}
	return requirePermission(actor, script, OwnerPermission)
}
