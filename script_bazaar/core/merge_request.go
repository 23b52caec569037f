package core

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"script_ink/script_bazaar/metrics"
	"script_ink/script_bazaar/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	Incoming = "incoming"
	Outgoing = "outgoing"
)

type MergeRequestInfo struct {
	Id             uuid.UUID `json:"id"`
	SourceScriptId uuid.UUID `json:"sourceScriptId"`
	SourceTitle    string    `json:"sourceTitle"`
	TargetScriptId uuid.UUID `json:"targetScriptId"`
	TargetTitle    string    `json:"targetTitle"`
	AuthorId       uuid.UUID `json:"authorId"`
	AuthorName     string    `json:"authorName"`
	Summary        string    `json:"summary"`
	Status         string    `json:"status"`
	Direction      string    `json:"direction,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func mergeRequestInfo(request schema.MergeRequest, scriptId uuid.UUID) MergeRequestInfo {
	info := MergeRequestInfo{
		Id:             request.Id,
		SourceScriptId: request.SourceScriptId,
		TargetScriptId: request.TargetScriptId,
		AuthorId:       request.AuthorId,
		Summary:        request.Summary,
		Status:         request.Status,
		CreatedAt:      request.CreatedAt,
		UpdatedAt:      request.UpdatedAt,
	}
	if request.SourceScript != nil {
		info.SourceTitle = request.SourceScript.Title
	}
	if request.TargetScript != nil {
		info.TargetTitle = request.TargetScript.Title
	}
	if request.Author != nil {
		info.AuthorName = request.Author.Name()
	}
	switch scriptId {
	case request.TargetScriptId:
		info.Direction = Incoming
	case request.SourceScriptId:
		info.Direction = Outgoing
	}
	return info
}

func pendingExists(txn *gorm.DB, sourceId, targetId uuid.UUID, exclude uuid.UUID) (bool, error) {
	var count int64
	result := txn.Model(&schema.MergeRequest{}).
		Where("source_script_id = ? AND target_script_id = ? AND status = ? AND id <> ?", sourceId, targetId, schema.MergePending, exclude).
		Count(&count)
	if result.Error != nil {
		slog.Error("sql error checking for pending merge request", "source_id", sourceId, "target_id", targetId, "error", result.Error)
		return false, internalError("checking pending merge requests", schema.ErrDbAccessFailed)
	}
	return count > 0, nil
}

// CreateMergeRequest proposes that the author of targetId acknowledge the
// changes made in the fork sourceId. Checks run in a fixed order so each
// failure is reported distinctly.
func (s *Service) CreateMergeRequest(ctx context.Context, actor Actor, targetId, sourceId uuid.UUID, summary string) (uuid.UUID, error) {
	if err := actor.requireSession(); err != nil {
		return uuid.Nil, err
	}

	summary = strings.TrimSpace(summary)
	if sourceId == uuid.Nil || summary == "" {
		return uuid.Nil, Errorf(InvalidArgument, "source script and summary are required")
	}

	request := schema.MergeRequest{
		Id:             uuid.New(),
		SourceScriptId: sourceId,
		TargetScriptId: targetId,
		AuthorId:       actor.Id,
		Summary:        summary,
		Status:         schema.MergePending,
	}

	err := s.txn(ctx, func(txn *gorm.DB) error {
		target, err := loadScript(txn, targetId)
		if err != nil {
			return err
		}
		source, err := loadScript(txn, sourceId)
		if err != nil {
			return err
		}

		if source.AuthorId != actor.Id {
			return Errorf(Forbidden, "only the author of script %v may request a merge from it", sourceId)
		}
		if sourceId == targetId {
			return Errorf(InvalidArgument, "a script cannot be merged into itself")
		}
		if source.LineageRoot() != target.LineageRoot() {
			return Errorf(InvalidArgument, "scripts %v and %v belong to different lineages", sourceId, targetId)
		}

		pending, err := pendingExists(txn, sourceId, targetId, uuid.Nil)
		if err != nil {
			return err
		}
		if pending {
			return Errorf(Conflict, "a merge request from %v to %v is already pending", sourceId, targetId)
		}

		if err := txn.Create(&request).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return Errorf(Conflict, "a merge request from %v to %v is already pending", sourceId, targetId)
			}
			slog.Error("sql error creating merge request", "source_id", sourceId, "target_id", targetId, "error", err)
			return internalError("creating merge request", schema.ErrDbAccessFailed)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	metrics.MergeRequestsCreated.Inc()
	slog.Info("created merge request", "request_id", request.Id, "source_id", sourceId, "target_id", targetId, "author_id", actor.Id)

	return request.Id, nil
}

// SetMergeRequestStatus records the target author's decision. Accepting only
// changes the status; no content is merged. Requests may be reopened.
func (s *Service) SetMergeRequestStatus(ctx context.Context, actor Actor, requestId uuid.UUID, status string) error {
	if err := actor.requireSession(); err != nil {
		return err
	}
	if !schema.IsValidMergeStatus(status) {
		return Errorf(InvalidArgument, "invalid merge request status '%v'", status)
	}

	var previous string
	err := s.txn(ctx, func(txn *gorm.DB) error {
		request, err := schema.GetMergeRequest(requestId, txn)
		if err != nil {
			return translateLookup(err, "merge request", requestId)
		}

		target, err := loadScript(txn, request.TargetScriptId)
		if err != nil {
			return err
		}
		if target.AuthorId != actor.Id {
			return Errorf(Forbidden, "only the author of script %v may decide on merge requests", target.Id)
		}

		previous = request.Status
		if status == schema.MergePending && previous != schema.MergePending {
			pending, err := pendingExists(txn, request.SourceScriptId, request.TargetScriptId, request.Id)
			if err != nil {
				return err
			}
			if pending {
				return Errorf(Conflict, "another merge request from %v to %v is already pending", request.SourceScriptId, request.TargetScriptId)
			}
		}

		if err := txn.Model(&request).Updates(map[string]interface{}{"status": status}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return Errorf(Conflict, "another merge request from %v to %v is already pending", request.SourceScriptId, request.TargetScriptId)
			}
			slog.Error("sql error updating merge request", "request_id", requestId, "error", err)
			return internalError("updating merge request", schema.ErrDbAccessFailed)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.MergeRequestTransitions.WithLabelValues(status).Inc()
	slog.Info("merge request status changed", "request_id", requestId, "from", previous, "to", status, "actor_id", actor.Id)

	return nil
}

// ListMergeRequests returns requests into and out of a script, newest first.
func (s *Service) ListMergeRequests(ctx context.Context, actor Actor, scriptId uuid.UUID) ([]MergeRequestInfo, error) {
	db := s.db.WithContext(ctx)

	script, err := schema.GetScript(scriptId, db, false)
	if err != nil {
		return nil, translateLookup(err, "script", scriptId)
	}
	if err := requirePermission(actor, script, ReadPermission); err != nil {
		return nil, err
	}

	var requests []schema.MergeRequest
	result := db.Preload("SourceScript").Preload("TargetScript").Preload("Author").
		Where("source_script_id = ? OR target_script_id = ?", scriptId, scriptId).
		Order("created_at DESC").Order("id").
		Find(&requests)
	if result.Error != nil {
		slog.Error("sql error listing merge requests", "script_id", scriptId, "error", result.Error)
		return nil, internalError("listing merge requests", schema.ErrDbAccessFailed)
	}

	infos := make([]MergeRequestInfo, 0, len(requests))
	for _, request := range requests {
		infos = append(infos, mergeRequestInfo(request, scriptId))
	}
	return infos, nil
}

// GetMergeRequest is visible to the request author and the authors of both scripts.
func (s *Service) GetMergeRequest(ctx context.Context, actor Actor, requestId uuid.UUID) (MergeRequestInfo, error) {
	if err := actor.requireSession(); err != nil {
		return MergeRequestInfo{}, err
	}

	var request schema.MergeRequest
	result := s.db.WithContext(ctx).Preload("SourceScript").Preload("TargetScript").Preload("Author").
		Limit(1).Find(&request, "id = ?", requestId)
	if result.Error != nil {
		slog.Error("sql error loading merge request", "request_id", requestId, "error", result.Error)
		return MergeRequestInfo{}, internalError("loading merge request", schema.ErrDbAccessFailed)
	}
	if result.RowsAffected == 0 {
		return MergeRequestInfo{}, Errorf(NotFound, "merge request %v not found", requestId)
	}

	allowed := request.AuthorId == actor.Id ||
		(request.SourceScript != nil && request.SourceScript.AuthorId == actor.Id) ||
		(request.TargetScript != nil && request.TargetScript.AuthorId == actor.Id)
	if !allowed {
		return MergeRequestInfo{}, Errorf(Forbidden, "merge request %v is only visible to the authors involved", requestId)
	}

	return mergeRequestInfo(request, uuid.Nil), nil
}
