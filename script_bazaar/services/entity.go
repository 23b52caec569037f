package services

import (
	"encoding/json"
	"net/http"
	"time"

	"script_ink/script_bazaar/auth"
	"script_ink/script_bazaar/core"
	"script_ink/script_bazaar/entities"
	"script_ink/script_bazaar/schema"
	"script_ink/utils"

	"github.com/google/uuid"
)

type EntityInfo struct {
	Id        uuid.UUID       `json:"id"`
	ScriptId  uuid.UUID       `json:"scriptId"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Content   json.RawMessage `json:"content"`
	Props     json.RawMessage `json:"props"`
	SortOrder int             `json:"sortOrder"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func rawJson(data string, fallback string) json.RawMessage {
	if data == "" || !json.Valid([]byte(data)) {
		return json.RawMessage(fallback)
	}
	return json.RawMessage(data)
}

func convertToEntityInfo(entity schema.Entity) EntityInfo {
	kind, _ := entities.ParseKind(entity.Kind)
	return EntityInfo{
		Id:        entity.Id,
		ScriptId:  entity.ScriptId,
		Kind:      string(kind),
		Title:     entity.Title,
		Content:   rawJson(entity.Content, "null"),
		Props:     rawJson(entity.Props, "{}"),
		SortOrder: entity.SortOrder,
		CreatedAt: entity.CreatedAt,
		UpdatedAt: entity.UpdatedAt,
	}
}

func (s *ScriptService) ListEntities(w http.ResponseWriter, r *http.Request) {
	scriptId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := s.core.ListEntities(r.Context(), auth.ActorFromRequest(r), scriptId)
	if err != nil {
		writeError(w, err)
		return
	}

	infos := make([]EntityInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, convertToEntityInfo(row))
	}

	utils.WriteJsonResponse(w, infos)
}

type upsertEntityRequest struct {
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Content   json.RawMessage `json:"content"`
	Props     entities.Props  `json:"props"`
	SortOrder *int            `json:"sortOrder"`
}

func (s *ScriptService) UpsertEntity(w http.ResponseWriter, r *http.Request) {
	scriptId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entityId, err := utils.URLParamUUID(r, "entity_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params upsertEntityRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	entity, err := s.core.UpsertEntity(r.Context(), auth.ActorFromRequest(r), scriptId, entityId, core.EntityParams{
		Kind:      params.Kind,
		Title:     params.Title,
		Content:   params.Content,
		Props:     params.Props,
		SortOrder: params.SortOrder,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJsonResponse(w, convertToEntityInfo(entity))
}

func (s *ScriptService) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	scriptId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entityId, err := utils.URLParamUUID(r, "entity_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.core.DeleteEntity(r.Context(), auth.ActorFromRequest(r), scriptId, entityId); err != nil {
		writeError(w, err)
		return
	}

	utils.WriteSuccess(w)
}
