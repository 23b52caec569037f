package services

import (
	"log/slog"
	"net/http"

	"script_ink/script_bazaar/auth"
	"script_ink/utils"
)

func (s *ScriptService) Fork(w http.ResponseWriter, r *http.Request) {
	scriptId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.core.Fork(r.Context(), auth.ActorFromRequest(r), scriptId)
	if err != nil {
		slog.Info("fork rejected", "script_id", scriptId, "error", err)
		writeError(w, err)
		return
	}

	utils.WriteJsonResponse(w, scriptIdResponse{Id: result.ScriptId})
}

func (s *ScriptService) Lineage(w http.ResponseWriter, r *http.Request) {
	scriptId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	value, err := s.core.GetLineage(r.Context(), auth.ActorFromRequest(r), scriptId)
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJsonResponse(w, value)
}
