package services

import (
	"net/http"
	"time"

	"script_ink/script_bazaar/auth"
	"script_ink/utils"

	"github.com/google/uuid"
)

type TruthLockInfo struct {
	Id       uuid.UUID `json:"id"`
	Truth    string    `json:"truth"`
	LockedAt time.Time `json:"lockedAt"`
}

// GetTruthLock responds with the lock, or null when the script has none.
func (s *ScriptService) GetTruthLock(w http.ResponseWriter, r *http.Request) {
	scriptId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	lock, err := s.core.GetTruthLock(r.Context(), auth.ActorFromRequest(r), scriptId)
	if err != nil {
		writeError(w, err)
		return
	}

	if lock == nil {
		utils.WriteJsonResponse(w, nil)
		return
	}

	utils.WriteJsonResponse(w, TruthLockInfo{Id: lock.Id, Truth: lock.Truth, LockedAt: lock.LockedAt})
}

type setTruthLockRequest struct {
	Truth string `json:"truth"`
}

func (s *ScriptService) SetTruthLock(w http.ResponseWriter, r *http.Request) {
	scriptId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params setTruthLockRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	lockId, err := s.core.SetTruthLock(r.Context(), auth.ActorFromRequest(r), scriptId, params.Truth)
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJsonResponse(w, scriptIdResponse{Id: lockId})
}
