package services

import (
	"net/http"

	"script_ink/script_bazaar/auth"
	"script_ink/script_bazaar/core"
	"script_ink/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type createMergeRequestRequest struct {
	SourceScriptId uuid.UUID `json:"sourceScriptId"`
	Summary        string    `json:"summary"`
}

type mergeRequestIdResponse struct {
	Id uuid.UUID `json:"id"`
}

// CreateMergeRequest proposes merging the fork named in the body into the
// script in the url.
func (s *ScriptService) CreateMergeRequest(w http.ResponseWriter, r *http.Request) {
	targetId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params createMergeRequestRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	requestId, err := s.core.CreateMergeRequest(r.Context(), auth.ActorFromRequest(r), targetId, params.SourceScriptId, params.Summary)
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJsonResponse(w, mergeRequestIdResponse{Id: requestId})
}

type listMergeRequestsResponse struct {
	Requests []core.MergeRequestInfo `json:"requests"`
}

func (s *ScriptService) ListMergeRequests(w http.ResponseWriter, r *http.Request) {
	scriptId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	requests, err := s.core.ListMergeRequests(r.Context(), auth.ActorFromRequest(r), scriptId)
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJsonResponse(w, listMergeRequestsResponse{Requests: requests})
}

type MergeRequestService struct {
	core     *core.Service
	userAuth auth.IdentityProvider
}

func (s *MergeRequestService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/{request_id}", s.Info)
		r.Put("/{request_id}", s.SetStatus)
	})

	return r
}

func (s *MergeRequestService) Info(w http.ResponseWriter, r *http.Request) {
	requestId, err := utils.URLParamUUID(r, "request_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, err := s.core.GetMergeRequest(r.Context(), auth.ActorFromRequest(r), requestId)
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJsonResponse(w, info)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (s *MergeRequestService) SetStatus(w http.ResponseWriter, r *http.Request) {
	requestId, err := utils.URLParamUUID(r, "request_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params setStatusRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := s.core.SetMergeRequestStatus(r.Context(), auth.ActorFromRequest(r), requestId, params.Status); err != nil {
		writeError(w, err)
		return
	}

	utils.WriteSuccess(w)
}
