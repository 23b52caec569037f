package services

import (
	"fmt"
	"net/http"
	"time"

	"script_ink/script_bazaar/assist"
	"script_ink/script_bazaar/auth"
	"script_ink/script_bazaar/core"
	"script_ink/script_bazaar/storage"
	"script_ink/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
)

type ScriptService struct {
	core     *core.Service
	userAuth auth.IdentityProvider
	covers   *storage.Covers

	assist      assist.Provider
	assistLimit int
}

func (s *ScriptService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.OptionalAuthMiddleware()...)

		r.Get("/", s.List)
		r.Get("/{script_id}", s.Info)
		r.Get("/{script_id}/lineage", s.Lineage)
		r.Get("/{script_id}/entities", s.ListEntities)
		r.Get("/{script_id}/merge-requests", s.ListMergeRequests)
		r.Get("/{script_id}/cover", s.GetCover)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Post("/", s.Create)
		r.Put("/{script_id}", s.Update)
		r.Delete("/{script_id}", s.Delete)

		r.Post("/{script_id}/fork", s.Fork)
		r.Post("/{script_id}/merge-requests", s.CreateMergeRequest)

		r.Get("/{script_id}/truth-lock", s.GetTruthLock)
		r.Post("/{script_id}/truth-lock", s.SetTruthLock)

		r.Put("/{script_id}/entities/{entity_id}", s.UpsertEntity)
		r.Delete("/{script_id}/entities/{entity_id}", s.DeleteEntity)

		r.Post("/{script_id}/cover", s.UploadCover)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		if s.assistLimit > 0 {
			r.Use(httprate.Limit(s.assistLimit, time.Minute, httprate.WithKeyFuncs(assistRateKey)))
		}

		r.Post("/{script_id}/assist", s.Assist)
	})

	return r
}

func assistRateKey(r *http.Request) (string, error) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		return "", err
	}
	return user.Id.String(), nil
}

type scriptIdResponse struct {
	Id uuid.UUID `json:"id"`
}

type ScriptInfo struct {
	Id          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	HasCover    bool       `json:"hasCover"`
	IsPublic    bool       `json:"isPublic"`
	AllowFork   bool       `json:"allowFork"`
	RootId      uuid.UUID  `json:"rootId"`
	ParentId    *uuid.UUID `json:"parentId"`
	AuthorId    uuid.UUID  `json:"authorId"`
	AuthorName  string     `json:"authorName"`
	Tags        []string   `json:"tags"`
	Permission  string     `json:"permission"`
	TruthLocked bool       `json:"truthLocked"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func convertToScriptInfo(info core.ScriptInfo) ScriptInfo {
	script := info.Script
	out := ScriptInfo{
		Id:          script.Id,
		Title:       script.Title,
		Summary:     script.Summary,
		HasCover:    script.Cover != "",
		IsPublic:    script.IsPublic,
		AllowFork:   script.AllowFork,
		RootId:      script.LineageRoot(),
		ParentId:    script.ParentId,
		AuthorId:    script.AuthorId,
		Tags:        info.Tags,
		Permission:  info.Permission.String(),
		TruthLocked: info.TruthLock,
		CreatedAt:   script.CreatedAt,
		UpdatedAt:   script.UpdatedAt,
	}
	if script.Author != nil {
		out.AuthorName = script.Author.Name()
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return out
}

type createScriptRequest struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	IsPublic  bool     `json:"isPublic"`
	AllowFork bool     `json:"allowFork"`
	Tags      []string `json:"tags"`
}

func (s *ScriptService) Create(w http.ResponseWriter, r *http.Request) {
	var params createScriptRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	script, err := s.core.CreateScript(r.Context(), auth.ActorFromRequest(r), core.ScriptParams{
		Title:     params.Title,
		Summary:   params.Summary,
		IsPublic:  params.IsPublic,
		AllowFork: params.AllowFork,
		Tags:      params.Tags,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJsonResponse(w, scriptIdResponse{Id: script.Id})
}

func (s *ScriptService) List(w http.ResponseWriter, r *http.Request) {
	opts := core.ListOptions{
		Tag:  r.URL.Query().Get("tag"),
		Mine: utils.QueryBool(r, "mine"),
	}

	scripts, err := s.core.ListScripts(r.Context(), auth.ActorFromRequest(r), opts)
	if err != nil {
		writeError(w, err)
		return
	}

	infos := make([]ScriptInfo, 0, len(scripts))
	for _, script := range scripts {
		infos = append(infos, convertToScriptInfo(script))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *ScriptService) Info(w http.ResponseWriter, r *http.Request) {
	scriptId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, err := s.core.GetScript(r.Context(), auth.ActorFromRequest(r), scriptId)
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJsonResponse(w, convertToScriptInfo(info))
}

type updateScriptRequest struct {
	Title     *string  `json:"title"`
	Summary   *string  `json:"summary"`
	IsPublic  *bool    `json:"isPublic"`
	AllowFork *bool    `json:"allowFork"`
	Tags      []string `json:"tags"`
}

func (s *ScriptService) Update(w http.ResponseWriter, r *http.Request) {
	scriptId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateScriptRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.core.UpdateScript(r.Context(), auth.ActorFromRequest(r), scriptId, core.ScriptUpdate{
		Title:     params.Title,
		Summary:   params.Summary,
		IsPublic:  params.IsPublic,
		AllowFork: params.AllowFork,
		Tags:      params.Tags,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteSuccess(w)
}

func (s *ScriptService) Delete(w http.ResponseWriter, r *http.Request) {
	scriptId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.core.DeleteScript(r.Context(), auth.ActorFromRequest(r), scriptId); err != nil {
		http.Error(w, fmt.Sprintf("error deleting script: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type TagService struct {
	core *core.Service
}

func (s *TagService) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.List)
	return r
}

func (s *TagService) List(w http.ResponseWriter, r *http.Request) {
	tags, err := s.core.ListTags(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJsonResponse(w, tags)
}
