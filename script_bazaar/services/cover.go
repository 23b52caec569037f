package services

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"

	"script_ink/script_bazaar/auth"
	"script_ink/script_bazaar/storage"
	"script_ink/utils"
)

func coverError(err error) error {
	switch {
	case errors.Is(err, storage.ErrCoverTooLarge):
		return CodedError(err, http.StatusBadRequest)
	case errors.Is(err, storage.ErrInsufficientDisk):
		return CodedError(err, http.StatusInsufficientStorage)
	case errors.Is(err, storage.ErrFileNotFound):
		return CodedError(errors.New("cover not found"), http.StatusNotFound)
	default:
		return CodedError(errors.New("error accessing cover storage"), http.StatusInternalServerError)
	}
}

// UploadCover takes the raw image as the request body.
func (s *ScriptService) UploadCover(w http.ResponseWriter, r *http.Request) {
	scriptId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, "cover upload requires an image content type", http.StatusBadRequest)
		return
	}
	ext, ok := storage.CoverExtension(mediaType)
	if !ok {
		http.Error(w, fmt.Sprintf("unsupported cover type '%v'", mediaType), http.StatusBadRequest)
		return
	}

	actor := auth.ActorFromRequest(r)

	// check ownership before touching storage
	if err := s.core.CheckOwner(r.Context(), actor, scriptId); err != nil {
		writeError(w, err)
		return
	}

	key, err := s.covers.Save(scriptId, ext, r.Body, r.ContentLength)
	if err != nil {
		err = coverError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	previous, err := s.core.SetCover(r.Context(), actor, scriptId, key)
	if err != nil {
		s.covers.Remove(key)
		writeError(w, err)
		return
	}
	s.covers.Remove(previous)

	slog.Info("updated script cover", "script_id", scriptId, "key", key)

	utils.WriteSuccess(w)
}

func (s *ScriptService) GetCover(w http.ResponseWriter, r *http.Request) {
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

	file, err := s.covers.Open(info.Script.Cover)
	if err != nil {
		err = coverError(err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	defer file.Close()

	if contentType := mime.TypeByExtension(path.Ext(info.Script.Cover)); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, file); err != nil {
		slog.Error("error streaming cover", "script_id", scriptId, "error", err)
	}
}
