package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"script_ink/script_bazaar/assist"
	"script_ink/script_bazaar/auth"
	"script_ink/script_bazaar/metrics"
	"script_ink/utils"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

type assistRequest struct {
	Instruction string     `json:"instruction"`
	EntityId    *uuid.UUID `json:"entityId"`
}

// Assist asks the configured provider for suggested edits. Nothing is written;
// the suggestions are returned for the author to apply.
func (s *ScriptService) Assist(w http.ResponseWriter, r *http.Request) {
	scriptId, err := utils.URLParamUUID(r, "script_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params assistRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	instruction := strings.TrimSpace(params.Instruction)
	if instruction == "" {
		http.Error(w, "instruction must not be empty", http.StatusBadRequest)
		return
	}

	scriptCtx, err := s.core.AssistContext(r.Context(), auth.ActorFromRequest(r), scriptId, params.EntityId)
	if err != nil {
		writeError(w, err)
		return
	}

	provider := s.assist.Name()
	timer := prometheus.NewTimer(metrics.AssistLatency)
	changes, err := s.assist.Suggest(r.Context(), assist.Request{Context: scriptCtx, Instruction: instruction})
	timer.ObserveDuration()

	if err != nil {
		if errors.Is(err, assist.ErrNotConfigured) {
			metrics.AssistRequests.WithLabelValues(provider, "disabled").Inc()
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		metrics.AssistRequests.WithLabelValues(provider, "error").Inc()
		slog.Error("assist provider failed", "script_id", scriptId, "provider", provider, "error", err)
		http.Error(w, fmt.Sprintf("assist provider %v failed", provider), http.StatusBadGateway)
		return
	}

	metrics.AssistRequests.WithLabelValues(provider, "ok").Inc()
	if changes.Suggestions == nil {
		changes.Suggestions = []assist.Suggestion{}
	}

	utils.WriteJsonResponse(w, changes)
}
