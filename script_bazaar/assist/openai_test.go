package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeCompletionServer(t *testing.T, reply string, captured *map[string]interface{}) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
			return
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []interface{}{
				map[string]interface{}{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]interface{}{"role": "assistant", "content": reply},
				},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func testContext() (ScriptContext, uuid.UUID, uuid.UUID) {
	truthId, roleId := uuid.New(), uuid.New()
	return ScriptContext{
		ScriptId:    uuid.New(),
		Title:       "Manor",
		Truth:       "The butler did it",
		TruthLocked: true,
		Entities: []EntityContext{
			{Id: truthId, Kind: "truth", Title: "Truth", Text: "The butler did it"},
			{Id: roleId, Kind: "role", Title: "Butler", Text: "Quiet man"},
		},
	}, truthId, roleId
}

func TestOpenAIProviderSuggest(t *testing.T) {
	scriptCtx, _, roleId := testContext()

	reply := fmt.Sprintf(`{"suggestions": [
		{"entityId": %q, "kind": "clue", "title": "", "text": "Give the butler a limp"},
		{"entityId": null, "kind": "clues", "title": "Muddy boots", "text": "Found by the door"},
		{"entityId": %q, "kind": "role", "title": "Ghost", "text": "Not part of the script"},
		{"entityId": null, "kind": "role", "title": "", "text": "  "}
	]}`, roleId, uuid.New())

	var captured map[string]interface{}
	server := fakeCompletionServer(t, reply, &captured)

	provider := NewOpenAIProvider("test-key", server.URL+"/v1", "test-model")
	changes, err := provider.Suggest(context.Background(), Request{Context: scriptCtx, Instruction: "make it harder"})
	require.NoError(t, err)

	assert.Equal(t, "openai", changes.Provider)
	require.Len(t, changes.Suggestions, 3)

	assert.Equal(t, roleId, *changes.Suggestions[0].EntityId)
	assert.Equal(t, "role", changes.Suggestions[0].Kind)
	assert.Equal(t, "Butler", changes.Suggestions[0].Title)

	assert.Nil(t, changes.Suggestions[1].EntityId)
	assert.Equal(t, "clue", changes.Suggestions[1].Kind)

	// unknown ids become new entity suggestions
	assert.Nil(t, changes.Suggestions[2].EntityId)

	assert.Equal(t, "test-model", captured["model"])
	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 2)
	prompt := messages[1].(map[string]interface{})["content"].(string)
	assert.True(t, strings.Contains(prompt, "Locked truth"))
	assert.True(t, strings.Contains(prompt, "make it harder"))
}

func TestOpenAIProviderFocus(t *testing.T) {
	scriptCtx, truthId, roleId := testContext()
	scriptCtx.Focus = &roleId

	reply := fmt.Sprintf("```json\n"+`{"suggestions": [{"entityId": %q, "text": "a"}, {"entityId": %q, "text": "b"}, {"entityId": null, "text": "c"}]}`+"\n```", roleId, truthId)
	server := fakeCompletionServer(t, reply, nil)

	provider := NewOpenAIProvider("test-key", server.URL+"/v1", "")
	changes, err := provider.Suggest(context.Background(), Request{Context: scriptCtx, Instruction: "tweak"})
	require.NoError(t, err)

	require.Len(t, changes.Suggestions, 1)
	assert.Equal(t, "a", changes.Suggestions[0].Text)
}

func TestOpenAIProviderMalformedReply(t *testing.T) {
	scriptCtx, _, _ := testContext()
	server := fakeCompletionServer(t, "sorry, I can't help", nil)

	provider := NewOpenAIProvider("test-key", server.URL+"/v1", "")
	_, err := provider.Suggest(context.Background(), Request{Context: scriptCtx, Instruction: "tweak"})
	assert.Error(t, err)
}

func TestOpenAIProviderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "boom"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewOpenAIProvider("test-key", server.URL+"/v1", "")
	_, err := provider.Suggest(context.Background(), Request{Instruction: "tweak"})
	assert.Error(t, err)
}

func TestDisabledProvider(t *testing.T) {
	_, err := Disabled{}.Suggest(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
