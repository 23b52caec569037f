package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"script_ink/script_bazaar/entities"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-4o-mini"

type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider talks to any OpenAI compatible chat completions endpoint.
// An empty baseUrl uses the public OpenAI API.
func NewOpenAIProvider(apiKey, baseUrl, model string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseUrl != "" {
		config.BaseURL = baseUrl
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(config), model: model}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

const systemPrompt = "You help authors of murder mystery party scripts. " +
	"A script has one truth, roles, clues and flow nodes. Never contradict the truth. " +
	"Reply with a JSON object of the form " +
	`{"suggestions": [{"entityId": "<id of an existing entity, or null for a new one>", "kind": "truth|role|clue|flow_node", "title": "...", "text": "..."}]}` +
	" and nothing else."

const contextWordLimit = 3000

func makePrompt(req Request) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Script: %s\n", req.Context.Title)
	if req.Context.Summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", req.Context.Summary)
	}
	if req.Context.TruthLocked {
		fmt.Fprintf(&sb, "\nLocked truth (authoritative):\n%s\n", req.Context.Truth)
	} else if req.Context.Truth != "" {
		fmt.Fprintf(&sb, "\nTruth:\n%s\n", req.Context.Truth)
	}

	for _, entity := range req.Context.Entities {
		fmt.Fprintf(&sb, "\n[%s %s] %s\n%s\n", entity.Kind, entity.Id, entity.Title, entity.Text)
	}

	scriptText := sb.String()
	words := strings.Fields(scriptText)
	if len(words) > contextWordLimit {
		scriptText = strings.Join(words[:contextWordLimit], " ")
	}

	task := "Suggest edits for the script."
	if req.Context.Focus != nil {
		task = fmt.Sprintf("Suggest edits for entity %s only.", req.Context.Focus)
	}

	return fmt.Sprintf("%s\n\n%s Instruction: %s", scriptText, task, req.Instruction)
}

type completionPayload struct {
	Suggestions []struct {
		EntityId *string `json:"entityId"`
		Kind     string  `json:"kind"`
		Title    string  `json:"title"`
		Text     string  `json:"text"`
	} `json:"suggestions"`
}

func (p *OpenAIProvider) Suggest(ctx context.Context, req Request) (ChangeSet, error) {
	res, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: makePrompt(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		slog.Error("error calling chat completion", "model", p.model, "error", err)
		return ChangeSet{}, fmt.Errorf("error calling assist model: %w", err)
	}

	if len(res.Choices) == 0 {
		return ChangeSet{}, errors.New("assist model returned no choices")
	}

	return parseSuggestions(res.Choices[0].Message.Content, req.Context, p.Name())
}

// parseSuggestions keeps suggestions that target entities of the script and
// turns suggestions for unknown ids into new-entity suggestions.
func parseSuggestions(raw string, scriptCtx ScriptContext, provider string) (ChangeSet, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")

	var payload completionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return ChangeSet{}, fmt.Errorf("assist model returned malformed suggestions: %w", err)
	}

	known := make(map[uuid.UUID]EntityContext, len(scriptCtx.Entities))
	for _, entity := range scriptCtx.Entities {
		known[entity.Id] = entity
	}

	suggestions := make([]Suggestion, 0, len(payload.Suggestions))
	for _, s := range payload.Suggestions {
		if strings.TrimSpace(s.Text) == "" && strings.TrimSpace(s.Title) == "" {
			continue
		}

		kind, _ := entities.ParseKind(s.Kind)
		suggestion := Suggestion{Kind: string(kind), Title: s.Title, Text: s.Text}
		if s.EntityId != nil {
			if id, err := uuid.Parse(*s.EntityId); err == nil {
				if entity, ok := known[id]; ok {
					suggestion.EntityId = &id
					suggestion.Kind = entity.Kind
					if suggestion.Title == "" {
						suggestion.Title = entity.Title
					}
				}
			}
		}

		if scriptCtx.Focus != nil && (suggestion.EntityId == nil || *suggestion.EntityId != *scriptCtx.Focus) {
			continue
		}

		suggestions = append(suggestions, suggestion)
	}

	return ChangeSet{Provider: provider, Suggestions: suggestions}, nil
}
