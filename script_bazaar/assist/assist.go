// Package assist produces suggested entity edits from a language model. It
// never writes to the store: callers decide which suggestions to apply.
package assist

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotConfigured = errors.New("assist provider is not configured")

type EntityContext struct {
	Id    uuid.UUID `json:"id"`
	Kind  string    `json:"kind"`
	Title string    `json:"title"`
	Text  string    `json:"text"`
}

type ScriptContext struct {
	ScriptId    uuid.UUID       `json:"scriptId"`
	Title       string          `json:"title"`
	Summary     string          `json:"summary"`
	Truth       string          `json:"truth"`
	TruthLocked bool            `json:"truthLocked"`
	Entities    []EntityContext `json:"entities"`
	Focus       *uuid.UUID      `json:"focus,omitempty"`
}

type Request struct {
	Context     ScriptContext
	Instruction string
}

// Suggestion is one proposed edit. A nil EntityId proposes a new entity.
type Suggestion struct {
	EntityId *uuid.UUID `json:"entityId"`
	Kind     string     `json:"kind"`
	Title    string     `json:"title"`
	Text     string     `json:"text"`
}

type ChangeSet struct {
	Provider    string       `json:"provider"`
	Suggestions []Suggestion `json:"suggestions"`
}

type Provider interface {
	Name() string

	Suggest(ctx context.Context, req Request) (ChangeSet, error)
}

// Disabled is used when no model backend is configured.
type Disabled struct{}

func (Disabled) Name() string {
	return "disabled"
}

func (Disabled) Suggest(ctx context.Context, req Request) (ChangeSet, error) {
	return ChangeSet{}, ErrNotConfigured
}
