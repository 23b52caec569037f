package core_test

import (
	"context"
	"encoding/json"
	"script_ink/script_bazaar/core"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssistContext(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	alice, bob := env.newUser(t, "alice"), env.newUser(t, "bob")
	script := env.newScript(t, alice, "X", true, true)

	rows, err := env.service.ListEntities(ctx, alice, script.Id)
	require.NoError(t, err)
	truthId := rows[0].Id

	_, err = env.service.UpsertEntity(ctx, alice, script.Id, truthId, core.EntityParams{
		Kind: "truth", Content: json.RawMessage(`"the butler did it"`),
	})
	require.NoError(t, err)

	roleId := uuid.New()
	_, err = env.service.UpsertEntity(ctx, alice, script.Id, roleId, core.EntityParams{
		Kind: "role", Title: "Butler", Content: json.RawMessage(`"quiet"`),
	})
	require.NoError(t, err)

	full, err := env.service.AssistContext(ctx, alice, script.Id, nil)
	require.NoError(t, err)
	assert.Equal(t, "X", full.Title)
	assert.Equal(t, "the butler did it", full.Truth)
	assert.False(t, full.TruthLocked)
	assert.Len(t, full.Entities, 4)

	_, err = env.service.SetTruthLock(ctx, alice, script.Id, "the maid did it")
	require.NoError(t, err)

	focused, err := env.service.AssistContext(ctx, alice, script.Id, &roleId)
	require.NoError(t, err)
	assert.Equal(t, "the maid did it", focused.Truth)
	assert.True(t, focused.TruthLocked)
	require.Len(t, focused.Entities, 2)
	assert.Equal(t, truthId, focused.Entities[0].Id)
	assert.Equal(t, roleId, focused.Entities[1].Id)
	assert.Equal(t, "quiet", focused.Entities[1].Text)

	missing := uuid.New()
	_, err = env.service.AssistContext(ctx, alice, script.Id, &missing)
	requireKind(t, err, core.NotFound)

	_, err = env.service.AssistContext(ctx, bob, script.Id, nil)
	requireKind(t, err, core.Forbidden)
}
