package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"script_ink/script_bazaar/content"
	"script_ink/script_bazaar/core"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mentionContent(text string, target uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"type": "doc",
		"content": []interface{}{
			map[string]interface{}{
				"type": "paragraph",
				"content": []interface{}{
					map[string]interface{}{"type": "text", "text": text},
					map[string]interface{}{"type": "mention", "attrs": map[string]interface{}{"id": target.String(), "label": "clue"}},
				},
			},
		},
	}
}

// publishScenarioScript builds a public, forkable script with two roles and
// a clue, where the first role mentions the clue.
func publishScenarioScript(t *testing.T, author client) (scriptId, roleId, clueId uuid.UUID) {
	scriptId, err := author.createScript(scriptParams{Title: "X", IsPublic: true, AllowFork: true, Tags: []string{"noir"}})
	require.NoError(t, err)

	roleId, clueId = uuid.New(), uuid.New()

	_, err = author.upsertEntity(scriptId, clueId, map[string]interface{}{
		"kind": "clue", "title": "Knife", "props": map[string]interface{}{"targetId": roleId.String()},
	})
	requireStatus(t, err, http.StatusBadRequest) // the role does not exist yet

	_, err = author.upsertEntity(scriptId, roleId, map[string]interface{}{
		"kind": "role", "title": "Butler", "content": mentionContent("found ", clueId),
	})
	require.NoError(t, err)
	_, err = author.upsertEntity(scriptId, uuid.New(), map[string]interface{}{"kind": "role", "title": "Maid"})
	require.NoError(t, err)
	_, err = author.upsertEntity(scriptId, clueId, map[string]interface{}{
		"kind": "clue", "title": "Knife", "props": map[string]interface{}{"targetId": roleId.String()},
	})
	require.NoError(t, err)

	return scriptId, roleId, clueId
}

func TestForkScenario(t *testing.T) {
	env := setupTestEnv(t)

	alice, err := env.newUser("alice")
	require.NoError(t, err)
	bob, err := env.newUser("bob")
	require.NoError(t, err)

	x, roleId, clueId := publishScenarioScript(t, alice)

	xPrime, err := bob.fork(x)
	require.NoError(t, err)

	info, err := bob.scriptInfo(xPrime)
	require.NoError(t, err)
	assert.Equal(t, "X"+core.ForkTitleSuffix, info.Title)
	assert.False(t, info.IsPublic)
	assert.False(t, info.AllowFork)
	require.NotNil(t, info.ParentId)
	assert.Equal(t, x, *info.ParentId)
	assert.Equal(t, x, info.RootId)
	assert.Equal(t, bob.userId, info.AuthorId.String())
	assert.Equal(t, []string{"noir"}, info.Tags)

	source, err := alice.listEntities(x)
	require.NoError(t, err)
	copies, err := bob.listEntities(xPrime)
	require.NoError(t, err)
	require.Len(t, copies, len(source))

	sourceIds := map[uuid.UUID]bool{}
	for _, e := range source {
		sourceIds[e.Id] = true
	}

	var butler, knife *uuid.UUID
	var butlerContent json.RawMessage
	var knifeProps json.RawMessage
	for _, e := range copies {
		assert.False(t, sourceIds[e.Id], "copy %v reuses a source id", e.Title)
		assert.Equal(t, xPrime, e.ScriptId)
		id := e.Id
		switch e.Title {
		case "Butler":
			butler, butlerContent = &id, e.Content
		case "Knife":
			knife, knifeProps = &id, e.Props
		}
	}
	require.NotNil(t, butler)
	require.NotNil(t, knife)

	doc, err := content.Decode(butlerContent)
	require.NoError(t, err)
	mentions := content.Mentions(doc)
	require.Len(t, mentions, 1)
	assert.Equal(t, knife.String(), mentions[0])
	assert.NotEqual(t, clueId.String(), mentions[0])

	var props map[string]interface{}
	require.NoError(t, json.Unmarshal(knifeProps, &props))
	assert.Equal(t, butler.String(), props["targetId"])
	assert.NotEqual(t, roleId.String(), props["targetId"])

	// the fork is private, so it is hidden from others
	carol, err := env.newUser("carol")
	require.NoError(t, err)
	_, err = carol.scriptInfo(xPrime)
	requireStatus(t, err, http.StatusForbidden)
	_, err = carol.lineage(xPrime)
	requireStatus(t, err, http.StatusNotFound)
}

func TestForkStatusCodes(t *testing.T) {
	env := setupTestEnv(t)

	alice, err := env.newUser("alice")
	require.NoError(t, err)
	bob, err := env.newUser("bob")
	require.NoError(t, err)

	open, err := alice.createScript(scriptParams{Title: "open", IsPublic: true, AllowFork: true})
	require.NoError(t, err)
	private, err := alice.createScript(scriptParams{Title: "private", IsPublic: false, AllowFork: true})
	require.NoError(t, err)
	locked, err := alice.createScript(scriptParams{Title: "locked", IsPublic: true, AllowFork: false})
	require.NoError(t, err)

	anonymous := env.newClient()
	_, err = anonymous.fork(open)
	requireStatus(t, err, http.StatusUnauthorized)

	_, err = bob.fork(uuid.New())
	requireStatus(t, err, http.StatusNotFound)

	_, err = bob.fork(private)
	requireStatus(t, err, http.StatusForbidden)
	_, err = bob.fork(locked)
	requireStatus(t, err, http.StatusForbidden)

	err = bob.Post("/scripts/not-a-uuid/fork").Do(nil)
	requireStatus(t, err, http.StatusBadRequest)

	_, err = bob.fork(open)
	require.NoError(t, err)
}

func TestLineageAcrossGenerations(t *testing.T) {
	env := setupTestEnv(t)

	alice, err := env.newUser("alice")
	require.NoError(t, err)
	bob, err := env.newUser("bob")
	require.NoError(t, err)
	carol, err := env.newUser("carol")
	require.NoError(t, err)

	x, err := alice.createScript(scriptParams{Title: "X", IsPublic: true, AllowFork: true})
	require.NoError(t, err)

	xPrime, err := bob.fork(x)
	require.NoError(t, err)
	require.NoError(t, bob.updateScript(xPrime, map[string]interface{}{"isPublic": true, "allowFork": true}))

	xDoublePrime, err := carol.fork(xPrime)
	require.NoError(t, err)

	info, err := carol.scriptInfo(xDoublePrime)
	require.NoError(t, err)
	assert.Equal(t, x, info.RootId)
	assert.Equal(t, xPrime, *info.ParentId)

	anon := env.newClient()
	value, err := anon.lineage(x)
	require.NoError(t, err)
	assert.Equal(t, x, value.RootId)
	require.Len(t, value.Nodes, 3)

	tree := value.Build()
	require.NotNil(t, tree)
	assert.Equal(t, x, tree.Node.Id)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, xPrime, tree.Children[0].Node.Id)
	require.Len(t, tree.Children[0].Children, 1)
	assert.Equal(t, xDoublePrime, tree.Children[0].Children[0].Node.Id)
	assert.Equal(t, "carol", tree.Children[0].Children[0].Node.AuthorName)

	// deleting a script with forks is refused
	err = bob.deleteScript(xPrime)
	requireStatus(t, err, http.StatusConflict)

	require.NoError(t, carol.deleteScript(xDoublePrime))
	value, err = alice.lineage(x)
	require.NoError(t, err)
	assert.Len(t, value.Nodes, 2)

	_, err = alice.lineage(uuid.New())
	requireStatus(t, err, http.StatusNotFound)
}
