package tests

import (
	"net/http"
	"testing"

	"script_ink/script_bazaar/core"
	"script_ink/script_bazaar/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeRequestScenario(t *testing.T) {
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

	// only the fork's author may propose it
	_, err = carol.createMergeRequest(x, xPrime, "hijack")
	requireStatus(t, err, http.StatusForbidden)

	requestId, err := bob.createMergeRequest(x, xPrime, "added ending")
	require.NoError(t, err)

	requests, err := alice.listMergeRequests(x)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, requestId, requests[0].Id)
	assert.Equal(t, schema.MergePending, requests[0].Status)
	assert.Equal(t, "added ending", requests[0].Summary)
	assert.Equal(t, core.Incoming, requests[0].Direction)

	_, err = bob.createMergeRequest(x, xPrime, "again")
	requireStatus(t, err, http.StatusConflict)

	err = bob.setMergeRequestStatus(requestId, schema.MergeAccepted)
	requireStatus(t, err, http.StatusForbidden)
	err = carol.setMergeRequestStatus(requestId, schema.MergeAccepted)
	requireStatus(t, err, http.StatusForbidden)

	require.NoError(t, alice.setMergeRequestStatus(requestId, schema.MergeAccepted))

	info, err := bob.mergeRequest(requestId)
	require.NoError(t, err)
	assert.Equal(t, schema.MergeAccepted, info.Status)

	second, err := bob.createMergeRequest(x, xPrime, "a second pass")
	require.NoError(t, err)
	assert.NotEqual(t, requestId, second)

	requests, err = bob.listMergeRequests(xPrime)
	require.NoError(t, err)
	assert.Len(t, requests, 2)
	for _, request := range requests {
		assert.Equal(t, core.Outgoing, request.Direction)
	}

	_, err = carol.mergeRequest(requestId)
	requireStatus(t, err, http.StatusForbidden)
}

func TestMergeRequestStatusCodes(t *testing.T) {
	env := setupTestEnv(t)

	alice, err := env.newUser("alice")
	require.NoError(t, err)
	bob, err := env.newUser("bob")
	require.NoError(t, err)

	x, err := alice.createScript(scriptParams{Title: "X", IsPublic: true, AllowFork: true})
	require.NoError(t, err)
	y, err := bob.createScript(scriptParams{Title: "Y", IsPublic: true, AllowFork: true})
	require.NoError(t, err)
	xPrime, err := bob.fork(x)
	require.NoError(t, err)

	anonymous := env.newClient()
	_, err = anonymous.createMergeRequest(x, xPrime, "x")
	requireStatus(t, err, http.StatusUnauthorized)

	_, err = bob.createMergeRequest(x, xPrime, "")
	requireStatus(t, err, http.StatusBadRequest)

	err = bob.Post("/scripts/" + x.String() + "/merge-requests").Json(map[string]string{"summary": "no source"}).Do(nil)
	requireStatus(t, err, http.StatusBadRequest)

	_, err = bob.createMergeRequest(xPrime, xPrime, "self")
	requireStatus(t, err, http.StatusBadRequest)

	_, err = bob.createMergeRequest(y, xPrime, "other lineage")
	requireStatus(t, err, http.StatusBadRequest)

	_, err = bob.createMergeRequest(uuid.New(), xPrime, "no target")
	requireStatus(t, err, http.StatusNotFound)

	_, err = bob.createMergeRequest(x, uuid.New(), "no source")
	requireStatus(t, err, http.StatusNotFound)

	requestId, err := bob.createMergeRequest(x, xPrime, "ok")
	require.NoError(t, err)

	err = alice.setMergeRequestStatus(requestId, "merged")
	requireStatus(t, err, http.StatusBadRequest)

	err = alice.setMergeRequestStatus(uuid.New(), schema.MergeAccepted)
	requireStatus(t, err, http.StatusNotFound)

	err = anonymous.setMergeRequestStatus(requestId, schema.MergeAccepted)
	requireStatus(t, err, http.StatusUnauthorized)

	// reopening is allowed
	require.NoError(t, alice.setMergeRequestStatus(requestId, schema.MergeRejected))
	require.NoError(t, alice.setMergeRequestStatus(requestId, schema.MergePending))

	// the private fork's requests are hidden from anonymous visitors
	_, err = anonymous.listMergeRequests(xPrime)
	requireStatus(t, err, http.StatusForbidden)
	_, err = anonymous.listMergeRequests(uuid.New())
	requireStatus(t, err, http.StatusNotFound)

	requests, err := anonymous.listMergeRequests(x)
	require.NoError(t, err)
	assert.Len(t, requests, 1)
}
