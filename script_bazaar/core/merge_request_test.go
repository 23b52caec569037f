package core_test

import (
	"context"
	"errors"
	"script_ink/script_bazaar/core"
	"script_ink/script_bazaar/schema"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mergeFixture struct {
	env                      *testEnv
	alice, bob, carol        core.Actor
	root, bobFork, unrelated schema.Script
}

func setupMergeFixture(t *testing.T) mergeFixture {
	return newMergeFixture(t, setupTestEnv(t))
}

func newMergeFixture(t *testing.T, env *testEnv) mergeFixture {
	ctx := context.Background()

	alice, bob, carol := env.newUser(t, "alice"), env.newUser(t, "bob"), env.newUser(t, "carol")

	root := env.newScript(t, alice, "X", true, true)
	fork, err := env.service.Fork(ctx, bob, root.Id)
	require.NoError(t, err)
	bobFork, err := schema.GetScript(fork.ScriptId, env.db, false)
	require.NoError(t, err)

	unrelated := env.newScript(t, bob, "Y", true, true)

	return mergeFixture{env: env, alice: alice, bob: bob, carol: carol, root: root, bobFork: bobFork, unrelated: unrelated}
}

func TestMergeRequestScenario(t *testing.T) {
	f := setupMergeFixture(t)
	ctx := context.Background()
	svc := f.env.service

	requestId, err := svc.CreateMergeRequest(ctx, f.bob, f.root.Id, f.bobFork.Id, "added ending")
	require.NoError(t, err)

	request, err := schema.GetMergeRequest(requestId, f.env.db)
	require.NoError(t, err)
	assert.Equal(t, schema.MergePending, request.Status)
	assert.Equal(t, f.bob.Id, request.AuthorId)

	require.NoError(t, svc.SetMergeRequestStatus(ctx, f.alice, requestId, schema.MergeAccepted))

	request, err = schema.GetMergeRequest(requestId, f.env.db)
	require.NoError(t, err)
	assert.Equal(t, schema.MergeAccepted, request.Status)

	// no content is merged into the target
	rootEntities, err := schema.ListEntities(f.root.Id, f.env.db)
	require.NoError(t, err)
	for _, e := range rootEntities {
		assert.Equal(t, f.root.Id, e.ScriptId)
	}

	second, err := svc.CreateMergeRequest(ctx, f.bob, f.root.Id, f.bobFork.Id, "another pass")
	require.NoError(t, err)
	assert.NotEqual(t, requestId, second)

	var rows int64
	require.NoError(t, f.env.db.Model(&schema.MergeRequest{}).Count(&rows).Error)
	assert.Equal(t, int64(2), rows)
}

func TestMergeRequestSinglePending(t *testing.T) {
	f := setupMergeFixture(t)
	ctx := context.Background()
	svc := f.env.service

	first, err := svc.CreateMergeRequest(ctx, f.bob, f.root.Id, f.bobFork.Id, "v1")
	require.NoError(t, err)

	_, err = svc.CreateMergeRequest(ctx, f.bob, f.root.Id, f.bobFork.Id, "v2")
	requireKind(t, err, core.Conflict)

	require.NoError(t, svc.SetMergeRequestStatus(ctx, f.alice, first, schema.MergeRejected))

	second, err := svc.CreateMergeRequest(ctx, f.bob, f.root.Id, f.bobFork.Id, "v2")
	require.NoError(t, err)

	// reopening the first while the second is pending would break the single pending rule
	err = svc.SetMergeRequestStatus(ctx, f.alice, first, schema.MergePending)
	requireKind(t, err, core.Conflict)

	require.NoError(t, svc.SetMergeRequestStatus(ctx, f.alice, second, schema.MergeAccepted))
	require.NoError(t, svc.SetMergeRequestStatus(ctx, f.alice, first, schema.MergePending))

	request, err := schema.GetMergeRequest(first, f.env.db)
	require.NoError(t, err)
	assert.Equal(t, schema.MergePending, request.Status)
}

func TestMergeRequestCreateChecks(t *testing.T) {
	f := setupMergeFixture(t)
	ctx := context.Background()
	svc := f.env.service

	_, err := svc.CreateMergeRequest(ctx, core.Actor{}, f.root.Id, f.bobFork.Id, "x")
	requireKind(t, err, core.Unauthenticated)

	_, err = svc.CreateMergeRequest(ctx, f.bob, f.root.Id, f.bobFork.Id, "   ")
	requireKind(t, err, core.InvalidArgument)

	_, err = svc.CreateMergeRequest(ctx, f.bob, f.root.Id, uuid.Nil, "x")
	requireKind(t, err, core.InvalidArgument)

	_, err = svc.CreateMergeRequest(ctx, f.bob, uuid.New(), f.bobFork.Id, "x")
	requireKind(t, err, core.NotFound)

	_, err = svc.CreateMergeRequest(ctx, f.bob, f.root.Id, uuid.New(), "x")
	requireKind(t, err, core.NotFound)

	// only the fork's author may propose it
	_, err = svc.CreateMergeRequest(ctx, f.carol, f.root.Id, f.bobFork.Id, "x")
	requireKind(t, err, core.Forbidden)
	_, err = svc.CreateMergeRequest(ctx, f.alice, f.root.Id, f.bobFork.Id, "x")
	requireKind(t, err, core.Forbidden)

	_, err = svc.CreateMergeRequest(ctx, f.bob, f.bobFork.Id, f.bobFork.Id, "x")
	requireKind(t, err, core.InvalidArgument)

	// different lineages, in both directions
	_, err = svc.CreateMergeRequest(ctx, f.bob, f.unrelated.Id, f.bobFork.Id, "x")
	requireKind(t, err, core.InvalidArgument)
	_, err = svc.CreateMergeRequest(ctx, f.bob, f.bobFork.Id, f.unrelated.Id, "x")
	requireKind(t, err, core.InvalidArgument)

	var rows int64
	require.NoError(t, f.env.db.Model(&schema.MergeRequest{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestMergeRequestBetweenSiblings(t *testing.T) {
	f := setupMergeFixture(t)
	ctx := context.Background()
	svc := f.env.service

	sibling, err := svc.Fork(ctx, f.carol, f.root.Id)
	require.NoError(t, err)

	_, err = svc.CreateMergeRequest(ctx, f.bob, sibling.ScriptId, f.bobFork.Id, "try this")
	require.NoError(t, err)

	// the owner of the root can still open its own request into a fork
	_, err = svc.CreateMergeRequest(ctx, f.alice, f.bobFork.Id, f.root.Id, "upstream fix")
	require.NoError(t, err)
}

func TestMergeRequestStatusAuthorization(t *testing.T) {
	f := setupMergeFixture(t)
	ctx := context.Background()
	svc := f.env.service

	requestId, err := svc.CreateMergeRequest(ctx, f.bob, f.root.Id, f.bobFork.Id, "ending")
	require.NoError(t, err)

	for _, actor := range []core.Actor{f.bob, f.carol} {
		for _, status := range []string{schema.MergeAccepted, schema.MergeRejected, schema.MergePending} {
			err := svc.SetMergeRequestStatus(ctx, actor, requestId, status)
			requireKind(t, err, core.Forbidden)
		}
	}

	err = svc.SetMergeRequestStatus(ctx, f.alice, requestId, "merged")
	requireKind(t, err, core.InvalidArgument)

	err = svc.SetMergeRequestStatus(ctx, f.alice, uuid.New(), schema.MergeAccepted)
	requireKind(t, err, core.NotFound)

	err = svc.SetMergeRequestStatus(ctx, core.Actor{}, requestId, schema.MergeAccepted)
	requireKind(t, err, core.Unauthenticated)

	require.NoError(t, svc.SetMergeRequestStatus(ctx, f.alice, requestId, schema.MergeRejected))
	require.NoError(t, svc.SetMergeRequestStatus(ctx, f.alice, requestId, schema.MergeAccepted))
}

func TestListMergeRequests(t *testing.T) {
	f := setupMergeFixture(t)
	ctx := context.Background()
	svc := f.env.service

	requestId, err := svc.CreateMergeRequest(ctx, f.bob, f.root.Id, f.bobFork.Id, "ending")
	require.NoError(t, err)

	incoming, err := svc.ListMergeRequests(ctx, f.carol, f.root.Id)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, requestId, incoming[0].Id)
	assert.Equal(t, core.Incoming, incoming[0].Direction)
	assert.Equal(t, "X"+core.ForkTitleSuffix, incoming[0].SourceTitle)
	assert.Equal(t, "X", incoming[0].TargetTitle)
	assert.Equal(t, "bob", incoming[0].AuthorName)

	outgoing, err := svc.ListMergeRequests(ctx, f.bob, f.bobFork.Id)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, core.Outgoing, outgoing[0].Direction)

	// the fork is private
	_, err = svc.ListMergeRequests(ctx, f.carol, f.bobFork.Id)
	requireKind(t, err, core.Forbidden)

	_, err = svc.ListMergeRequests(ctx, f.carol, uuid.New())
	requireKind(t, err, core.NotFound)

	info, err := svc.GetMergeRequest(ctx, f.alice, requestId)
	require.NoError(t, err)
	assert.Equal(t, "ending", info.Summary)

	_, err = svc.GetMergeRequest(ctx, f.carol, requestId)
	requireKind(t, err, core.Forbidden)
}

func TestPendingPairIndex(t *testing.T) {
	f := setupMergeFixture(t)

	insert := func(status string) error {
		return f.env.db.Create(&schema.MergeRequest{
			Id:             uuid.New(),
			SourceScriptId: f.bobFork.Id,
			TargetScriptId: f.root.Id,
			AuthorId:       f.bob.Id,
			Summary:        "direct",
			Status:         status,
		}).Error
	}

	require.NoError(t, insert(schema.MergePending))
	assert.ErrorIs(t, insert(schema.MergePending), gorm.ErrDuplicatedKey)

	// settled requests for the same pair are not constrained
	require.NoError(t, insert(schema.MergeAccepted))
	require.NoError(t, insert(schema.MergeAccepted))
	require.NoError(t, insert(schema.MergeRejected))

	// the reverse direction is a different pair
	reverse := schema.MergeRequest{
		Id: uuid.New(), SourceScriptId: f.root.Id, TargetScriptId: f.bobFork.Id,
		AuthorId: f.alice.Id, Summary: "direct", Status: schema.MergePending,
	}
	require.NoError(t, f.env.db.Create(&reverse).Error)

	_, err := f.env.service.CreateMergeRequest(context.Background(), f.bob, f.root.Id, f.bobFork.Id, "v2")
	requireKind(t, err, core.Conflict)
}

// insertCompetingRequest registers a callback that adds a pending request for
// the pair inside the transaction of the next write to merge_requests, as if
// another writer committed between the pending check and the write.
func insertCompetingRequest(t *testing.T, db *gorm.DB, f mergeFixture, operation string) {
	fired := false
	hook := func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "merge_requests" {
			return
		}
		fired = true
		err := tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO merge_requests (id, source_script_id, target_script_id, author_id, summary, status) VALUES (?, ?, ?, ?, ?, ?)",
			uuid.New(), f.bobFork.Id, f.root.Id, f.bob.Id, "competing", schema.MergePending,
		).Error
		require.NoError(t, err)
	}

	var err error
	switch operation {
	case "create":
		err = db.Callback().Create().Before("gorm:create").Register("test:competing_request", hook)
	case "update":
		err = db.Callback().Update().Before("gorm:update").Register("test:competing_request", hook)
	}
	require.NoError(t, err)
}

func TestCreateMergeRequestLosesRace(t *testing.T) {
	f := setupMergeFixture(t)
	insertCompetingRequest(t, f.env.db, f, "create")

	_, err := f.env.service.CreateMergeRequest(context.Background(), f.bob, f.root.Id, f.bobFork.Id, "v1")
	requireKind(t, err, core.Conflict)

	// the transaction rolled back with the competing row
	var rows int64
	require.NoError(t, f.env.db.Model(&schema.MergeRequest{}).Count(&rows).Error)
	assert.Equal(t, int64(0), rows)
}

func TestReopenMergeRequestLosesRace(t *testing.T) {
	f := setupMergeFixture(t)
	ctx := context.Background()
	svc := f.env.service

	requestId, err := svc.CreateMergeRequest(ctx, f.bob, f.root.Id, f.bobFork.Id, "v1")
	require.NoError(t, err)
	require.NoError(t, svc.SetMergeRequestStatus(ctx, f.alice, requestId, schema.MergeRejected))

	insertCompetingRequest(t, f.env.db, f, "update")

	err = svc.SetMergeRequestStatus(ctx, f.alice, requestId, schema.MergePending)
	requireKind(t, err, core.Conflict)

	request, err := schema.GetMergeRequest(requestId, f.env.db)
	require.NoError(t, err)
	assert.Equal(t, schema.MergeRejected, request.Status)
}

func TestConcurrentMergeRequests(t *testing.T) {
	// immediate transactions queue writers on the busy timeout instead of
	// failing them with a lock error
	f := newMergeFixture(t, newTestEnv(openDb(t, "_txlock=immediate&_busy_timeout=10000")))

	const writers = 8
	errs := make([]error, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.env.service.CreateMergeRequest(context.Background(), f.bob, f.root.Id, f.bobFork.Id, "same change")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var coded *core.Error
		require.True(t, errors.As(err, &coded), "unexpected error: %v", err)
		assert.Equal(t, core.Conflict, core.KindOf(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	var pending int64
	require.NoError(t, f.env.db.Model(&schema.MergeRequest{}).Where("status = ?", schema.MergePending).Count(&pending).Error)
	assert.Equal(t, int64(1), pending)
}
