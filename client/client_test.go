package client_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"script_ink/client"
	"script_ink/script_bazaar/assist"
	"script_ink/script_bazaar/auth"
	"script_ink/script_bazaar/core"
	"script_ink/script_bazaar/schema"
	"script_ink/script_bazaar/services"
	"script_ink/script_bazaar/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func startServer(t *testing.T) string {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "client.db")), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(schema.AllModels()...))

	store, err := storage.NewSharedDisk(filepath.Join(t.TempDir(), "storage"))
	require.NoError(t, err)

	userAuth, err := auth.NewBasicIdentityProvider(db, auth.NewAuditLogger(new(bytes.Buffer)), auth.BasicProviderArgs{
		Secret:        []byte("client-test-secret"),
		AdminUsername: "admin",
		AdminEmail:    "admin@mail.com",
		AdminPassword: "admin_password",
	})
	require.NoError(t, err)

	bazaar := services.NewScriptBazaar(db, core.NewService(db, nil), userAuth, storage.NewCovers(store), assist.Disabled{}, services.Options{})

	r := chi.NewRouter()
	r.Mount("/api", bazaar.Routes())

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return server.URL + "/api"
}

func newUser(t *testing.T, baseUrl, name string) *client.ScriptInkClient {
	c := client.New(baseUrl)
	require.NoError(t, c.Signup(name, name+"@mail.com", name+"_password", name))
	require.NoError(t, c.Login(name+"@mail.com", name+"_password"))
	return c
}

func statusOf(err error) int {
	var serr *client.StatusError
	if errors.As(err, &serr) {
		return serr.StatusCode
	}
	return 0
}

func TestClientWorkflow(t *testing.T) {
	baseUrl := startServer(t)

	alice := newUser(t, baseUrl, "alice")
	bob := newUser(t, baseUrl, "bob")

	info, err := alice.UserInfo()
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Username)
	assert.Equal(t, alice.UserId(), info.Id.String())

	x, err := alice.CreateScript(client.NewScript{Title: "X", IsPublic: true, AllowFork: true, Tags: []string{"noir"}})
	require.NoError(t, err)

	scripts, err := client.New(baseUrl).ListScripts(client.ListOptions{Tag: "noir"})
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, x, scripts[0].Id)

	tags, err := bob.ListTags()
	require.NoError(t, err)
	assert.Equal(t, []core.TagCount{{Name: "noir", Count: 1}}, tags)

	roleId := uuid.New()
	role, err := alice.UpsertEntity(x, roleId, client.EntityUpdate{Kind: "role", Title: "Butler", Content: "quiet man"})
	require.NoError(t, err)
	assert.Equal(t, roleId, role.Id)

	lockId, err := alice.LockTruth(x, "the butler did it")
	require.NoError(t, err)
	lock, err := alice.GetTruthLock(x)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, lockId, lock.Id)

	xPrime, err := bob.Fork(x)
	require.NoError(t, err)

	forkInfo, err := bob.GetScript(xPrime)
	require.NoError(t, err)
	assert.Equal(t, "X (adaptation)", forkInfo.Title)
	assert.False(t, forkInfo.IsPublic)

	mine, err := bob.ListScripts(client.ListOptions{Mine: true})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	entities, err := bob.ListEntities(xPrime)
	require.NoError(t, err)
	assert.Len(t, entities, 4)
	for _, e := range entities {
		assert.NotEqual(t, roleId, e.Id)
	}

	tree, err := client.New(baseUrl).Lineage(x)
	require.NoError(t, err)
	assert.Equal(t, x, tree.RootId)

	requestId, err := bob.CreateMergeRequest(x, xPrime, "new ending")
	require.NoError(t, err)

	requests, err := alice.ListMergeRequests(x)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "bob", requests[0].AuthorName)

	require.NoError(t, alice.SetMergeRequestStatus(requestId, schema.MergeRejected))
	request, err := bob.GetMergeRequest(requestId)
	require.NoError(t, err)
	assert.Equal(t, schema.MergeRejected, request.Status)

	err = bob.SetMergeRequestStatus(requestId, schema.MergeAccepted)
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	image := []byte("\x89PNG\r\n\x1a\ncover")
	require.NoError(t, alice.UploadCover(x, "image/png", image))
	data, contentType, err := bob.DownloadCover(x)
	require.NoError(t, err)
	assert.Equal(t, image, data)
	assert.Equal(t, "image/png", contentType)

	_, err = alice.Assist(x, "more suspects", nil)
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(err))

	title := "X, revised"
	require.NoError(t, alice.UpdateScript(x, client.ScriptUpdate{Title: &title}))
	updated, err := bob.GetScript(x)
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)

	err = alice.DeleteScript(x)
	assert.Equal(t, http.StatusConflict, statusOf(err))

	require.NoError(t, bob.DeleteScript(xPrime))
	_, err = bob.GetScript(xPrime)
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestClientErrors(t *testing.T) {
	baseUrl := startServer(t)

	anonymous := client.New(baseUrl)
	_, err := anonymous.CreateScript(client.NewScript{Title: "X"})
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	err = anonymous.Login("nobody@mail.com", "password")
	require.Error(t, err)
	assert.NotZero(t, statusOf(err))

	unreachable := client.New("http://127.0.0.1:1/api")
	_, err = unreachable.ListScripts(client.ListOptions{})
	require.Error(t, err)
	assert.Zero(t, statusOf(err))
}
