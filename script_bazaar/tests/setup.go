package tests

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"script_ink/script_bazaar/assist"
	"script_ink/script_bazaar/auth"
	"script_ink/script_bazaar/core"
	"script_ink/script_bazaar/schema"
	"script_ink/script_bazaar/services"
	"script_ink/script_bazaar/storage"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	scriptBazaar services.ScriptBazaar
	api          chi.Router
	db           *gorm.DB
	storage      storage.Storage
	assist       *assistStub
	audit        *bytes.Buffer
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

// assistStub records requests and answers with a fixed change set.
type assistStub struct {
	mu       sync.Mutex
	requests []assist.Request
	fail     bool
}

func (s *assistStub) Name() string {
	return "stub"
}

func (s *assistStub) Suggest(ctx context.Context, req assist.Request) (assist.ChangeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.fail {
		return assist.ChangeSet{}, errors.New("upstream unavailable")
	}

	suggestions := make([]assist.Suggestion, 0, len(req.Context.Entities))
	for _, entity := range req.Context.Entities {
		id := entity.Id
		suggestions = append(suggestions, assist.Suggestion{EntityId: &id, Kind: entity.Kind, Title: entity.Title, Text: req.Instruction})
	}
	return assist.ChangeSet{Provider: s.Name(), Suggestions: suggestions}, nil
}

func setupTestEnvWithProvider(t *testing.T, provider assist.Provider) *testEnv {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "script_bazaar.db")), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.AutoMigrate(schema.AllModels()...); err != nil {
		t.Fatal(err)
	}

	store, err := storage.NewSharedDisk(filepath.Join(t.TempDir(), "storage"))
	if err != nil {
		t.Fatal(err)
	}

	audit := new(bytes.Buffer)
	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(audit),
		auth.BasicProviderArgs{
			Secret:        []byte("290zcv02ai249"),
			AdminUsername: adminUsername,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	scriptBazaar := services.NewScriptBazaar(
		db, core.NewService(db, nil), userAuth, storage.NewCovers(store), provider,
		services.Options{AssistRateLimit: 100},
	)

	env := &testEnv{scriptBazaar: scriptBazaar, api: scriptBazaar.Routes(), db: db, storage: store, audit: audit}
	if stub, ok := provider.(*assistStub); ok {
		env.assist = stub
	}
	return env
}

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWithProvider(t, &assistStub{})
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) newUser(username string) (client, error) {
	c := t.newClient()
	login, err := c.signup(username, username+"@mail.com", username+"_password")
	if err != nil {
		return client{}, err
	}

	err = c.login(login)
	if err != nil {
		return client{}, err
	}

	return c, nil
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}
