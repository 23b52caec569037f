package core_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"script_ink/script_bazaar/core"
	"script_ink/script_bazaar/lineage"
	"script_ink/script_bazaar/schema"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDb(t *testing.T) *gorm.DB {
	return openDb(t, "")
}

// openDb appends params to the sqlite dsn, e.g. to serialize writers.
func openDb(t *testing.T, params string) *gorm.DB {
	dsn := filepath.Join(t.TempDir(), "core.db")
	if params != "" {
		dsn += "?" + params
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(schema.AllModels()...))
	return db
}

type memoryCache struct {
	mu          sync.Mutex
	values      map[uuid.UUID]lineage.Lineage
	invalidated []uuid.UUID
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[uuid.UUID]lineage.Lineage{}}
}

func (c *memoryCache) Get(ctx context.Context, rootId uuid.UUID) (*lineage.Lineage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value, ok := c.values[rootId]; ok {
		return &value, nil
	}
	return nil, nil
}

func (c *memoryCache) Set(ctx context.Context, value lineage.Lineage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[value.RootId] = value
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, rootId uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, rootId)
	c.invalidated = append(c.invalidated, rootId)
	return nil
}

type testEnv struct {
	db      *gorm.DB
	service *core.Service
	cache   *memoryCache
}

func setupTestEnv(t *testing.T) *testEnv {
	return newTestEnv(setupDb(t))
}

func newTestEnv(db *gorm.DB) *testEnv {
	c := newMemoryCache()
	return &testEnv{db: db, service: core.NewService(db, c), cache: c}
}

func (env *testEnv) newUser(t *testing.T, username string) core.Actor {
	user := schema.User{Id: uuid.New(), Username: username, Email: username + "@mail.com", DisplayName: username}
	require.NoError(t, env.db.Create(&user).Error)
	return core.ActorFromUser(user)
}

func (env *testEnv) newScript(t *testing.T, author core.Actor, title string, public, forkable bool, tags ...string) schema.Script {
	script, err := env.service.CreateScript(context.Background(), author, core.ScriptParams{
		Title: title, IsPublic: public, AllowFork: forkable, Tags: tags,
	})
	require.NoError(t, err)
	return script
}

func mentionDoc(ids ...string) string {
	children := []interface{}{map[string]interface{}{"type": "text", "text": "see "}}
	for _, id := range ids {
		children = append(children, map[string]interface{}{"type": "mention", "attrs": map[string]interface{}{"id": id, "label": "ref"}})
	}
	doc := map[string]interface{}{
		"type":    "doc",
		"content": []interface{}{map[string]interface{}{"type": "paragraph", "content": children}},
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

func requireKind(t *testing.T, err error, kind core.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, core.KindOf(err), "unexpected error: %v", err)
}
