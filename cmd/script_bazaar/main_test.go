package main

import (
	"path/filepath"
	"testing"

	"script_ink/cmd/migration/versions"
	"script_ink/script_bazaar/schema"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DB_URI", "sqlite://"+filepath.Join(t.TempDir(), "env.db"))
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_EMAIL", "admin@mail.com")
	t.Setenv("ADMIN_PASSWORD", "password")
}

func TestLoadEnvDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := loadEnv()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "basic", cfg.IdentityProvider)

	t.Setenv("PORT", "9123")
	cfg, err = loadEnv()
	require.NoError(t, err)
	assert.Equal(t, 9123, cfg.Port)
}

func TestLoadEnvIdentityProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "")

	_, err := loadEnv()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("IDENTITY_PROVIDER", "keycloak")
	_, err = loadEnv()
	assert.ErrorContains(t, err, "KEYCLOAK_SERVER_URL")

	t.Setenv("KEYCLOAK_SERVER_URL", "http://localhost:8180")
	t.Setenv("KEYCLOAK_ADMIN_USERNAME", "kc-admin")
	t.Setenv("KEYCLOAK_ADMIN_PASSWORD", "kc-password")
	cfg, err := loadEnv()
	require.NoError(t, err)
	assert.Equal(t, "script-ink", cfg.KeycloakRealm)

	t.Setenv("IDENTITY_PROVIDER", "ldap")
	_, err = loadEnv()
	assert.Error(t, err)
}

func TestInitDbConvertsLegacyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, gormigrate.New(legacy, gormigrate.DefaultOptions, versions.Migrations()).MigrateTo("1"))

	userId, scriptId := uuid.New(), uuid.New()
	require.NoError(t, legacy.Exec("INSERT INTO users (id, username, email, is_admin) VALUES (?, ?, ?, ?)", userId.String(), "alice", "alice@mail.com", false).Error)
	require.NoError(t, legacy.Exec("INSERT INTO scripts (id, title, author_id, is_public, allow_fork) VALUES (?, ?, ?, ?, ?)", scriptId.String(), "legacy", userId.String(), true, false).Error)
	require.NoError(t, legacy.Exec("INSERT INTO legacy_sections (script_id, section, content) VALUES (?, ?, ?)", scriptId.String(), "truth", "the butler did it").Error)

	sqlDb, err := legacy.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDb.Close())

	db, err := initDb("sqlite://" + path)
	require.NoError(t, err)

	script, err := schema.GetScript(scriptId, db, false)
	require.NoError(t, err)
	assert.Equal(t, scriptId, script.RootId)

	rows, err := schema.ListEntities(scriptId, db)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	// starting again on the converted database changes nothing
	_, err = initDb("sqlite://" + path)
	require.NoError(t, err)
}
