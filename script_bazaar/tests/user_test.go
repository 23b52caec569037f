package tests

import (
	"net/http"
	"testing"

	"script_ink/script_bazaar/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignupAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	alice, err := env.newUser("alice")
	require.NoError(t, err)
	assert.NotEmpty(t, alice.authToken)

	var info services.UserInfo
	require.NoError(t, alice.Get("/user/info").Do(&info))
	assert.Equal(t, "alice", info.Username)
	assert.Equal(t, "alice@mail.com", info.Email)
	assert.False(t, info.IsAdmin)

	c := env.newClient()
	_, err = c.signup("alice", "other@mail.com", "pwd")
	requireStatus(t, err, http.StatusConflict)
	_, err = c.signup("someone", "alice@mail.com", "pwd")
	requireStatus(t, err, http.StatusConflict)
	_, err = c.signup("", "empty@mail.com", "pwd")
	requireStatus(t, err, http.StatusBadRequest)

	err = c.login(loginInfo{Email: "alice@mail.com", Password: "wrong"})
	requireStatus(t, err, http.StatusUnauthorized)
	err = c.Get("/user/login").Do(nil)
	requireStatus(t, err, http.StatusUnauthorized)

	anon := env.newClient()
	err = anon.Get("/user/info").Do(nil)
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestLoginSetsCookie(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.newUser("alice")
	require.NoError(t, err)

	c := env.newClient()
	w, err := c.Get("/user/login").Login("alice@mail.com", "alice_password").do(nil)
	require.NoError(t, err)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "jwt", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	var info services.UserInfo
	err = c.Get("/user/info").Header("Cookie", "jwt="+cookies[0].Value).Do(&info)
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Username)
}

func TestListUsersAdminOnly(t *testing.T) {
	env := setupTestEnv(t)

	alice, err := env.newUser("alice")
	require.NoError(t, err)

	err = alice.Get("/user/list").Do(nil)
	requireStatus(t, err, http.StatusForbidden)

	admin, err := env.adminClient()
	require.NoError(t, err)

	var users []services.UserInfo
	require.NoError(t, admin.Get("/user/list").Do(&users))
	require.Len(t, users, 2)
	assert.Equal(t, adminUsername, users[0].Username)
	assert.True(t, users[0].IsAdmin)
	assert.Equal(t, "alice", users[1].Username)
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)

	var res map[string]bool
	anon := env.newClient()
	require.NoError(t, anon.Get("/health").Do(&res))
	assert.True(t, res["ok"])
}
