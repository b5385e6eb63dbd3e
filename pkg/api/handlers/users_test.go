package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fio-analyzer/server/pkg/api/middleware"
	"github.com/fio-analyzer/server/pkg/auth"
)

// setupUsersEnv mounts the account routes the way the server does:
// admin-gated except /me.
func setupUsersEnv(t *testing.T) (*testEnv, *auth.Service) {
	t.Helper()
	env := setupTestEnv(t)

	dir := t.TempDir()
	adminPath := writeUserFile(t, dir, ".htpasswd", "root:"+bcryptHash(t, "secret")+"\n")
	uploaderPath := writeUserFile(t, dir, ".htuploaders", "ci:"+bcryptHash(t, "pipeline")+"\n")
	users := auth.NewService(adminPath, uploaderPath)
	t.Cleanup(func() { _ = users.Close() })

	authn := middleware.NewAuthenticator(users, "test-secret", time.Hour)
	handler := NewUserHandlers(users)
	group := env.App.Group("/api/users")
	group.Get("/", authn.RequireAdmin(), handler.List)
	group.Get("/me", authn.RequireAuth(), handler.Me)
	group.Post("/", authn.RequireAdmin(), handler.Create)
	group.Get("/:username", authn.RequireAdmin(), handler.Get)
	group.Put("/:username", authn.RequireAdmin(), handler.Update)
	group.Delete("/:username", authn.RequireAdmin(), handler.Delete)
	return env, users
}

func userRequestAs(t *testing.T, method, path, username, password string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", basicAuth(username, password))
	return req
}

func TestListUsersEndpoint(t *testing.T) {
	env, _ := setupUsersEnv(t)

	resp, err := env.App.Test(userRequestAs(t, "GET", "/api/users", "root", "secret", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var accounts []auth.Account
	decodeBody(t, resp, &accounts)
	assert.Equal(t, []auth.Account{
		{Username: "ci", Role: auth.RoleUploader},
		{Username: "root", Role: auth.RoleAdmin},
	}, accounts)

	// uploaders cannot manage accounts
	resp, err = env.App.Test(userRequestAs(t, "GET", "/api/users", "ci", "pipeline", nil))
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
}

func TestCurrentUserEndpoint(t *testing.T) {
	env, _ := setupUsersEnv(t)

	resp, err := env.App.Test(userRequestAs(t, "GET", "/api/users/me", "ci", "pipeline", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var me struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	decodeBody(t, resp, &me)
	assert.Equal(t, "ci", me.Username)
	assert.Equal(t, "uploader", me.Role)
}

func TestCreateUserEndpoint(t *testing.T) {
	env, users := setupUsersEnv(t)

	resp, err := env.App.Test(userRequestAs(t, "POST", "/api/users", "root", "secret",
		map[string]string{"username": "alice", "password": "wonderland", "role": "uploader"}))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var account auth.Account
	decodeBody(t, resp, &account)
	assert.Equal(t, auth.Account{Username: "alice", Role: auth.RoleUploader}, account)

	role, ok := users.Authenticate("alice", "wonderland")
	require.True(t, ok)
	assert.Equal(t, auth.RoleUploader, role)

	cases := []struct {
		name string
		body map[string]string
	}{
		{"duplicate", map[string]string{"username": "alice", "password": "wonderland", "role": "uploader"}},
		{"bad username", map[string]string{"username": "no spaces!", "password": "wonderland", "role": "uploader"}},
		{"short password", map[string]string{"username": "bob", "password": "abc", "role": "uploader"}},
		{"unknown role", map[string]string{"username": "bob", "password": "builder", "role": "viewer"}},
	}
	for _, tc := range cases {
		resp, err := env.App.Test(userRequestAs(t, "POST", "/api/users", "root", "secret", tc.body))
		require.NoError(t, err, tc.name)
		assert.Equal(t, 400, resp.StatusCode, tc.name)
	}

	resp, err = env.App.Test(userRequestAs(t, "POST", "/api/users", "ci", "pipeline",
		map[string]string{"username": "bob", "password": "builder", "role": "uploader"}))
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
}

func TestGetUserEndpoint(t *testing.T) {
	env, _ := setupUsersEnv(t)

	resp, err := env.App.Test(userRequestAs(t, "GET", "/api/users/ci", "root", "secret", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var account auth.Account
	decodeBody(t, resp, &account)
	assert.Equal(t, auth.Account{Username: "ci", Role: auth.RoleUploader}, account)

	resp, err = env.App.Test(userRequestAs(t, "GET", "/api/users/ghost", "root", "secret", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestUpdateUserEndpoint(t *testing.T) {
	env, users := setupUsersEnv(t)

	// rotate a password
	resp, err := env.App.Test(userRequestAs(t, "PUT", "/api/users/ci", "root", "secret",
		map[string]string{"password": "rotated"}))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	_, ok := users.Authenticate("ci", "pipeline")
	assert.False(t, ok)
	role, ok := users.Authenticate("ci", "rotated")
	require.True(t, ok)
	assert.Equal(t, auth.RoleUploader, role)

	// promote to admin
	resp, err = env.App.Test(userRequestAs(t, "PUT", "/api/users/ci", "root", "secret",
		map[string]string{"role": "admin"}))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var account auth.Account
	decodeBody(t, resp, &account)
	assert.Equal(t, auth.Account{Username: "ci", Role: auth.RoleAdmin}, account)

	role, ok = users.Authenticate("ci", "rotated")
	require.True(t, ok)
	assert.Equal(t, auth.RoleAdmin, role)

	// admins cannot demote themselves
	resp, err = env.App.Test(userRequestAs(t, "PUT", "/api/users/root", "root", "secret",
		map[string]string{"role": "uploader"}))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = env.App.Test(userRequestAs(t, "PUT", "/api/users/ghost", "root", "secret",
		map[string]string{"password": "whatever"}))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestDeleteUserEndpoint(t *testing.T) {
	env, users := setupUsersEnv(t)

	resp, err := env.App.Test(userRequestAs(t, "DELETE", "/api/users/ci", "root", "secret", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var result struct {
		Message string `json:"message"`
	}
	decodeBody(t, resp, &result)
	assert.Equal(t, "User 'ci' deleted successfully", result.Message)
	_, ok := users.Authenticate("ci", "pipeline")
	assert.False(t, ok)

	// self-deletion is refused before any file change
	resp, err = env.App.Test(userRequestAs(t, "DELETE", "/api/users/root", "root", "secret", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = env.App.Test(userRequestAs(t, "DELETE", "/api/users/ghost", "root", "secret", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}
