package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"tidepool/internal/config"
	"tidepool/internal/database"
	"tidepool/internal/models"
	"tidepool/internal/reset"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// One server for the whole binary: the Prometheus middleware registers its
// collectors in the default registry, so constructing a second server panics.
var (
	testApp *fiber.App
	testDB  *gorm.DB
	testRdb *redis.Client
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")

	mr, err := miniredis.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "miniredis:", err)
		os.Exit(1)
	}
	testRdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	testDB, err = gorm.Open(sqlite.Open("file:serverit?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err == nil {
		err = database.Migrate(testDB)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "sqlite:", err)
		os.Exit(1)
	}

	cfg := &config.Config{
		Port:           "0",
		Env:            "test",
		AllowedOrigins: "http://localhost:3000",
		MailFrom:       "no-reply@tidepool.local",
		ResetURLBase:   "http://localhost:3000/change-password",
	}
	srv, err := NewServerWithDeps(cfg, testDB, testRdb)
	if err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}

	testApp = fiber.New()
	srv.SetupMiddleware(testApp)
	srv.SetupRoutes(testApp)

	code := m.Run()
	mr.Close()
	os.Exit(code)
}

// doJSON performs one request against the shared app and decodes the JSON
// response body into a map.
func doJSON(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := testApp.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

func registerUser(t *testing.T, username, email string) string {
	t.Helper()
	status, body := doJSON(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"username": username,
		"email":    email,
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, status, "register %s: %v", username, body)
	return body["token"].(string)
}

func TestHealth(t *testing.T) {
	status, body := doJSON(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestRegisterLoginLogout(t *testing.T) {
	token := registerUser(t, "rll_alice", "rll_alice@example.com")

	// Registration logs the caller straight in.
	status, body := doJSON(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "rll_alice", body["username"])

	// Duplicate email is a conflict naming the colliding field.
	status, body = doJSON(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"username": "rll_alice2",
		"email":    "rll_alice@example.com",
		"password": "hunter2hunter2",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, models.CodeDuplicateIdentity, body["code"])
	assert.Equal(t, "email", body["field"])

	// Logout, then the session no longer resolves.
	status, _ = doJSON(t, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = doJSON(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// Logging out a dead session is still a success.
	status, _ = doJSON(t, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, status)

	// Fresh logins by username and by email address.
	status, _ = doJSON(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"username_or_email": "rll_alice",
		"password":          "hunter2hunter2",
	})
	assert.Equal(t, http.StatusOK, status)
	status, _ = doJSON(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"username_or_email": "rll_alice@example.com",
		"password":          "hunter2hunter2",
	})
	assert.Equal(t, http.StatusOK, status)

	status, body = doJSON(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"username_or_email": "rll_alice",
		"password":          "wrong password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, models.CodeInvalidCredentials, body["code"])
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"short username", "ab", "v1@example.com", "hunter2hunter2"},
		{"username with @", "not@allowed", "v2@example.com", "hunter2hunter2"},
		{"bad email", "validname", "not-an-email", "hunter2hunter2"},
		{"short password", "validname", "v3@example.com", "ab1"},
		{"digitless password", "validname", "v4@example.com", "onlyletters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
				"username": tt.username,
				"email":    tt.email,
				"password": tt.password,
			})
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, models.CodeInvalidArgument, body["code"])
		})
	}
}

func TestPostLifecycle(t *testing.T) {
	ownerToken := registerUser(t, "pl_owner", "pl_owner@example.com")
	otherToken := registerUser(t, "pl_other", "pl_other@example.com")

	// Anonymous creation is rejected.
	status, _ := doJSON(t, http.MethodPost, "/api/posts/", "", fiber.Map{
		"title": "nope", "body": "nope",
	})
	require.Equal(t, http.StatusUnauthorized, status)

	status, created := doJSON(t, http.MethodPost, "/api/posts/", ownerToken, fiber.Map{
		"title": "First tide", "body": "the water rises",
	})
	require.Equal(t, http.StatusCreated, status)
	postID := fmt.Sprintf("%v", int(created["id"].(float64)))
	assert.Equal(t, "pl_owner", created["user"].(map[string]any)["username"])

	// Reading is public.
	status, fetched := doJSON(t, http.MethodGet, "/api/posts/"+postID, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "First tide", fetched["title"])

	// Only the owner may mutate.
	status, body := doJSON(t, http.MethodPut, "/api/posts/"+postID, otherToken, fiber.Map{
		"title": "hijacked", "body": "hijacked",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, models.CodeForbidden, body["code"])
	status, _ = doJSON(t, http.MethodDelete, "/api/posts/"+postID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, updated := doJSON(t, http.MethodPut, "/api/posts/"+postID, ownerToken, fiber.Map{
		"title": "First tide, revised", "body": "the water still rises",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "First tide, revised", updated["title"])

	status, _ = doJSON(t, http.MethodDelete, "/api/posts/"+postID, ownerToken, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = doJSON(t, http.MethodGet, "/api/posts/"+postID, "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, http.MethodPut, "/api/posts/"+postID, ownerToken, fiber.Map{
		"title": "ghost", "body": "ghost",
	})
	assert.Equal(t, http.StatusNotFound, status)

	// Non-numeric IDs never reach the service.
	status, _ = doJSON(t, http.MethodGet, "/api/posts/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestFeedPagination(t *testing.T) {
	require.NoError(t, testDB.Exec("DELETE FROM posts").Error)

	registerUser(t, "feed_author", "feed_author@example.com")
	var author models.User
	require.NoError(t, testDB.Where("username = ?", "feed_author").First(&author).Error)

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		post := models.Post{
			Title:     fmt.Sprintf("P%d", i),
			Body:      fmt.Sprintf("body of P%d", i),
			UserID:    author.ID,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, testDB.Create(&post).Error)
	}

	titles := func(body map[string]any) []string {
		items := body["items"].([]any)
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = it.(map[string]any)["title"].(string)
		}
		return out
	}

	// Newest first, two per page.
	status, page := doJSON(t, http.MethodGet, "/api/posts/?limit=2", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"P5", "P4"}, titles(page))
	assert.Equal(t, true, page["has_more"])
	assert.Equal(t, float64(5), page["total_count"])
	cursor := url.QueryEscape(page["next_cursor"].(string))

	status, page = doJSON(t, http.MethodGet, "/api/posts/?limit=2&cursor="+cursor, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"P3", "P2"}, titles(page))
	assert.Equal(t, true, page["has_more"])
	cursor = url.QueryEscape(page["next_cursor"].(string))

	status, page = doJSON(t, http.MethodGet, "/api/posts/?limit=2&cursor="+cursor, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"P1"}, titles(page))
	assert.Equal(t, false, page["has_more"])
	_, hasNext := page["next_cursor"]
	assert.False(t, hasNext)

	// Snippets ride along on list responses.
	status, page = doJSON(t, http.MethodGet, "/api/posts/?limit=1", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "body of P5", page["items"].([]any)[0].(map[string]any)["text_snippet"])

	// Bad paging inputs are the caller's problem.
	status, _ = doJSON(t, http.MethodGet, "/api/posts/?limit=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = doJSON(t, http.MethodGet, "/api/posts/?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = doJSON(t, http.MethodGet, "/api/posts/?cursor=garbage", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPasswordResetEndpoints(t *testing.T) {
	registerUser(t, "reset_riley", "reset_riley@example.com")

	// Unknown addresses get the same answer as known ones.
	status, body := doJSON(t, http.MethodPost, "/api/auth/forgot-password", "", fiber.Map{
		"email": "nobody@example.com",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	status, _ = doJSON(t, http.MethodPost, "/api/auth/forgot-password", "", fiber.Map{
		"email": "reset_riley@example.com",
	})
	assert.Equal(t, http.StatusOK, status)

	var user models.User
	require.NoError(t, testDB.Where("username = ?", "reset_riley").First(&user).Error)

	// The mail channel is out of band; mint a token against the same store
	// the server uses.
	token, err := reset.NewStore(testRdb).Issue(context.Background(), user.ID)
	require.NoError(t, err)

	status, _ = doJSON(t, http.MethodPost, "/api/auth/change-password", "", fiber.Map{
		"user_id":      user.ID,
		"token":        token,
		"new_password": "r3setPassword",
	})
	require.Equal(t, http.StatusOK, status)

	// New password works, old one is gone.
	status, _ = doJSON(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"username_or_email": "reset_riley",
		"password":          "r3setPassword",
	})
	assert.Equal(t, http.StatusOK, status)
	status, _ = doJSON(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"username_or_email": "reset_riley",
		"password":          "hunter2hunter2",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	// Spent tokens are rejected.
	status, body = doJSON(t, http.MethodPost, "/api/auth/change-password", "", fiber.Map{
		"user_id":      user.ID,
		"token":        token,
		"new_password": "an0therPassword",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeTokenInvalid, body["code"])
}
