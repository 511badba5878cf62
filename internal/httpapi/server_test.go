package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VitaminP8/commentree/internal/interaction"
	"github.com/VitaminP8/commentree/internal/mention"
	"github.com/VitaminP8/commentree/internal/mocks"
	"github.com/VitaminP8/commentree/internal/profile"
	"github.com/VitaminP8/commentree/internal/report"
	"github.com/VitaminP8/commentree/internal/storage/memory"
	"github.com/VitaminP8/commentree/internal/thread"
)

const testSecret = "test_jwt_secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.NewDocumentMemoryStorage()
	users := memory.NewUserMemoryStorage(testSecret, time.Hour).WithModerators("mod")
	ledger := report.NewLedger(store, 0)
	sink := mention.NewStoreSink(store)

	return NewServer(Deps{
		Users:         users,
		Threads:       thread.NewRegistry(store),
		Loader:        thread.NewLoader(store, profile.NewHydrator(users), ledger, thread.DefaultDepthLimit, 4),
		Engine:        interaction.NewEngine(store, ledger, mention.NewDispatcher(users, sink), mocks.NewMockSubscriptionManager(), interaction.Config{}),
		Ledger:        ledger,
		Notifications: sink,
		JWTSecret:     testSecret,
	}, 0)
}

func do(t *testing.T, s *Server, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func signUp(t *testing.T, s *Server, username string) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["token"]
}

type treeResponse struct {
	Thread struct {
		ID      string `json:"id"`
		OwnerID string `json:"ownerId"`
	} `json:"thread"`
	Comments []struct {
		Path          string `json:"path"`
		Text          string `json:"text"`
		LikeCount     int    `json:"likeCount"`
		LikedByViewer bool   `json:"likedByViewer"`
		Hidden        bool   `json:"hidden"`
		ReportCount   int    `json:"reportCount"`
		Author        struct {
			DisplayName string `json:"displayName"`
		} `json:"author"`
		Replies []struct {
			Path string `json:"path"`
		} `json:"replies"`
	} `json:"comments"`
	HiddenCount int `json:"hiddenCount"`
}

func loadTree(t *testing.T, s *Server, threadID, token string, showHidden bool) treeResponse {
	t.Helper()
	target := "/api/v1/threads/" + threadID + "/comments"
	if showHidden {
		target += "?showHidden=true"
	}
	rec := do(t, s, http.MethodGet, target, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tree treeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tree))
	return tree
}

func commentURL(action, path string) string {
	base := "/api/v1/comments"
	if action != "" {
		base += "/" + action
	}
	return base + "?path=" + url.QueryEscape(path)
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Auth(t *testing.T) {
	s := newTestServer(t)
	signUp(t, s, "alice")

	t.Run("Duplicate registration", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"username": "alice",
			"email":    "other@example.com",
			"password": "password123",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Wrong password", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Unknown user looks like a wrong password", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "ghost", "password": "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestServer_CommentFlow(t *testing.T) {
	s := newTestServer(t)
	alice := signUp(t, s, "alice")
	bob := signUp(t, s, "bob")
	mod := signUp(t, s, "mod")

	rec := do(t, s, http.MethodPost, "/api/v1/threads", alice, map[string]string{"id": "T1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var posted struct {
		Path     string         `json:"path"`
		Mentions mention.Result `json:"mentions"`
	}

	t.Run("Post requires a viewer", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/threads/T1/comments", "", map[string]string{"text": "hi"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Post with a mention", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/threads/T1/comments", alice, map[string]string{"text": "hello @bob"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posted))
		assert.Len(t, posted.Mentions.Notified, 1)

		rec = do(t, s, http.MethodGet, "/api/v1/notifications", bob, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var items []mention.Notification
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
		require.Len(t, items, 1)
		assert.Equal(t, posted.Path, items[0].CommentPath)
	})

	t.Run("Reply and load", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/threads/T1/comments", bob, map[string]string{
			"text":       "hi back",
			"parentPath": posted.Path,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		tree := loadTree(t, s, "T1", bob, false)
		require.Len(t, tree.Comments, 1)
		assert.Equal(t, "hello @bob", tree.Comments[0].Text)
		assert.Equal(t, "alice", tree.Comments[0].Author.DisplayName)
		assert.Len(t, tree.Comments[0].Replies, 1)
	})

	t.Run("Like toggles", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, commentURL("like", posted.Path), bob, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"liked":true}`, rec.Body.String())

		tree := loadTree(t, s, "T1", bob, false)
		assert.Equal(t, 1, tree.Comments[0].LikeCount)
		assert.True(t, tree.Comments[0].LikedByViewer)

		rec = do(t, s, http.MethodPost, commentURL("like", posted.Path), bob, nil)
		assert.JSONEq(t, `{"liked":false}`, rec.Body.String())
	})

	t.Run("Only the author edits", func(t *testing.T) {
		rec := do(t, s, http.MethodPatch, commentURL("", posted.Path), bob, map[string]string{"text": "hijacked"})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, s, http.MethodPatch, commentURL("", posted.Path), alice, map[string]string{"text": "hello again @bob"})
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("Report validation", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, commentURL("report", posted.Path), bob, map[string]string{"reason": "boring"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, s, http.MethodPost, commentURL("report", posted.Path), bob, map[string]string{"reason": "spam", "details": "ads"})
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("Review queue is for moderators", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/v1/reports", bob, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, s, http.MethodGet, "/api/v1/reports", mod, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var records []report.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		require.Len(t, records, 1)
		assert.Equal(t, report.ReasonSpam, records[0].Reason)
	})

	t.Run("Malformed path", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, commentURL("like", "thread/T1/oops"), bob, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, s, http.MethodPost, "/api/v1/comments/like", bob, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Delete is permission gated", func(t *testing.T) {
		rec := do(t, s, http.MethodDelete, commentURL("", posted.Path), bob, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, s, http.MethodDelete, commentURL("", posted.Path), mod, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		tree := loadTree(t, s, "T1", bob, false)
		assert.Empty(t, tree.Comments)

		rec = do(t, s, http.MethodDelete, commentURL("", posted.Path), mod, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Unknown thread", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/v1/threads/missing/comments", alice, map[string]string{"text": "hi"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_HiddenComments(t *testing.T) {
	s := newTestServer(t)
	alice := signUp(t, s, "alice")

	rec := do(t, s, http.MethodPost, "/api/v1/threads", alice, map[string]string{"id": "T1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/threads/T1/comments", alice, map[string]string{"text": "controversial"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var posted struct {
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posted))

	for i := 0; i < 10; i++ {
		reporter := signUp(t, s, "reporter"+string(rune('a'+i)))
		rec := do(t, s, http.MethodPost, commentURL("report", posted.Path), reporter, map[string]string{"reason": "hate"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	tree := loadTree(t, s, "T1", alice, false)
	assert.Empty(t, tree.Comments)
	assert.Equal(t, 1, tree.HiddenCount)

	tree = loadTree(t, s, "T1", alice, true)
	require.Len(t, tree.Comments, 1)
	assert.True(t, tree.Comments[0].Hidden)
	assert.Equal(t, 10, tree.Comments[0].ReportCount)

	rec = do(t, s, http.MethodGet, "/api/v1/threads/T1/comments?showHidden=maybe", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
