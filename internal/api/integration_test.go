package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"codesync/internal/auth"
	"codesync/internal/models"
	"codesync/internal/relay"
	"codesync/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var signingKey = []byte("integration-test-key")

// fakeStore backs the whole server in-memory: the relay's gateway and
// both HTTP store interfaces.
type fakeStore struct {
	mu    sync.Mutex
	authz map[string]*models.Authorization
	edits []*models.CodeEdit
}

func newFakeStore() *fakeStore {
	return &fakeStore{authz: make(map[string]*models.Authorization)}
}

func (s *fakeStore) allow(snippetID, ownerID string, collaborators ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &models.Authorization{SnippetID: snippetID, OwnerID: ownerID}
	for _, userID := range collaborators {
		a.Collaborators = append(a.Collaborators, models.Collaborator{
			SnippetID:  snippetID,
			UserID:     userID,
			Permission: models.PermissionEdit,
		})
	}
	s.authz[snippetID] = a
}

func (s *fakeStore) GetAuthorization(ctx context.Context, snippetID string) (*models.Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.authz[snippetID]
	if !ok {
		return nil, fmt.Errorf("%w: snippet %s", repository.ErrNotFound, snippetID)
	}
	return a, nil
}

func (s *fakeStore) SaveSession(ctx context.Context, snippetID string, isLive bool, activeUsers []string, startedAt *time.Time) error {
	return nil
}

func (s *fakeStore) AppendEdit(ctx context.Context, edit *models.CodeEdit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, edit)
	return nil
}

func (s *fakeStore) ListBySnippet(ctx context.Context, snippetID string, limit, offset int) ([]*models.CodeEdit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.CodeEdit
	for _, e := range s.edits {
		if e.SnippetID == snippetID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) editCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edits)
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore) {
	return newTestServerWithOrigins(t, nil)
}

func newTestServerWithOrigins(t *testing.T, allowedOrigins []string) (*httptest.Server, *fakeStore) {
	t.Helper()

	store := newFakeStore()
	hub := relay.NewHub(store, 1, 64)
	hub.Start()
	t.Cleanup(hub.Shutdown)

	handler := NewHandler(hub, auth.NewVerifier(signingKey), store, store, allowedOrigins)
	srv := httptest.NewServer(SetupRoutes(handler))
	t.Cleanup(srv.Close)

	return srv, store
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(signingKey)
	require.NoError(t, err)
	return token
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendFrame(t *testing.T, ws *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(msg, &frame))
	return frame
}

func TestWebSocketRejectsBadCredential(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("no token", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("bad token", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=garbage"
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestWebSocketOriginAllowList(t *testing.T) {
	srv, store := newTestServerWithOrigins(t, []string{"https://editor.example.com"})
	store.allow("snip-1", "alice")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + signToken(t, "alice")

	t.Run("listed origin connects", func(t *testing.T) {
		ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://editor.example.com"}})
		require.NoError(t, err)
		ws.Close()
	})

	t.Run("unlisted origin is refused", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("no origin header connects", func(t *testing.T) {
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		ws.Close()
	})
}

func TestCollaborationOverWebSocket(t *testing.T) {
	srv, store := newTestServer(t)
	store.allow("snip-1", "alice", "bob")

	a := dial(t, srv, signToken(t, "alice"))
	b := dial(t, srv, signToken(t, "bob"))

	sendFrame(t, a, `{"type":"join_snippet","snippetId":"snip-1"}`)
	ack := readFrame(t, a)
	assert.Equal(t, "joined", ack["type"])
	assert.Equal(t, []any{"alice"}, ack["activeUsers"])

	sendFrame(t, b, `{"type":"join_snippet","snippetId":"snip-1"}`)
	ack = readFrame(t, b)
	assert.Equal(t, "joined", ack["type"])
	assert.Equal(t, []any{"alice", "bob"}, ack["activeUsers"])

	joined := readFrame(t, a)
	assert.Equal(t, "user_joined", joined["type"])
	assert.Equal(t, "bob", joined["userId"])

	sendFrame(t, a, `{"type":"code_change","snippetId":"snip-1","code":"package main","action":"insert","startLine":1,"endLine":1}`)

	change := readFrame(t, b)
	assert.Equal(t, "code_change", change["type"])
	assert.Equal(t, "package main", change["code"])
	assert.Equal(t, "alice", change["userId"])
	assert.NotEmpty(t, change["timestamp"])

	require.Eventually(t, func() bool { return store.editCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	a.Close()
	left := readFrame(t, b)
	assert.Equal(t, "user_left", left["type"])
	assert.Equal(t, "alice", left["userId"])
}

func TestEditHistoryEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	store.allow("snip-1", "alice", "bob")
	store.edits = append(store.edits, &models.CodeEdit{
		ID:        "e1",
		SnippetID: "snip-1",
		UserID:    "alice",
		Action:    models.ActionInsert,
		StartLine: 1,
		EndLine:   1,
		Code:      "x",
		Timestamp: time.Now(),
	})

	get := func(t *testing.T, path, token string) *http.Response {
		t.Helper()
		resp, err := http.Get(srv.URL + path + "?token=" + token)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("collaborator reads history", func(t *testing.T) {
		resp := get(t, "/api/v1/snippets/snip-1/edits", signToken(t, "bob"))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Edits  []*models.CodeEdit `json:"edits"`
			Limit  int                `json:"limit"`
			Offset int                `json:"offset"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Edits, 1)
		assert.Equal(t, "e1", body.Edits[0].ID)
		assert.Equal(t, 100, body.Limit)
	})

	t.Run("negative paging values fall back to defaults", func(t *testing.T) {
		resp := get(t, "/api/v1/snippets/snip-1/edits", signToken(t, "bob")+"&limit=-1&offset=-5")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, 100, body.Limit)
		assert.Equal(t, 0, body.Offset)
	})

	t.Run("oversized limit is capped", func(t *testing.T) {
		resp := get(t, "/api/v1/snippets/snip-1/edits", signToken(t, "bob")+"&limit=9999")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Limit int `json:"limit"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, 500, body.Limit)
	})

	t.Run("stranger is denied", func(t *testing.T) {
		resp := get(t, "/api/v1/snippets/snip-1/edits", signToken(t, "mallory"))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("unknown snippet", func(t *testing.T) {
		resp := get(t, "/api/v1/snippets/missing/edits", signToken(t, "alice"))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("no credential", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/snippets/snip-1/edits")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["persist_queue_depth"])
}
