package http

import (
	"bytes"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/datingchat-server/internal/core"
	"github.com/vovakirdan/datingchat-server/internal/proto"
)

func (s *testServer) do(t *testing.T, method, path, user string, body any) *stdhttp.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := stdhttp.NewRequest(method, s.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, user))
	}

	resp, err := s.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *stdhttp.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRESTRequiresAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, stdhttp.MethodGet, "/api/messages", "", nil)
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)

	req, err := stdhttp.NewRequest(stdhttp.MethodGet, srv.ts.URL+"/api/presence/online", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Token abc")
	resp, err = srv.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)
}

func TestRESTSendAndMailbox(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, stdhttp.MethodPost, "/api/messages", "alice", proto.SendMessageRequest{
		RecipientUsername: "Bob",
		Content:           "hello from rest",
	})
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode)
	sent := decode[proto.Message](t, resp)
	assert.Equal(t, "bob", sent.RecipientUsername)
	assert.Nil(t, sent.ReadAt)

	resp = srv.do(t, stdhttp.MethodGet, "/api/messages?container=unread", "bob", nil)
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var header proto.Pagination
	require.NoError(t, json.Unmarshal([]byte(resp.Header.Get("Pagination")), &header))
	page := decode[proto.MessagePage](t, resp)
	assert.Equal(t, page.Pagination, header)
	assert.Equal(t, 1, page.Pagination.TotalItems)
	require.Len(t, page.Items, 1)
	assert.Equal(t, sent.ID, page.Items[0].ID)

	resp = srv.do(t, stdhttp.MethodGet, "/api/messages?container=outbox", "alice", nil)
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Len(t, decode[proto.MessagePage](t, resp).Items, 1)

	resp = srv.do(t, stdhttp.MethodGet, "/api/messages/thread/alice", "bob", nil)
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	thread := decode[[]proto.Message](t, resp)
	require.Len(t, thread, 1)
	assert.NotNil(t, thread[0].ReadAt)

	resp = srv.do(t, stdhttp.MethodGet, "/api/messages", "bob", nil)
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	page = decode[proto.MessagePage](t, resp)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}

func TestRESTSendErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{name: "missing body fields", body: map[string]string{}, status: stdhttp.StatusBadRequest, code: core.ErrCodeValidation},
		{name: "self", body: proto.SendMessageRequest{RecipientUsername: "ALICE", Content: "me"}, status: stdhttp.StatusBadRequest, code: core.ErrCodeValidation},
		{name: "unknown recipient", body: proto.SendMessageRequest{RecipientUsername: "nobody", Content: "hi"}, status: stdhttp.StatusBadRequest, code: core.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.do(t, stdhttp.MethodPost, "/api/messages", "alice", tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, resp).Code)
		})
	}
}

func TestRESTBadContainer(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, stdhttp.MethodGet, "/api/messages?container=spam", "alice", nil)
	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)

	resp = srv.do(t, stdhttp.MethodGet, "/api/messages?page_number=-1", "alice", nil)
	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)
}

func TestRESTDeleteMessage(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, stdhttp.MethodPost, "/api/messages", "alice", proto.SendMessageRequest{RecipientUsername: "bob", Content: "oops"})
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode)
	sent := decode[proto.Message](t, resp)
	path := "/api/messages/" + jsonNumber(sent.ID)

	resp = srv.do(t, stdhttp.MethodDelete, path, "carol", nil)
	assert.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)

	resp = srv.do(t, stdhttp.MethodDelete, path, "alice", nil)
	assert.Equal(t, stdhttp.StatusNoContent, resp.StatusCode)

	resp = srv.do(t, stdhttp.MethodGet, "/api/messages?container=outbox", "alice", nil)
	assert.Empty(t, decode[proto.MessagePage](t, resp).Items)

	resp = srv.do(t, stdhttp.MethodDelete, path, "alice", nil)
	assert.Equal(t, stdhttp.StatusNotFound, resp.StatusCode)

	resp = srv.do(t, stdhttp.MethodDelete, path, "bob", nil)
	assert.Equal(t, stdhttp.StatusNoContent, resp.StatusCode)

	resp = srv.do(t, stdhttp.MethodDelete, path, "bob", nil)
	assert.Equal(t, stdhttp.StatusNotFound, resp.StatusCode)

	resp = srv.do(t, stdhttp.MethodDelete, "/api/messages/abc", "bob", nil)
	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)
}

func TestRESTOnlineUsers(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, stdhttp.MethodGet, "/api/presence/online", "alice", nil)
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{}, decode[proto.OnlineUsers](t, resp).Users)
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
