package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/datingchat-server/internal/auth"
	"github.com/vovakirdan/datingchat-server/internal/config"
	"github.com/vovakirdan/datingchat-server/internal/core"
	"github.com/vovakirdan/datingchat-server/internal/groups"
	"github.com/vovakirdan/datingchat-server/internal/messages"
	"github.com/vovakirdan/datingchat-server/internal/notify"
	"github.com/vovakirdan/datingchat-server/internal/presence"
	"github.com/vovakirdan/datingchat-server/internal/proto"
	"github.com/vovakirdan/datingchat-server/internal/store/sqlstore"
)

type testServer struct {
	ts   *httptest.Server
	auth *auth.Service
	orch *core.Orchestrator
}

// frame is an outbound envelope with the payload left raw.
type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// newTestServer starts a server over an in-memory store seeded with alice,
// bob and carol.
func newTestServer(t *testing.T, tweak func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := sqlstore.NewWithSetup(":memory:", func(db *sqlx.DB) error {
		_, err := db.Exec(`INSERT INTO users (username, known_as) VALUES ('alice', 'Alice'), ('bob', 'Bob'), ('carol', 'Carol')`)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	if tweak != nil {
		tweak(&cfg)
	}

	logger := zerolog.Nop()
	grp := groups.NewManager(st, &logger)
	hub := core.NewHub(grp, &logger)
	orch := core.NewOrchestrator(core.Deps{
		Users:       st,
		Presence:    presence.NewService(presence.NewRegistry(), &logger),
		Groups:      grp,
		Messages:    messages.New(st, messages.Options{DefaultPageSize: cfg.DefaultPageSize, MaxPageSize: cfg.MaxPageSize}, &logger),
		Broadcaster: hub,
		Publisher:   notify.NewPublisher("", cfg.AMQPExchange, &logger),
	}, cfg.MaxContentLength, &logger)

	authSvc := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	server := NewServer(orch, hub, authSvc, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, auth: authSvc, orch: orch}
}

func (s *testServer) token(t *testing.T, username string) string {
	t.Helper()
	token, err := s.auth.IssueToken(context.Background(), username)
	require.NoError(t, err)
	return token
}

func (s *testServer) wsURL(path string) string {
	return strings.Replace(s.ts.URL, "http", "ws", 1) + path
}

// dialChat opens a chat session as user with peer, authenticating through the
// access_token query parameter.
func (s *testServer) dialChat(t *testing.T, ctx context.Context, user, peer string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, s.wsURL("/ws/messages?user="+peer+"&access_token="+s.token(t, user)), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// readUntil reads frames until one carries event, failing on error frames.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) frame {
	t.Helper()
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read waiting for %s: %v", event, err)
		}
		if f.Type == proto.OutboundTypeError {
			t.Fatalf("unexpected error frame waiting for %s: %+v", event, f.Error)
		}
		if f.Event == event {
			return f
		}
	}
}

// readError reads frames until an error frame arrives.
func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) *proto.Error {
	t.Helper()
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read waiting for error: %v", err)
		}
		if f.Type == proto.OutboundTypeError {
			return f.Error
		}
	}
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, data proto.SendData) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSend, Data: payload}))
}
