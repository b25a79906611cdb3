package core

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/datingchat-server/internal/groups"
	"github.com/vovakirdan/datingchat-server/internal/messages"
	"github.com/vovakirdan/datingchat-server/internal/presence"
	"github.com/vovakirdan/datingchat-server/internal/store"
	"github.com/vovakirdan/datingchat-server/internal/store/sqlstore"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent drains ch for a short while and fails if kind shows up.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event %v: %+v", kind, ev.Payload)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	return m.Called(ctx, routingKey, event).Error(0)
}

func (m *publisherMock) Close() error {
	return m.Called().Error(0)
}

type messageStoreMock struct {
	mock.Mock
}

func (m *messageStoreMock) SaveMessage(ctx context.Context, msg *store.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *messageStoreMock) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	args := m.Called(ctx, id)
	msg, _ := args.Get(0).(*store.Message)
	return msg, args.Error(1)
}

func (m *messageStoreMock) ListThread(ctx context.Context, current, other string) ([]*store.Message, error) {
	args := m.Called(ctx, current, other)
	msgs, _ := args.Get(0).([]*store.Message)
	return msgs, args.Error(1)
}

func (m *messageStoreMock) MarkRead(ctx context.Context, ids []int64, readAt time.Time) error {
	return m.Called(ctx, ids, readAt).Error(0)
}

func (m *messageStoreMock) ListMessages(ctx context.Context, filter store.MessageFilter) ([]*store.Message, int, error) {
	args := m.Called(ctx, filter)
	msgs, _ := args.Get(0).([]*store.Message)
	return msgs, args.Int(1), args.Error(2)
}

func (m *messageStoreMock) MarkDeleted(ctx context.Context, id int64, party store.Party) (bool, error) {
	args := m.Called(ctx, id, party)
	return args.Bool(0), args.Error(1)
}

type testEnv struct {
	store     *sqlstore.SQLStore
	presence  *presence.Service
	groups    *groups.Manager
	messages  *messages.Log
	hub       *Hub
	orch      *Orchestrator
	publisher *publisherMock
}

// newTestEnv seeds alice, bob and carol. A nil msgStore uses the SQL store.
func newTestEnv(t *testing.T, msgStore store.MessageStore) *testEnv {
	t.Helper()

	st, err := sqlstore.NewWithSetup(":memory:", func(db *sqlx.DB) error {
		_, err := db.Exec(`INSERT INTO users (username, known_as) VALUES ('alice', 'Alice'), ('bob', 'Bob'), ('carol', 'Carol')`)
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	if msgStore == nil {
		msgStore = st
	}

	logger := zerolog.Nop()
	pub := new(publisherMock)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	pres := presence.NewService(presence.NewRegistry(), &logger)
	grp := groups.NewManager(st, &logger)
	log := messages.New(msgStore, messages.Options{}, &logger)
	hub := NewHub(grp, &logger)

	orch := NewOrchestrator(Deps{
		Users:       st,
		Presence:    pres,
		Groups:      grp,
		Messages:    log,
		Broadcaster: hub,
		Publisher:   pub,
	}, 100, &logger)

	return &testEnv{
		store:     st,
		presence:  pres,
		groups:    grp,
		messages:  log,
		hub:       hub,
		orch:      orch,
		publisher: pub,
	}
}

func (e *testEnv) openChat(t *testing.T, id, user, peer string) *Session {
	t.Helper()

	s := NewChatSession(e.orch, e.hub, id, user, peer, 64)
	_, err := s.OnOpen(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.OnClose(context.Background()) })
	return s
}

func (e *testEnv) openPresence(t *testing.T, id, user string) *Session {
	t.Helper()

	s := NewPresenceSession(e.orch, e.hub, id, user, 64)
	_, err := s.OnOpen(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.OnClose(context.Background()) })
	return s
}
