package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vovakirdan/datingchat-server/internal/store"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", func(db *sqlx.DB) error {
		_, err := db.Exec(`INSERT INTO users (username, known_as) VALUES ('alice', 'Alice'), ('bob', 'Bob')`)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func saveMessage(t *testing.T, s *SQLStore, from, to, content string, at time.Time) *store.Message {
	t.Helper()

	msg := &store.Message{SenderUsername: from, RecipientUsername: to, Content: content, SentAt: at}
	if err := s.SaveMessage(context.Background(), msg); err != nil {
		t.Fatalf("save message %q: %v", content, err)
	}
	return msg
}

func TestGetUserByUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	if user.KnownAs != "Alice" || user.ID == 0 {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := s.GetUserByUsername(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	created, err := s.CreateUser(ctx, "carol", "Carol")
	if err != nil {
		t.Fatalf("create carol: %v", err)
	}
	if created.Username != "carol" {
		t.Fatalf("unexpected created user: %+v", created)
	}
}

func TestThreadVisibilityAndMarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	first := saveMessage(t, s, "alice", "bob", "hi", base)
	second := saveMessage(t, s, "bob", "alice", "hey", base.Add(time.Second))
	third := saveMessage(t, s, "alice", "bob", "how are you", base.Add(2*time.Second))

	// Alice hides her own first message.
	if _, err := s.MarkDeleted(ctx, first.ID, store.PartySender); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}

	aliceView, err := s.ListThread(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("alice thread: %v", err)
	}
	if len(aliceView) != 2 || aliceView[0].ID != second.ID || aliceView[1].ID != third.ID {
		t.Fatalf("unexpected alice thread: %+v", aliceView)
	}

	bobView, err := s.ListThread(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("bob thread: %v", err)
	}
	if len(bobView) != 3 || bobView[0].ID != first.ID {
		t.Fatalf("expected bob to still see all 3 messages, got %d", len(bobView))
	}

	readAt := base.Add(time.Minute)
	if err := s.MarkRead(ctx, []int64{first.ID, third.ID}, readAt); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	got, err := s.GetMessage(ctx, third.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.ReadAt == nil || !got.ReadAt.Equal(readAt) {
		t.Fatalf("expected read_at %v, got %v", readAt, got.ReadAt)
	}

	untouched, err := s.GetMessage(ctx, second.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if untouched.ReadAt != nil {
		t.Fatalf("expected second message to stay unread")
	}
}

func TestListMessagesContainers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := 0; i < 5; i++ {
		saveMessage(t, s, "alice", "bob", "m", base.Add(time.Duration(i)*time.Second))
	}
	read := saveMessage(t, s, "alice", "bob", "read one", base.Add(10*time.Second))
	if err := s.MarkRead(ctx, []int64{read.ID}, base.Add(time.Hour)); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	saveMessage(t, s, "bob", "alice", "reply", base.Add(20*time.Second))

	tests := []struct {
		name      string
		filter    store.MessageFilter
		wantItems int
		wantTotal int
	}{
		{"inbox first page", store.MessageFilter{Container: store.ContainerInbox, Username: "bob", Limit: 4}, 4, 6},
		{"inbox second page", store.MessageFilter{Container: store.ContainerInbox, Username: "bob", Offset: 4, Limit: 4}, 2, 6},
		{"inbox beyond last page", store.MessageFilter{Container: store.ContainerInbox, Username: "bob", Offset: 8, Limit: 4}, 0, 6},
		{"unread", store.MessageFilter{Container: store.ContainerUnread, Username: "bob", Limit: 10}, 5, 5},
		{"outbox", store.MessageFilter{Container: store.ContainerOutbox, Username: "bob", Limit: 10}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := s.ListMessages(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list messages: %v", err)
			}
			if len(items) != tt.wantItems || total != tt.wantTotal {
				t.Fatalf("expected %d items / %d total, got %d / %d", tt.wantItems, tt.wantTotal, len(items), total)
			}
			for i := 1; i < len(items); i++ {
				if items[i].SentAt.After(items[i-1].SentAt) {
					t.Fatalf("expected newest first ordering")
				}
			}
		})
	}
}

func TestMarkDeletedPurgesOnceBothSidesDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := saveMessage(t, s, "alice", "bob", "bye", time.Now())

	purged, err := s.MarkDeleted(ctx, msg.ID, store.PartyRecipient)
	if err != nil {
		t.Fatalf("recipient delete: %v", err)
	}
	if purged {
		t.Fatalf("one side deleting must not purge")
	}
	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get after recipient delete: %v", err)
	}
	if !got.RecipientDeleted || got.SenderDeleted {
		t.Fatalf("unexpected flags: %+v", got)
	}

	purged, err = s.MarkDeleted(ctx, msg.ID, store.PartySender)
	if err != nil {
		t.Fatalf("sender delete: %v", err)
	}
	if !purged {
		t.Fatalf("second side deleting should purge")
	}
	if _, err := s.GetMessage(ctx, msg.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after purge, got %v", err)
	}
	if _, err := s.MarkDeleted(ctx, msg.ID, store.PartySender); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for purged message, got %v", err)
	}
}

func TestGroupConnections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conns := []store.Connection{
		{ID: "c1", Username: "alice", GroupName: "alice-bob"},
		{ID: "c2", Username: "bob", GroupName: "alice-bob"},
		{ID: "c2", Username: "bob", GroupName: "alice-bob"},
	}
	for _, c := range conns {
		if err := s.AddConnection(ctx, c); err != nil {
			t.Fatalf("add connection %s: %v", c.ID, err)
		}
	}

	group, err := s.GetGroup(ctx, "alice-bob")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if len(group.Connections) != 2 {
		t.Fatalf("expected 2 connections, got %+v", group.Connections)
	}

	if err := s.RemoveConnection(ctx, "c1"); err != nil {
		t.Fatalf("remove connection: %v", err)
	}
	if err := s.ClearConnections(ctx); err != nil {
		t.Fatalf("clear connections: %v", err)
	}

	group, err = s.GetGroup(ctx, "alice-bob")
	if err != nil {
		t.Fatalf("get group after clear: %v", err)
	}
	if len(group.Connections) != 0 {
		t.Fatalf("expected empty group, got %+v", group.Connections)
	}

	if err := s.DeleteGroup(ctx, "alice-bob"); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if _, err := s.GetGroup(ctx, "alice-bob"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteGroupKeepsGroupWithConnections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddConnection(ctx, store.Connection{ID: "c1", Username: "alice", GroupName: "alice-bob"}); err != nil {
		t.Fatalf("add connection: %v", err)
	}
	if err := s.DeleteGroup(ctx, "alice-bob"); err != nil {
		t.Fatalf("delete group: %v", err)
	}

	group, err := s.GetGroup(ctx, "alice-bob")
	if err != nil {
		t.Fatalf("group with a connection should survive: %v", err)
	}
	if len(group.Connections) != 1 {
		t.Fatalf("expected connection row to survive, got %+v", group.Connections)
	}
}

func TestAddConnectionMovesBetweenGroups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddConnection(ctx, store.Connection{ID: "c1", Username: "alice", GroupName: "alice-bob"}); err != nil {
		t.Fatalf("add connection: %v", err)
	}
	if err := s.AddConnection(ctx, store.Connection{ID: "c1", Username: "alice", GroupName: "alice-carol"}); err != nil {
		t.Fatalf("move connection: %v", err)
	}

	old, err := s.GetGroup(ctx, "alice-bob")
	if err != nil {
		t.Fatalf("get old group: %v", err)
	}
	if len(old.Connections) != 0 {
		t.Fatalf("connection should have left alice-bob, got %+v", old.Connections)
	}

	moved, err := s.GetGroup(ctx, "alice-carol")
	if err != nil {
		t.Fatalf("get new group: %v", err)
	}
	if len(moved.Connections) != 1 || moved.Connections[0].GroupName != "alice-carol" {
		t.Fatalf("unexpected connections: %+v", moved.Connections)
	}
}
