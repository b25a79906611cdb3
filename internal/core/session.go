package core

import (
	"context"
	"sync"

	"github.com/vovakirdan/datingchat-server/internal/groups"
	"github.com/vovakirdan/datingchat-server/internal/store"
)

// SessionKind tells chat sessions (bound to one peer) from presence-only ones.
type SessionKind string

const (
	SessionChat     SessionKind = "chat"
	SessionPresence SessionKind = "presence"
)

// Session is the per-connection object the transport drives. Its only entry
// points are OnOpen, Send and OnClose.
type Session struct {
	kind   SessionKind
	peer   string
	client *Client
	orch   *Orchestrator
	hub    *Hub

	closeOnce sync.Once
}

// NewChatSession builds a session for a conversation between username and peer.
func NewChatSession(orch *Orchestrator, hub *Hub, connectionID, username, peer string, buffer int) *Session {
	return &Session{
		kind:   SessionChat,
		peer:   normalizeUsername(peer),
		client: NewClient(connectionID, normalizeUsername(username), buffer),
		orch:   orch,
		hub:    hub,
	}
}

// NewPresenceSession builds a session that only tracks who is online.
func NewPresenceSession(orch *Orchestrator, hub *Hub, connectionID, username string, buffer int) *Session {
	return &Session{
		kind:   SessionPresence,
		client: NewClient(connectionID, normalizeUsername(username), buffer),
		orch:   orch,
		hub:    hub,
	}
}

func (s *Session) ID() string            { return s.client.ID }
func (s *Session) Username() string      { return s.client.Username }
func (s *Session) Peer() string          { return s.peer }
func (s *Session) Kind() SessionKind     { return s.kind }
func (s *Session) Events() <-chan *Event { return s.client.Events }

// OnOpen registers the connection with the hub and runs the handshake.
// The Handshake is nil for presence sessions.
func (s *Session) OnOpen(ctx context.Context) (*Handshake, error) {
	s.hub.RegisterClient(s.client)

	conn := groups.Connection{ID: s.client.ID, Username: s.client.Username}
	if s.kind == SessionPresence {
		return nil, s.orch.OnPresenceConnect(ctx, conn)
	}
	return s.orch.OnConnect(ctx, conn, s.peer)
}

// Send delivers content to recipient, or to the session peer when recipient is empty.
func (s *Session) Send(ctx context.Context, recipient, content string) (*store.Message, error) {
	if s.kind == SessionPresence {
		return nil, coreError(ErrCodeProtocol, "presence sessions cannot send messages", nil)
	}
	if recipient == "" {
		recipient = s.peer
	}
	return s.orch.SendMessage(ctx, s.client.Username, recipient, content)
}

// OnClose runs the disconnect protocol once. It is safe to call before,
// after or without OnOpen.
func (s *Session) OnClose(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.orch.OnDisconnect(ctx, s.client.ID)
		s.hub.UnregisterClient(s.client.ID)
	})
}
