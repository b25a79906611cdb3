package core

import (
	"time"

	"github.com/vovakirdan/datingchat-server/internal/groups"
	"github.com/vovakirdan/datingchat-server/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventGroupUpdated carries a groups.Group after someone joined or left.
	EventGroupUpdated EventKind = iota
	// EventMessageThread carries []*store.Message to a newly joined connection.
	EventMessageThread
	// EventNewMessage carries a *store.Message to every connection in the group.
	EventNewMessage
	// EventNewMessageNotification carries a Notification to a recipient's
	// connections outside the conversation.
	EventNewMessageNotification
	// EventUserOnline carries the username that came online.
	EventUserOnline
	// EventUserOffline carries the username that went offline.
	EventUserOffline
	// EventOnlineUsers carries the sorted []string of online usernames.
	EventOnlineUsers
	// EventError carries a *CoreError.
	EventError
)

var eventNames = map[EventKind]string{
	EventGroupUpdated:           "group_updated",
	EventMessageThread:          "message_thread",
	EventNewMessage:             "new_message",
	EventNewMessageNotification: "new_message_notification",
	EventUserOnline:             "user_online",
	EventUserOffline:            "user_offline",
	EventOnlineUsers:            "online_users",
	EventError:                  "error",
}

// String returns the wire name of the event.
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is queued to a client connection.
type Event struct {
	Kind    EventKind
	Payload any
}

// Notification alerts a recipient that is online but not viewing the thread.
type Notification struct {
	MessageID int64
	Sender    string
	KnownAs   string
	Preview   string
	SentAt    time.Time
}

// Handshake is what a chat connection receives when it opens.
type Handshake struct {
	Group  groups.Group
	Thread []*store.Message
}
