package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeSend = "send"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// SendData asks to deliver a message. An empty recipient means the session peer.
type SendData struct {
	Recipient string `json:"recipient,omitempty"`
	Content   string `json:"content"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Message is the wire form of a stored message.
type Message struct {
	ID                int64      `json:"id"`
	SenderUsername    string     `json:"sender_username"`
	RecipientUsername string     `json:"recipient_username"`
	Content           string     `json:"content"`
	SentAt            time.Time  `json:"sent_at"`
	ReadAt            *time.Time `json:"read_at"`
}

// Connection is one member entry of a group.
type Connection struct {
	ConnectionID string `json:"connection_id"`
	Username     string `json:"username"`
}

// EventGroupUpdated is sent to a group whenever its membership changes.
type EventGroupUpdated struct {
	Name        string       `json:"name"`
	Connections []Connection `json:"connections"`
}

// EventMessageThread delivers the conversation to a newly joined connection.
type EventMessageThread struct {
	Messages []Message `json:"messages"`
}

// EventNewMessageNotification tells a recipient about a message in a
// conversation they do not have open.
type EventNewMessageNotification struct {
	MessageID int64     `json:"message_id"`
	Sender    string    `json:"sender"`
	KnownAs   string    `json:"known_as,omitempty"`
	Preview   string    `json:"preview"`
	SentAt    time.Time `json:"sent_at"`
}

// EventPresence names a user that came online or went offline.
type EventPresence struct {
	Username string `json:"username"`
}

// EventOnlineUsers lists every online user, sorted.
type EventOnlineUsers struct {
	Users []string `json:"users"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// SendMessageRequest is the REST body for sending a message.
type SendMessageRequest struct {
	RecipientUsername string `json:"recipient_username" binding:"required"`
	Content           string `json:"content" binding:"required"`
}

// Pagination is attached to paged responses, in the body and in the
// Pagination header.
type Pagination struct {
	CurrentPage  int `json:"current_page"`
	ItemsPerPage int `json:"items_per_page"`
	TotalItems   int `json:"total_items"`
	TotalPages   int `json:"total_pages"`
}

// MessagePage is one page of a mailbox.
type MessagePage struct {
	Items      []Message  `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// OnlineUsers is the REST presence response.
type OnlineUsers struct {
	Users []string `json:"users"`
}
