package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// User is the identity record owned by the CRUD layer.
type User struct {
	ID        int64     `db:"id"`
	Username  string    `db:"username"`
	KnownAs   string    `db:"known_as"`
	CreatedAt time.Time `db:"created_at"`
}

// Message is a persisted direct message between two users.
type Message struct {
	ID                int64      `db:"id"`
	SenderUsername    string     `db:"sender_username"`
	RecipientUsername string     `db:"recipient_username"`
	Content           string     `db:"content"`
	SentAt            time.Time  `db:"sent_at"`
	ReadAt            *time.Time `db:"read_at"`
	SenderDeleted     bool       `db:"sender_deleted"`
	RecipientDeleted  bool       `db:"recipient_deleted"`
}

// VisibleTo reports whether username has not deleted their side of the message.
func (m *Message) VisibleTo(username string) bool {
	if username == m.SenderUsername && m.SenderDeleted {
		return false
	}
	if username == m.RecipientUsername && m.RecipientDeleted {
		return false
	}
	return true
}

// Party identifies which side of a message acts on it.
type Party int

const (
	PartySender Party = iota
	PartyRecipient
)

// Container selects a mailbox view of a user's messages.
type Container string

const (
	ContainerInbox  Container = "inbox"
	ContainerOutbox Container = "outbox"
	ContainerUnread Container = "unread"
)

// MessageFilter describes a page query over one user's mailbox.
type MessageFilter struct {
	Container Container
	Username  string
	Offset    int
	Limit     int
}

// Connection is a persisted live connection inside a conversation group.
type Connection struct {
	ID        string `db:"connection_id"`
	Username  string `db:"username"`
	GroupName string `db:"group_name"`
}

// Group is a persisted conversation group with its current connections.
type Group struct {
	Name        string
	Connections []Connection
}

// UserStore resolves identities.
type UserStore interface {
	// GetUserByUsername retrieves a user by username. Returns ErrNotFound if missing.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// CreateUser inserts a user row. Used for seeding; registration lives elsewhere.
	CreateUser(ctx context.Context, username, knownAs string) (*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage inserts msg and sets its ID.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID. Returns ErrNotFound if missing.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// ListThread returns messages exchanged between current and other that are
	// still visible to current, oldest first.
	ListThread(ctx context.Context, current, other string) ([]*Message, error)

	// MarkRead sets read_at on the given messages where it is still unset.
	MarkRead(ctx context.Context, ids []int64, readAt time.Time) error

	// ListMessages returns one page of a mailbox, newest first, and the total count.
	ListMessages(ctx context.Context, filter MessageFilter) ([]*Message, int, error)

	// MarkDeleted sets party's delete flag on message id and removes the row
	// once both sides have deleted it, atomically. Returns ErrNotFound for an
	// unknown id.
	MarkDeleted(ctx context.Context, id int64, party Party) (purged bool, err error)
}

// GroupStore mirrors conversation group membership.
type GroupStore interface {
	// AddConnection creates the group if needed and records the connection.
	// Re-adding an existing connection moves it to conn.GroupName.
	AddConnection(ctx context.Context, conn Connection) error

	// RemoveConnection deletes a connection row. Missing rows are ignored.
	RemoveConnection(ctx context.Context, connectionID string) error

	// GetGroup retrieves a group and its connections. Returns ErrNotFound if missing.
	GetGroup(ctx context.Context, name string) (*Group, error)

	// DeleteGroup removes a group unless it still has connection rows.
	DeleteGroup(ctx context.Context, name string) error

	// ClearConnections drops every connection row left by a previous process.
	ClearConnections(ctx context.Context) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore
	GroupStore

	// Close closes the underlying database connection.
	Close() error
}
