package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/datingchat-server/internal/store"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQLStore implements store.Store on top of sqlx for SQLite and PostgreSQL.
type SQLStore struct {
	db *sqlx.DB
}

// Open connects to the database for the given driver and applies the schema.
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, "":
		return NewWithSetup(dsn, nil)
	case DriverPostgres:
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

// NewPostgres connects to PostgreSQL and applies the schema.
func NewPostgres(dsn string) (*SQLStore, error) {
	db, err := sqlx.Connect(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// NewWithSetup opens a SQLite database, applies the schema and then runs setup.
// Useful for tests to seed rows without going through the API.
func NewWithSetup(dbPath string, setup func(*sqlx.DB) error) (*SQLStore, error) {
	db, err := sqlx.Open(DriverSQLite, dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

// ==== UserStore implementation ====

// GetUserByUsername retrieves a user by username.
func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	var user store.User
	query := s.db.Rebind(`SELECT id, username, known_as, created_at FROM users WHERE username = ?`)
	if err := s.db.GetContext(ctx, &user, query, username); err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// CreateUser inserts a user row.
func (s *SQLStore) CreateUser(ctx context.Context, username, knownAs string) (*store.User, error) {
	var id int64
	query := s.db.Rebind(`INSERT INTO users (username, known_as) VALUES (?, ?) RETURNING id`)
	if err := s.db.QueryRowxContext(ctx, query, username, knownAs).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetUserByUsername(ctx, username)
}

// ==== MessageStore implementation ====

const messageColumns = `id, sender_username, recipient_username, content, sent_at, read_at, sender_deleted, recipient_deleted`

// SaveMessage persists a message and assigns its ID.
func (s *SQLStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := s.db.Rebind(`
		INSERT INTO messages (sender_username, recipient_username, content, sent_at, read_at, sender_deleted, recipient_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		msg.SenderUsername,
		msg.RecipientUsername,
		msg.Content,
		msg.SentAt.UTC(),
		utcPtr(msg.ReadAt),
		msg.SenderDeleted,
		msg.RecipientDeleted,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	msg.ID = id
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	var msg store.Message
	query := s.db.Rebind(`SELECT ` + messageColumns + ` FROM messages WHERE id = ?`)
	if err := s.db.GetContext(ctx, &msg, query, id); err != nil {
		return nil, notFound(err, "message")
	}
	return &msg, nil
}

// ListThread returns the conversation between current and other as seen by current.
func (s *SQLStore) ListThread(ctx context.Context, current, other string) ([]*store.Message, error) {
	query := s.db.Rebind(`
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (recipient_username = ? AND sender_username = ? AND recipient_deleted = FALSE)
		   OR (sender_username = ? AND recipient_username = ? AND sender_deleted = FALSE)
		ORDER BY sent_at ASC, id ASC
	`)
	var messages []*store.Message
	if err := s.db.SelectContext(ctx, &messages, query, current, other, current, other); err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	return messages, nil
}

// MarkRead sets read_at on unread messages in ids.
func (s *SQLStore) MarkRead(ctx context.Context, ids []int64, readAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE messages SET read_at = ? WHERE read_at IS NULL AND id IN (?)`, readAt.UTC(), ids)
	if err != nil {
		return fmt.Errorf("build mark read: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// ListMessages returns one page of the filtered mailbox and the total row count.
func (s *SQLStore) ListMessages(ctx context.Context, filter store.MessageFilter) ([]*store.Message, int, error) {
	var where string
	switch filter.Container {
	case store.ContainerInbox:
		where = `recipient_username = ? AND recipient_deleted = FALSE`
	case store.ContainerOutbox:
		where = `sender_username = ? AND sender_deleted = FALSE`
	case store.ContainerUnread:
		where = `recipient_username = ? AND recipient_deleted = FALSE AND read_at IS NULL`
	default:
		return nil, 0, fmt.Errorf("unknown container %q", filter.Container)
	}

	var total int
	countQuery := s.db.Rebind(`SELECT COUNT(*) FROM messages WHERE ` + where)
	if err := s.db.GetContext(ctx, &total, countQuery, filter.Username); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	pageQuery := s.db.Rebind(`
		SELECT ` + messageColumns + `
		FROM messages
		WHERE ` + where + `
		ORDER BY sent_at DESC, id DESC
		LIMIT ? OFFSET ?
	`)
	var messages []*store.Message
	if err := s.db.SelectContext(ctx, &messages, pageQuery, filter.Username, filter.Limit, filter.Offset); err != nil {
		return nil, 0, fmt.Errorf("query messages: %w", err)
	}

	return messages, total, nil
}

// MarkDeleted flags party's side of the message and purges the row in the
// same transaction once both flags are set. Only the acting column is
// written.
func (s *SQLStore) MarkDeleted(ctx context.Context, id int64, party store.Party) (bool, error) {
	var column string
	switch party {
	case store.PartySender:
		column = "sender_deleted"
	case store.PartyRecipient:
		column = "recipient_deleted"
	default:
		return false, fmt.Errorf("unknown party %d", party)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE messages SET `+column+` = TRUE WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("mark deleted: %w", err)
	}
	if err := requireRow(result, "message"); err != nil {
		return false, err
	}

	result, err = tx.ExecContext(ctx,
		tx.Rebind(`DELETE FROM messages WHERE id = ? AND sender_deleted = TRUE AND recipient_deleted = TRUE`),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("purge message: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return purged > 0, nil
}

// ==== GroupStore implementation ====

// AddConnection upserts the group and records the connection in one transaction.
func (s *SQLStore) AddConnection(ctx context.Context, conn store.Connection) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO message_groups (name) VALUES (?) ON CONFLICT (name) DO NOTHING`),
		conn.GroupName,
	); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO connections (connection_id, username, group_name) VALUES (?, ?, ?) ON CONFLICT (connection_id) DO UPDATE SET group_name = excluded.group_name, username = excluded.username`),
		conn.ID, conn.Username, conn.GroupName,
	); err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RemoveConnection deletes a connection row.
func (s *SQLStore) RemoveConnection(ctx context.Context, connectionID string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM connections WHERE connection_id = ?`), connectionID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

// GetGroup retrieves a group with its connections.
func (s *SQLStore) GetGroup(ctx context.Context, name string) (*store.Group, error) {
	var exists string
	if err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT name FROM message_groups WHERE name = ?`), name); err != nil {
		return nil, notFound(err, "group")
	}

	var conns []store.Connection
	query := s.db.Rebind(`SELECT connection_id, username, group_name FROM connections WHERE group_name = ? ORDER BY connection_id`)
	if err := s.db.SelectContext(ctx, &conns, query, name); err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}

	return &store.Group{Name: name, Connections: conns}, nil
}

// DeleteGroup removes a group that has no connection rows left. A group that
// gained a connection since it was found idle is kept.
func (s *SQLStore) DeleteGroup(ctx context.Context, name string) error {
	query := s.db.Rebind(`
		DELETE FROM message_groups
		WHERE name = ?
		  AND NOT EXISTS (SELECT 1 FROM connections WHERE group_name = ?)
	`)
	if _, err := s.db.ExecContext(ctx, query, name, name); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

// ClearConnections drops all connection rows.
func (s *SQLStore) ClearConnections(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM connections`); err != nil {
		return fmt.Errorf("clear connections: %w", err)
	}
	return nil
}

func requireRow(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Ensure SQLStore implements store.Store
var _ store.Store = (*SQLStore)(nil)
