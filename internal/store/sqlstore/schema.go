package sqlstore

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT NOT NULL UNIQUE,
	known_as   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_username    TEXT NOT NULL,
	recipient_username TEXT NOT NULL,
	content            TEXT NOT NULL,
	sent_at            DATETIME NOT NULL,
	read_at            DATETIME,
	sender_deleted     BOOLEAN NOT NULL DEFAULT 0,
	recipient_deleted  BOOLEAN NOT NULL DEFAULT 0,
	CHECK (sender_username <> recipient_username)
);

CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_username, sent_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_username, sent_at DESC);

CREATE TABLE IF NOT EXISTS message_groups (
	name       TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS connections (
	connection_id TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	group_name    TEXT NOT NULL REFERENCES message_groups(name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_connections_group ON connections(group_name);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         BIGSERIAL PRIMARY KEY,
	username   TEXT NOT NULL UNIQUE,
	known_as   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
	id                 BIGSERIAL PRIMARY KEY,
	sender_username    TEXT NOT NULL,
	recipient_username TEXT NOT NULL,
	content            TEXT NOT NULL,
	sent_at            TIMESTAMPTZ NOT NULL,
	read_at            TIMESTAMPTZ,
	sender_deleted     BOOLEAN NOT NULL DEFAULT FALSE,
	recipient_deleted  BOOLEAN NOT NULL DEFAULT FALSE,
	CHECK (sender_username <> recipient_username)
);

CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_username, sent_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_username, sent_at DESC);

CREATE TABLE IF NOT EXISTS message_groups (
	name       TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS connections (
	connection_id TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	group_name    TEXT NOT NULL REFERENCES message_groups(name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_connections_group ON connections(group_name);
`
