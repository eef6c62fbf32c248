package store

import (
	"fmt"

	"github.com/starford/reverie/internal/query"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	text       TEXT NOT NULL,
	entry_date TEXT NOT NULL DEFAULT '',
	image_path TEXT NOT NULL DEFAULT '',
	emotions   TEXT NOT NULL DEFAULT '[]',
	checksum   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_owner ON entries(owner_id, updated_at);

CREATE TABLE IF NOT EXISTS chunks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id    TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	text        TEXT NOT NULL,
	embedding   BLOB,
	UNIQUE(entry_id, chunk_index)
);

CREATE TABLE IF NOT EXISTS entry_embeddings (
	entry_id  TEXT PRIMARY KEY REFERENCES entries(id) ON DELETE CASCADE,
	embedding BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id        TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	sender          TEXT NOT NULL,
	text            TEXT NOT NULL,
	mode            TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_conversation ON chat_messages(owner_id, conversation_id, id);
`

const postgresSchemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	text       TEXT NOT NULL,
	entry_date TEXT NOT NULL DEFAULT '',
	image_path TEXT NOT NULL DEFAULT '',
	emotions   TEXT NOT NULL DEFAULT '[]',
	checksum   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_owner ON entries(owner_id, updated_at);

CREATE TABLE IF NOT EXISTS chunks (
	id          BIGSERIAL PRIMARY KEY,
	entry_id    TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	text        TEXT NOT NULL,
	embedding   vector(%[1]d),
	UNIQUE(entry_id, chunk_index)
);

CREATE TABLE IF NOT EXISTS entry_embeddings (
	entry_id  TEXT PRIMARY KEY REFERENCES entries(id) ON DELETE CASCADE,
	embedding vector(%[1]d) NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id              BIGSERIAL PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	sender          TEXT NOT NULL,
	text            TEXT NOT NULL,
	mode            TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_conversation ON chat_messages(owner_id, conversation_id, id);
`

// schema returns the DDL statements for d. SQLite accepts the whole script
// in one Exec; Postgres gets the extension first.
func schema(d query.Dialect, dims int) []string {
	if d.Name() == DriverPostgres {
		return []string{
			`CREATE EXTENSION IF NOT EXISTS vector`,
			fmt.Sprintf(postgresSchemaSQL, dims),
		}
	}
	return []string{sqliteSchemaSQL}
}
