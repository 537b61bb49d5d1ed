package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and transcript entries",
		SQL: `
			CREATE TABLE conversations (
				id          TEXT PRIMARY KEY,
				endpoint    TEXT NOT NULL,
				agent_name  TEXT NOT NULL DEFAULT '',
				session_id  TEXT NOT NULL DEFAULT '',
				archived_at TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_conversations_endpoint ON conversations (endpoint);

			CREATE TABLE transcript_entries (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				role            TEXT NOT NULL,
				content         TEXT NOT NULL,
				timestamp       TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_entries_conversation ON transcript_entries (conversation_id, id);
		`,
	},
}
