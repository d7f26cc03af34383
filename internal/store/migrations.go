package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS inbox (
	id        TEXT PRIMARY KEY,
	position  INTEGER NOT NULL,
	sender    TEXT NOT NULL DEFAULT '',
	subject   TEXT NOT NULL DEFAULT '',
	excerpt   TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL DEFAULT 0,
	read_flag TEXT NOT NULL DEFAULT '',
	date      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_inbox_position ON inbox(position);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
