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

CREATE TABLE IF NOT EXISTS emails (
	id              TEXT PRIMARY KEY,
	from_address    TEXT NOT NULL DEFAULT '',
	to_addresses    TEXT NOT NULL DEFAULT '[]',
	subject         TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	body_html       TEXT NOT NULL DEFAULT '',
	received_at     DATETIME NOT NULL,
	attachments     TEXT NOT NULL DEFAULT '[]',
	processed       INTEGER NOT NULL DEFAULT 0,
	processed_at    DATETIME,
	error           TEXT NOT NULL DEFAULT '',
	message_id      TEXT NOT NULL DEFAULT '',
	in_reply_to     TEXT NOT NULL DEFAULT '',
	references_list TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_emails_from ON emails(from_address);
CREATE INDEX IF NOT EXISTS idx_emails_received_at ON emails(received_at);
CREATE INDEX IF NOT EXISTS idx_emails_processed ON emails(processed);
CREATE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
DROP INDEX IF EXISTS idx_emails_message_id;

CREATE UNIQUE INDEX idx_emails_message_id
	ON emails(message_id) WHERE message_id != '';

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
