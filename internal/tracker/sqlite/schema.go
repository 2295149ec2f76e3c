package sqlite

// schema defines the ticket database layout.
// Applied with CREATE IF NOT EXISTS on every open, so reopening an existing
// database is safe.
const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'ready',
	branch           TEXT NOT NULL DEFAULT '',
	merge_request_id TEXT NOT NULL DEFAULT '',
	review_round     INTEGER NOT NULL DEFAULT 0,
	last_comment_at  TEXT NOT NULL DEFAULT '',
	failure_reason   TEXT NOT NULL DEFAULT '',
	retries_used     INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	closed_at        TEXT
);

CREATE TABLE IF NOT EXISTS ticket_deps (
	ticket_id     TEXT NOT NULL REFERENCES tickets(id),
	depends_on_id TEXT NOT NULL REFERENCES tickets(id),
	PRIMARY KEY (ticket_id, depends_on_id)
);

CREATE TABLE IF NOT EXISTS events (
	id        TEXT PRIMARY KEY,
	type      TEXT NOT NULL,
	ticket_id TEXT NOT NULL DEFAULT '',
	pass_id   TEXT NOT NULL,
	severity  TEXT NOT NULL,
	message   TEXT NOT NULL,
	timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
CREATE INDEX IF NOT EXISTS idx_events_ticket ON events(ticket_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
`
