package journal

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

CREATE TABLE IF NOT EXISTS failed_requests (
	id               TEXT PRIMARY KEY,
	operation        TEXT NOT NULL,
	url              TEXT NOT NULL DEFAULT '',
	request_headers  TEXT NOT NULL DEFAULT '',
	request_body     TEXT NOT NULL DEFAULT '',
	status_code      INTEGER NOT NULL DEFAULT 0,
	response_headers TEXT NOT NULL DEFAULT '',
	response_body    TEXT NOT NULL DEFAULT '',
	error            TEXT NOT NULL DEFAULT '',
	failed_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_failed_requests_failed_at ON failed_requests(failed_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_failed_requests_operation
	ON failed_requests(operation, failed_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
