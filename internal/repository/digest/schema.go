package digest

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	weekly      INTEGER NOT NULL DEFAULT 0,
	provider    TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL DEFAULT '',
	total       INTEGER NOT NULL DEFAULT 0,
	fallback    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);

CREATE TABLE IF NOT EXISTS annotated_items (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	title    TEXT NOT NULL,
	link     TEXT NOT NULL DEFAULT '',
	source   TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL,
	summary  TEXT NOT NULL,
	origin   TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);
`
