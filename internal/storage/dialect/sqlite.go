package dialect

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS wmbs_workflow (
  id    INTEGER PRIMARY KEY AUTOINCREMENT,
  spec  TEXT NOT NULL,
  name  TEXT NOT NULL UNIQUE,
  owner TEXT NOT NULL,
  task  TEXT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS wmbs_fileset (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  name        TEXT NOT NULL UNIQUE,
  last_update INTEGER NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS wmbs_subscription (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  fileset    INTEGER NOT NULL REFERENCES wmbs_fileset(id) ON DELETE CASCADE,
  workflow   INTEGER NOT NULL REFERENCES wmbs_workflow(id) ON DELETE CASCADE,
  split_algo TEXT NOT NULL,
  subtype    TEXT NOT NULL,
  UNIQUE (fileset, workflow)
);`,
	`CREATE TABLE IF NOT EXISTS wmbs_location (
  id        INTEGER PRIMARY KEY AUTOINCREMENT,
  site_name TEXT NOT NULL UNIQUE,
  job_slots INTEGER NOT NULL DEFAULT 0
);`,
	`CREATE TABLE IF NOT EXISTS config_cache (
  doc_id       TEXT PRIMARY KEY,
  rev          TEXT NOT NULL,
  content_hash TEXT NOT NULL UNIQUE,
  content      TEXT NOT NULL,
  created_at   INTEGER NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS logdb_entry (
  id         TEXT PRIMARY KEY,
  request    TEXT NOT NULL,
  identifier TEXT NOT NULL,
  thr        TEXT NOT NULL,
  mtype      TEXT NOT NULL,
  message    TEXT NOT NULL,
  created_at INTEGER NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS logdb_entry_request_idx ON logdb_entry(request, created_at);`,
}

var sqliteStatements = with(baseStatements, map[StatementID]string{
	WorkflowNew: `
INSERT INTO wmbs_workflow (spec, name, owner, task)
SELECT :spec, :name, :owner, :task
WHERE NOT EXISTS (SELECT 1 FROM wmbs_workflow WHERE name = :name)`,
	FilesetNew: `
INSERT INTO wmbs_fileset (name, last_update)
SELECT :name, :last_update
WHERE NOT EXISTS (SELECT 1 FROM wmbs_fileset WHERE name = :name)`,
	SubscriptionNew: `
INSERT INTO wmbs_subscription (fileset, workflow, split_algo, subtype)
SELECT f.id, w.id, :split_algo, :subtype
FROM wmbs_fileset f, wmbs_workflow w
WHERE f.name = :fileset AND w.name = :workflow
  AND NOT EXISTS (SELECT 1 FROM wmbs_subscription s WHERE s.fileset = f.id AND s.workflow = w.id)`,
	LocationNew: `
INSERT INTO wmbs_location (site_name, job_slots)
SELECT :location, :slots
WHERE NOT EXISTS (SELECT 1 FROM wmbs_location WHERE site_name = :location)`,
	ConfigNew: `
INSERT INTO config_cache (doc_id, rev, content_hash, content, created_at)
SELECT :doc_id, :rev, :content_hash, :content, :created_at
WHERE NOT EXISTS (SELECT 1 FROM config_cache WHERE content_hash = :content_hash)`,
})

func newSQLite() *Dialect {
	return newDialect(SQLite, "sqlite", bindQuestion, sqliteSchema, sqliteStatements, classifySQLite)
}

func classifySQLite(err error) Class {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return ClassOther
	}
	code := serr.Code()
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return ClassDuplicate
	}
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
		return ClassUnavailable
	}
	return ClassOther
}
