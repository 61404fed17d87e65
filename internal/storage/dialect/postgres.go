package dialect

import (
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
)

var postgresSchema = []string{
	`CREATE SEQUENCE IF NOT EXISTS wmbs_workflow_seq`,
	`CREATE SEQUENCE IF NOT EXISTS wmbs_fileset_seq`,
	`CREATE SEQUENCE IF NOT EXISTS wmbs_subscription_seq`,
	`CREATE SEQUENCE IF NOT EXISTS wmbs_location_seq`,
	`CREATE TABLE IF NOT EXISTS wmbs_workflow (
  id    BIGINT PRIMARY KEY,
  spec  TEXT NOT NULL,
  name  TEXT NOT NULL UNIQUE,
  owner TEXT NOT NULL,
  task  TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS wmbs_fileset (
  id          BIGINT PRIMARY KEY,
  name        TEXT NOT NULL UNIQUE,
  last_update BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS wmbs_subscription (
  id         BIGINT PRIMARY KEY,
  fileset    BIGINT NOT NULL REFERENCES wmbs_fileset(id) ON DELETE CASCADE,
  workflow   BIGINT NOT NULL REFERENCES wmbs_workflow(id) ON DELETE CASCADE,
  split_algo TEXT NOT NULL,
  subtype    TEXT NOT NULL,
  UNIQUE (fileset, workflow)
)`,
	`CREATE TABLE IF NOT EXISTS wmbs_location (
  id        BIGINT PRIMARY KEY,
  site_name TEXT NOT NULL UNIQUE,
  job_slots INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS config_cache (
  doc_id       TEXT PRIMARY KEY,
  rev          TEXT NOT NULL,
  content_hash TEXT NOT NULL UNIQUE,
  content      TEXT NOT NULL,
  created_at   BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS logdb_entry (
  id         TEXT PRIMARY KEY,
  request    TEXT NOT NULL,
  identifier TEXT NOT NULL,
  thr        TEXT NOT NULL,
  mtype      TEXT NOT NULL,
  message    TEXT NOT NULL,
  created_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS logdb_entry_request_idx ON logdb_entry(request, created_at)`,
}

var postgresStatements = with(baseStatements, map[StatementID]string{
	WorkflowNew: `
INSERT INTO wmbs_workflow (id, spec, name, owner, task)
VALUES (nextval('wmbs_workflow_seq'), :spec, :name, :owner, :task)
ON CONFLICT (name) DO NOTHING`,
	FilesetNew: `
INSERT INTO wmbs_fileset (id, name, last_update)
VALUES (nextval('wmbs_fileset_seq'), :name, :last_update)
ON CONFLICT (name) DO NOTHING`,
	SubscriptionNew: `
INSERT INTO wmbs_subscription (id, fileset, workflow, split_algo, subtype)
SELECT nextval('wmbs_subscription_seq'), f.id, w.id, :split_algo, :subtype
FROM wmbs_fileset f, wmbs_workflow w
WHERE f.name = :fileset AND w.name = :workflow
ON CONFLICT (fileset, workflow) DO NOTHING`,
	LocationNew: `
INSERT INTO wmbs_location (id, site_name, job_slots)
VALUES (nextval('wmbs_location_seq'), :location, :slots)
ON CONFLICT (site_name) DO NOTHING`,
	ConfigNew: `
INSERT INTO config_cache (doc_id, rev, content_hash, content, created_at)
VALUES (:doc_id, :rev, :content_hash, :content, :created_at)
ON CONFLICT (content_hash) DO NOTHING`,
})

func newPostgres() *Dialect {
	return newDialect(Postgres, "pgx", bindDollar, postgresSchema, postgresStatements, classifyPostgres)
}

func classifyPostgres(err error) Class {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			return ClassDuplicate
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code),
			pgErr.Code == pgerrcode.SerializationFailure,
			pgErr.Code == pgerrcode.DeadlockDetected,
			pgErr.Code == pgerrcode.LockNotAvailable:
			return ClassUnavailable
		}
		return ClassOther
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return ClassUnavailable
	}
	return ClassOther
}
