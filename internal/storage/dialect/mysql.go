package dialect

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// mysqlMaxKeyBytes is the InnoDB index key limit. Unique VARCHAR columns are
// sized against it at 4 bytes per utf8mb4 character, 1 for ascii.
const mysqlMaxKeyBytes = 3072

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS wmbs_workflow (
  id    INTEGER AUTO_INCREMENT PRIMARY KEY,
  spec  VARCHAR(700) NOT NULL,
  name  VARCHAR(700) NOT NULL,
  owner VARCHAR(255) NOT NULL,
  task  VARCHAR(1250) NOT NULL,
  UNIQUE (name)
) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS wmbs_fileset (
  id          INTEGER AUTO_INCREMENT PRIMARY KEY,
  name        VARCHAR(1250) CHARACTER SET ascii NOT NULL,
  last_update BIGINT NOT NULL,
  UNIQUE (name)
) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS wmbs_subscription (
  id         INTEGER AUTO_INCREMENT PRIMARY KEY,
  fileset    INTEGER NOT NULL,
  workflow   INTEGER NOT NULL,
  split_algo VARCHAR(255) NOT NULL,
  subtype    VARCHAR(255) NOT NULL,
  UNIQUE (fileset, workflow),
  FOREIGN KEY (fileset) REFERENCES wmbs_fileset(id) ON DELETE CASCADE,
  FOREIGN KEY (workflow) REFERENCES wmbs_workflow(id) ON DELETE CASCADE
) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS wmbs_location (
  id        INTEGER AUTO_INCREMENT PRIMARY KEY,
  site_name VARCHAR(255) NOT NULL,
  job_slots INTEGER NOT NULL DEFAULT 0,
  UNIQUE (site_name)
) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS config_cache (
  doc_id       VARCHAR(64) PRIMARY KEY,
  rev          VARCHAR(64) NOT NULL,
  content_hash VARCHAR(128) NOT NULL,
  content      LONGTEXT NOT NULL,
  created_at   BIGINT NOT NULL,
  UNIQUE (content_hash)
) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS logdb_entry (
  id         VARCHAR(64) PRIMARY KEY,
  request    VARCHAR(255) NOT NULL,
  identifier VARCHAR(255) NOT NULL,
  thr        VARCHAR(255) NOT NULL,
  mtype      VARCHAR(32) NOT NULL,
  message    TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  INDEX logdb_entry_request_idx (request, created_at)
) ENGINE=InnoDB`,
}

var mysqlStatements = with(baseStatements, map[StatementID]string{
	WorkflowNew: `
INSERT INTO wmbs_workflow (spec, name, owner, task)
SELECT :spec, :name, :owner, :task FROM DUAL
WHERE NOT EXISTS (SELECT name FROM wmbs_workflow WHERE name = :name)`,
	FilesetNew: `
INSERT INTO wmbs_fileset (name, last_update)
SELECT :name, :last_update FROM DUAL
WHERE NOT EXISTS (SELECT name FROM wmbs_fileset WHERE name = :name)`,
	SubscriptionNew: `
INSERT INTO wmbs_subscription (fileset, workflow, split_algo, subtype)
SELECT f.id, w.id, :split_algo, :subtype
FROM wmbs_fileset f, wmbs_workflow w
WHERE f.name = :fileset AND w.name = :workflow
  AND NOT EXISTS (SELECT s.id FROM wmbs_subscription s WHERE s.fileset = f.id AND s.workflow = w.id)`,
	LocationNew: `
INSERT INTO wmbs_location (site_name, job_slots)
SELECT :location, :slots FROM DUAL
WHERE NOT EXISTS (SELECT site_name FROM wmbs_location WHERE site_name = :location)`,
	ConfigNew: `
INSERT INTO config_cache (doc_id, rev, content_hash, content, created_at)
SELECT :doc_id, :rev, :content_hash, :content, :created_at FROM DUAL
WHERE NOT EXISTS (SELECT doc_id FROM config_cache WHERE content_hash = :content_hash)`,
})

func newMySQL() *Dialect {
	return newDialect(MySQL, "mysql", bindQuestion, mysqlSchema, mysqlStatements, classifyMySQL)
}

func classifyMySQL(err error) Class {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return ClassUnavailable
	}
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return ClassOther
	}
	switch myErr.Number {
	case 1062: // ER_DUP_ENTRY
		return ClassDuplicate
	case 1040, // ER_CON_COUNT_ERROR
		1205, // ER_LOCK_WAIT_TIMEOUT
		1213: // ER_LOCK_DEADLOCK
		return ClassUnavailable
	}
	return ClassOther
}
