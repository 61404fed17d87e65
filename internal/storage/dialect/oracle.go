package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sijms/go-ora/v2/network"
)

// oracleCreate wraps DDL so that re-running bootstrap ignores objects that
// already exist (ORA-00955).
func oracleCreate(ddl string) string {
	return fmt.Sprintf(`BEGIN
  EXECUTE IMMEDIATE '%s';
EXCEPTION
  WHEN OTHERS THEN
    IF SQLCODE != -955 THEN RAISE; END IF;
END;`, strings.ReplaceAll(ddl, "'", "''"))
}

var oracleSchema = []string{
	oracleCreate(`CREATE SEQUENCE wmbs_workflow_SEQ START WITH 1 INCREMENT BY 1 NOMAXVALUE`),
	oracleCreate(`CREATE SEQUENCE wmbs_fileset_SEQ START WITH 1 INCREMENT BY 1 NOMAXVALUE`),
	oracleCreate(`CREATE SEQUENCE wmbs_subscription_SEQ START WITH 1 INCREMENT BY 1 NOMAXVALUE`),
	oracleCreate(`CREATE SEQUENCE wmbs_location_SEQ START WITH 1 INCREMENT BY 1 NOMAXVALUE`),
	oracleCreate(`CREATE TABLE wmbs_workflow (
  id    INTEGER NOT NULL PRIMARY KEY,
  spec  VARCHAR2(700) NOT NULL,
  name  VARCHAR2(700) NOT NULL UNIQUE,
  owner VARCHAR2(255) NOT NULL,
  task  VARCHAR2(1250) NOT NULL
)`),
	oracleCreate(`CREATE TABLE wmbs_fileset (
  id          INTEGER NOT NULL PRIMARY KEY,
  name        VARCHAR2(1250) NOT NULL UNIQUE,
  last_update INTEGER NOT NULL
)`),
	oracleCreate(`CREATE TABLE wmbs_subscription (
  id         INTEGER NOT NULL PRIMARY KEY,
  fileset    INTEGER NOT NULL REFERENCES wmbs_fileset(id) ON DELETE CASCADE,
  workflow   INTEGER NOT NULL REFERENCES wmbs_workflow(id) ON DELETE CASCADE,
  split_algo VARCHAR2(255) NOT NULL,
  subtype    VARCHAR2(255) NOT NULL,
  CONSTRAINT wmbs_subscription_uniq UNIQUE (fileset, workflow)
)`),
	oracleCreate(`CREATE TABLE wmbs_location (
  id        INTEGER NOT NULL PRIMARY KEY,
  site_name VARCHAR2(255) NOT NULL UNIQUE,
  job_slots INTEGER DEFAULT 0 NOT NULL
)`),
	oracleCreate(`CREATE TABLE config_cache (
  doc_id       VARCHAR2(64) NOT NULL PRIMARY KEY,
  rev          VARCHAR2(64) NOT NULL,
  content_hash VARCHAR2(128) NOT NULL UNIQUE,
  content      CLOB NOT NULL,
  created_at   NUMBER(20) NOT NULL
)`),
	oracleCreate(`CREATE TABLE logdb_entry (
  id         VARCHAR2(64) NOT NULL PRIMARY KEY,
  request    VARCHAR2(255) NOT NULL,
  identifier VARCHAR2(255) NOT NULL,
  thr        VARCHAR2(255) NOT NULL,
  mtype      VARCHAR2(32) NOT NULL,
  message    CLOB NOT NULL,
  created_at NUMBER(20) NOT NULL
)`),
	oracleCreate(`CREATE INDEX logdb_entry_request_idx ON logdb_entry(request, created_at)`),
}

var oracleStatements = with(baseStatements, map[StatementID]string{
	WorkflowNew: `
INSERT INTO wmbs_workflow (id, spec, name, owner, task)
SELECT wmbs_workflow_SEQ.nextval, :spec, :name, :owner, :task FROM DUAL
WHERE NOT EXISTS (SELECT name FROM wmbs_workflow WHERE name = :name)`,
	FilesetNew: `
INSERT INTO wmbs_fileset (id, name, last_update)
SELECT wmbs_fileset_SEQ.nextval, :name, :last_update FROM DUAL
WHERE NOT EXISTS (SELECT name FROM wmbs_fileset WHERE name = :name)`,
	SubscriptionNew: `
INSERT INTO wmbs_subscription (id, fileset, workflow, split_algo, subtype)
SELECT wmbs_subscription_SEQ.nextval, f.id, w.id, :split_algo, :subtype
FROM wmbs_fileset f, wmbs_workflow w
WHERE f.name = :fileset AND w.name = :workflow
  AND NOT EXISTS (SELECT s.id FROM wmbs_subscription s WHERE s.fileset = f.id AND s.workflow = w.id)`,
	LocationNew: `
INSERT INTO wmbs_location (id, site_name, job_slots)
SELECT wmbs_location_SEQ.nextval, :location, :slots FROM DUAL
WHERE NOT EXISTS (SELECT site_name FROM wmbs_location WHERE site_name = :location)`,
	ConfigNew: `
INSERT INTO config_cache (doc_id, rev, content_hash, content, created_at)
SELECT :doc_id, :rev, :content_hash, :content, :created_at FROM DUAL
WHERE NOT EXISTS (SELECT doc_id FROM config_cache WHERE content_hash = :content_hash)`,
})

func newOracle() *Dialect {
	return newDialect(Oracle, "oracle", bindColon, oracleSchema, oracleStatements, classifyOracle)
}

func classifyOracle(err error) Class {
	var oraErr *network.OracleError
	if !errors.As(err, &oraErr) {
		return ClassOther
	}
	switch oraErr.ErrCode {
	case 1: // unique constraint violated
		return ClassDuplicate
	case 60, // deadlock detected
		3113,  // end-of-file on communication channel
		3114,  // not connected
		12170, // connect timeout
		12541: // no listener
		return ClassUnavailable
	}
	return ClassOther
}
