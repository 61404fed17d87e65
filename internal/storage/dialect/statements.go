package dialect

// baseStatements are the statements every backend accepts verbatim. The
// backend files override the idempotent inserts, whose syntax differs.
var baseStatements = map[StatementID]string{
	WorkflowID: `
SELECT id FROM wmbs_workflow WHERE name = :name`,
	WorkflowDelete: `
DELETE FROM wmbs_workflow WHERE name = :name`,

	FilesetID: `
SELECT id FROM wmbs_fileset WHERE name = :name`,
	FilesetDelete: `
DELETE FROM wmbs_fileset WHERE name = :name`,

	SubscriptionID: `
SELECT id FROM wmbs_subscription
WHERE fileset = (SELECT id FROM wmbs_fileset WHERE name = :fileset)
  AND workflow = (SELECT id FROM wmbs_workflow WHERE name = :workflow)`,
	SubscriptionDelete: `
DELETE FROM wmbs_subscription
WHERE fileset = (SELECT id FROM wmbs_fileset WHERE name = :fileset)
  AND workflow = (SELECT id FROM wmbs_workflow WHERE name = :workflow)`,

	LocationID: `
SELECT id FROM wmbs_location WHERE site_name = :location`,
	LocationGet: `
SELECT id, site_name, job_slots FROM wmbs_location WHERE site_name = :location`,
	LocationDelete: `
DELETE FROM wmbs_location WHERE site_name = :location`,

	ConfigByHash: `
SELECT doc_id, rev FROM config_cache WHERE content_hash = :content_hash`,
	ConfigByID: `
SELECT rev, content FROM config_cache WHERE doc_id = :doc_id`,

	LogNew: `
INSERT INTO logdb_entry (id, request, identifier, thr, mtype, message, created_at)
VALUES (:id, :request, :identifier, :thr, :mtype, :message, :created_at)`,
	LogByRequest: `
SELECT request, identifier, thr, mtype, message, created_at FROM logdb_entry
WHERE request = :request
ORDER BY created_at, id`,
	LogByRequestType: `
SELECT request, identifier, thr, mtype, message, created_at FROM logdb_entry
WHERE request = :request AND mtype = :mtype
ORDER BY created_at, id`,
	LogDeleteRequest: `
DELETE FROM logdb_entry WHERE request = :request`,
	LogDeleteRequestType: `
DELETE FROM logdb_entry WHERE request = :request AND mtype = :mtype`,
	LogDeleteAgent: `
DELETE FROM logdb_entry
WHERE request = :request AND identifier = :identifier AND thr = :thr AND mtype = :mtype`,
	LogRequests: `
SELECT DISTINCT request FROM logdb_entry ORDER BY request`,
	LogCleanup: `
DELETE FROM logdb_entry WHERE created_at < :before`,
}
