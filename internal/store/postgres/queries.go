package postgres

const queryInsertInvocation = `
INSERT INTO invocations (id, report, kind, scheduled_at, fired_at, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const queryInsertRunAttempt = `
INSERT INTO run_attempts (id, invocation_id, products_checked, issues_found, report_file, error, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const queryGetInvocationStatus = `
SELECT status FROM invocations WHERE id = $1
`

const queryUpdateInvocationStatus = `
UPDATE invocations
SET status = $1
WHERE id = $2
  AND status NOT IN ('succeeded', 'failed')
`

const queryListInvocations = `
SELECT id, report, kind, scheduled_at, fired_at, status, created_at
FROM invocations
WHERE report = $1
ORDER BY scheduled_at DESC
LIMIT $2 OFFSET $3
`

const queryGetStaleInvocations = `
SELECT id, report, kind, scheduled_at, fired_at, status, created_at
FROM invocations
WHERE status IN ('queued', 'running')
  AND fired_at < $1
ORDER BY fired_at ASC
LIMIT $2
`

const queryListRunAttempts = `
SELECT id, invocation_id, products_checked, issues_found, report_file, error, started_at, finished_at
FROM run_attempts
WHERE invocation_id = $1
ORDER BY started_at ASC
`
