package history

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    job         TEXT NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT,
    started_at  TEXT NOT NULL,
    finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
CREATE INDEX IF NOT EXISTS idx_runs_job ON runs(job);
`

const queryInsertRun = `
INSERT INTO runs (id, job, status, error, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?)
`

const queryRecentRuns = `
SELECT id, job, status, error, started_at, finished_at
FROM runs
ORDER BY finished_at DESC
LIMIT ?
`

const queryRecentRunsForJob = `
SELECT id, job, status, error, started_at, finished_at
FROM runs
WHERE job = ?
ORDER BY finished_at DESC
LIMIT ?
`

const queryPruneRuns = `
DELETE FROM runs
WHERE id IN (
    SELECT id FROM runs
    WHERE finished_at < ?
    ORDER BY finished_at ASC
    LIMIT ?
)
`
