package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260310-000000",
		Description: "add claimed_at lease column to analysis_jobs",
		Up: []string{
			`ALTER TABLE analysis_jobs ADD COLUMN IF NOT EXISTS claimed_at TIMESTAMPTZ`,
			`DROP INDEX IF EXISTS idx_jobs_status_retry`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_status_claimed_retry ON analysis_jobs (status, claimed_at, next_retry_at)`,
		},
	})
}
