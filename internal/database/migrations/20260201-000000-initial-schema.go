package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260201-000000",
		Description: "initial devlens schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				github_id BIGINT NOT NULL UNIQUE,
				github_login TEXT NOT NULL,
				email TEXT NOT NULL DEFAULT '',
				avatar_url TEXT NOT NULL DEFAULT '',
				encrypted_access_token TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,

			`CREATE TABLE IF NOT EXISTS repositories (
				id TEXT PRIMARY KEY,
				provider TEXT NOT NULL DEFAULT 'github',
				canonical_url TEXT NOT NULL UNIQUE,
				owner TEXT NOT NULL,
				name TEXT NOT NULL,
				default_branch TEXT NOT NULL DEFAULT '',
				head_commit TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				language TEXT NOT NULL DEFAULT '',
				stars INTEGER NOT NULL DEFAULT 0,
				forks INTEGER NOT NULL DEFAULT 0,
				size_kb INTEGER NOT NULL DEFAULT 0,
				last_analyzed_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				UNIQUE (owner, name)
			)`,

			`CREATE TABLE IF NOT EXISTS analysis_jobs (
				id TEXT PRIMARY KEY,
				repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
				user_id TEXT REFERENCES users(id) ON DELETE SET NULL,
				commit_sha TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'queued',
				idempotency_key TEXT,
				force_reanalyze BOOLEAN NOT NULL DEFAULT false,
				progress INTEGER NOT NULL DEFAULT 0,
				progress_detail TEXT NOT NULL DEFAULT '',
				error_code TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				retry_count INTEGER NOT NULL DEFAULT 0,
				next_retry_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				completed_at TIMESTAMPTZ
			)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_status_retry ON analysis_jobs (status, next_retry_at)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_repo_commit_key ON analysis_jobs (repository_id, commit_sha, idempotency_key)`,
			`CREATE INDEX IF NOT EXISTS idx_jobs_repo_commit_status_created ON analysis_jobs (repository_id, commit_sha, status, created_at)`,

			`CREATE TABLE IF NOT EXISTS analysis_results (
				id TEXT PRIMARY KEY,
				job_id TEXT NOT NULL REFERENCES analysis_jobs(id) ON DELETE CASCADE,
				repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
				commit_sha TEXT NOT NULL,
				cache_key TEXT NOT NULL,
				summary TEXT NOT NULL DEFAULT '',
				quality_score INTEGER NOT NULL DEFAULT 0,
				language_breakdown_json TEXT NOT NULL DEFAULT '[]',
				contributor_stats_json TEXT NOT NULL DEFAULT '{}',
				tech_debt_flags_json TEXT NOT NULL DEFAULT '{}',
				file_tree_json TEXT NOT NULL DEFAULT '{}',
				dependency_graph_json TEXT NOT NULL DEFAULT '[]',
				file_count INTEGER NOT NULL DEFAULT 0,
				chunk_count INTEGER NOT NULL DEFAULT 0,
				llm_provider TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				UNIQUE (cache_key)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_results_repo_created ON analysis_results (repository_id, created_at)`,

			`CREATE TABLE IF NOT EXISTS code_chunks (
				id TEXT PRIMARY KEY,
				repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
				commit_sha TEXT NOT NULL,
				path TEXT NOT NULL,
				language TEXT NOT NULL DEFAULT '',
				start_line INTEGER NOT NULL,
				end_line INTEGER NOT NULL,
				content TEXT NOT NULL,
				vector_point_id TEXT NOT NULL DEFAULT '',
				fts TSVECTOR,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				UNIQUE (repository_id, path, start_line)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chunks_repo_path ON code_chunks (repository_id, path)`,
			`CREATE INDEX IF NOT EXISTS idx_chunks_fts ON code_chunks USING GIN (fts)`,

			`CREATE OR REPLACE FUNCTION code_chunks_fts_trigger() RETURNS trigger AS $$
			BEGIN
				NEW.fts := setweight(to_tsvector('english', coalesce(NEW.path, '')), 'A') ||
					setweight(to_tsvector('english', coalesce(NEW.content, '')), 'B');
				RETURN NEW;
			END
			$$ LANGUAGE plpgsql`,
			`CREATE TRIGGER code_chunks_fts_update
				BEFORE INSERT OR UPDATE OF path, content ON code_chunks
				FOR EACH ROW EXECUTE FUNCTION code_chunks_fts_trigger()`,

			`CREATE TABLE IF NOT EXISTS chat_sessions (
				id TEXT PRIMARY KEY,
				repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
				commit_sha TEXT NOT NULL,
				user_id TEXT REFERENCES users(id) ON DELETE SET NULL,
				share_token_id TEXT,
				title TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_sessions_repo ON chat_sessions (repository_id, created_at)`,

			`CREATE TABLE IF NOT EXISTS chat_messages (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				citations_json TEXT NOT NULL DEFAULT '[]',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages (session_id, created_at)`,

			`CREATE TABLE IF NOT EXISTS refresh_tokens (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				token_hash TEXT NOT NULL UNIQUE,
				family_id TEXT NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL,
				used_at TIMESTAMPTZ,
				revoked_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens (user_id)`,

			`CREATE TABLE IF NOT EXISTS share_tokens (
				id TEXT PRIMARY KEY,
				jti TEXT NOT NULL UNIQUE,
				repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
				created_by TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				expires_at TIMESTAMPTZ NOT NULL,
				revoked_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,

			`CREATE TABLE IF NOT EXISTS api_keys (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				key_hash TEXT NOT NULL UNIQUE,
				key_prefix TEXT NOT NULL,
				key_last4 TEXT NOT NULL DEFAULT '',
				expires_at TIMESTAMPTZ,
				last_used_at TIMESTAMPTZ,
				revoked_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys (user_id)`,

			`CREATE TABLE IF NOT EXISTS dead_letter_jobs (
				id TEXT PRIMARY KEY,
				job_id TEXT NOT NULL,
				repository_id TEXT NOT NULL,
				commit_sha TEXT NOT NULL,
				last_status TEXT NOT NULL,
				error_code TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				retry_count INTEGER NOT NULL DEFAULT 0,
				metadata_json TEXT NOT NULL DEFAULT '{}',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_dead_letter_job ON dead_letter_jobs (job_id)`,
		},
	})
}
