// Package postgres provides the PostgreSQL implementation of the
// questionmatch storage contracts.
package postgres

// Schema creates the base tables. Vectors always live in BYTEA columns
// (little-endian float32); MigrationPgvector adds mirror vector columns when
// the extension is installed.
const Schema = `
CREATE TABLE IF NOT EXISTS questions (
    seq BIGSERIAL,
    question_id TEXT PRIMARY KEY,
    question_text TEXT NOT NULL,
    category TEXT NOT NULL,
    difficulty TEXT NOT NULL,
    topics JSONB NOT NULL DEFAULT '[]'::jsonb,
    job_roles JSONB NOT NULL DEFAULT '[]'::jsonb,
    ideal_keywords JSONB NOT NULL DEFAULT '[]'::jsonb,
    embedding BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_questions_seq ON questions(seq);
CREATE INDEX IF NOT EXISTS idx_questions_category ON questions(category);
CREATE INDEX IF NOT EXISTS idx_questions_difficulty ON questions(difficulty);

CREATE TABLE IF NOT EXISTS candidate_profiles (
    candidate_id TEXT PRIMARY KEY,
    profile_vector BYTEA NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS interview_history (
    history_id BIGSERIAL PRIMARY KEY,
    candidate_id TEXT NOT NULL,
    question_id TEXT NOT NULL,
    answer_text TEXT NOT NULL DEFAULT '',
    knowledge_score DOUBLE PRECISION NOT NULL,
    speech_score DOUBLE PRECISION NOT NULL,
    total_score DOUBLE PRECISION NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_candidate ON interview_history(candidate_id, history_id DESC);

CREATE TABLE IF NOT EXISTS retrieval_cache (
    cache_id UUID PRIMARY KEY,
    candidate_id TEXT NOT NULL,
    signature TEXT NOT NULL DEFAULT '',
    results JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cache_lookup ON retrieval_cache(candidate_id, signature, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cache_expiry ON retrieval_cache(expires_at);
`

// MigrationPgvector adds vector mirrors of the BYTEA columns.
const MigrationPgvector = `
ALTER TABLE questions ADD COLUMN IF NOT EXISTS embedding_vec vector;
ALTER TABLE candidate_profiles ADD COLUMN IF NOT EXISTS profile_vec vector;
`
