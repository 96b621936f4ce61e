// Package sqlite provides the SQLite implementation of the questionmatch
// storage contracts, backed by the pure-Go modernc.org/sqlite driver.
package sqlite

// Schema creates every table and index used by the store. All statements are
// idempotent so the schema is applied on every open.
//
// Cache timestamps are stored as unix nanoseconds so that freshness checks
// compare integers rather than formatted strings.
const Schema = `
CREATE TABLE IF NOT EXISTS questions (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    question_id TEXT NOT NULL UNIQUE,
    question_text TEXT NOT NULL,
    category TEXT NOT NULL,
    difficulty TEXT NOT NULL,
    topics TEXT NOT NULL DEFAULT '[]',
    job_roles TEXT NOT NULL DEFAULT '[]',
    ideal_keywords TEXT NOT NULL DEFAULT '[]',
    embedding BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_questions_category ON questions(category);
CREATE INDEX IF NOT EXISTS idx_questions_difficulty ON questions(difficulty);

CREATE TABLE IF NOT EXISTS candidate_profiles (
    candidate_id TEXT PRIMARY KEY,
    profile_vector BLOB NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS interview_history (
    history_id INTEGER PRIMARY KEY AUTOINCREMENT,
    candidate_id TEXT NOT NULL,
    question_id TEXT NOT NULL,
    answer_text TEXT NOT NULL DEFAULT '',
    knowledge_score REAL NOT NULL,
    speech_score REAL NOT NULL,
    total_score REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_candidate ON interview_history(candidate_id, history_id DESC);

CREATE TABLE IF NOT EXISTS retrieval_cache (
    cache_id TEXT PRIMARY KEY,
    candidate_id TEXT NOT NULL,
    signature TEXT NOT NULL DEFAULT '',
    results TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cache_lookup ON retrieval_cache(candidate_id, signature, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cache_expiry ON retrieval_cache(expires_at);
`
