package database

const postgresSchema = `
CREATE TABLE IF NOT EXISTS pump_jobs (
    id UUID PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    mode TEXT NOT NULL,
    status INTEGER NOT NULL,
    start_time TIMESTAMP NOT NULL,
    planned_end_time TIMESTAMP NOT NULL,
    end_time TIMESTAMP,
    result TEXT,
    session_seconds INTEGER NOT NULL DEFAULT 0,
    bank_seconds INTEGER NOT NULL DEFAULT 0,
    banked_seconds INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS pump_jobs_start_time_idx ON pump_jobs (start_time);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pump_jobs (
    id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    mode TEXT NOT NULL,
    status INTEGER NOT NULL,
    start_time TIMESTAMP NOT NULL,
    planned_end_time TIMESTAMP NOT NULL,
    end_time TIMESTAMP,
    result TEXT,
    session_seconds INTEGER NOT NULL DEFAULT 0,
    bank_seconds INTEGER NOT NULL DEFAULT 0,
    banked_seconds INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS pump_jobs_start_time_idx ON pump_jobs (start_time);
`
