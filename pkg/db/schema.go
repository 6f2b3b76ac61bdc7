package db

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- Crawl runs: one row per orchestrator run
CREATE TABLE IF NOT EXISTS crawl_runs (
    run_id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    discovered INTEGER DEFAULT 0,
    attempted INTEGER DEFAULT 0,
    succeeded INTEGER DEFAULT 0,
    blocked INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    dropped INTEGER DEFAULT 0,
    record_count INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at DESC);

-- Leads: one row per natural key (email, or source URL when no email)
CREATE TABLE IF NOT EXISTS leads (
    lead_id INTEGER PRIMARY KEY AUTOINCREMENT,
    natural_key TEXT NOT NULL UNIQUE,
    source_url TEXT NOT NULL,
    source TEXT,
    name TEXT,
    email TEXT,
    city TEXT,
    brokerage TEXT,
    last_sale TEXT,
    price TEXT,
    -- Field provenance as JSON object: {"email": "mailto", ...}
    provenance TEXT,
    first_run_id TEXT,
    last_run_id TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email);
CREATE INDEX IF NOT EXISTS idx_leads_updated ON leads(updated_at DESC);

-- Run candidates: every URL discovered in a run
CREATE TABLE IF NOT EXISTS run_candidates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    url TEXT NOT NULL,
    discovered_via TEXT NOT NULL,
    FOREIGN KEY (run_id) REFERENCES crawl_runs(run_id) ON DELETE CASCADE,
    UNIQUE(run_id, url)
);

CREATE INDEX IF NOT EXISTS idx_run_candidates_run ON run_candidates(run_id);
`
