package resultstore

const schema = `
CREATE TABLE IF NOT EXISTS verdicts (
    id TEXT PRIMARY KEY,
    property_name TEXT NOT NULL,
    room_number TEXT,
    address TEXT,
    management_company TEXT,
    final_status TEXT NOT NULL,
    site_results TEXT NOT NULL,
    notes TEXT,
    verified_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_verdicts_property ON verdicts(property_name, room_number);
CREATE INDEX IF NOT EXISTS idx_verdicts_status ON verdicts(final_status);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    outcome TEXT NOT NULL,
    properties INTEGER NOT NULL DEFAULT 0,
    completed INTEGER NOT NULL DEFAULT 0,
    uploaded INTEGER NOT NULL DEFAULT 0,
    uploads_failed INTEGER NOT NULL DEFAULT 0,
    message TEXT,
    started_at TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`
