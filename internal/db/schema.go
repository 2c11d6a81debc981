package db

// The catalog records what was converted, not the converted content. Documents
// and attachments live on disk; rows point at them.
const schema = `
-- One row per (source, format, output). Re-running a conversion updates the row.
CREATE TABLE IF NOT EXISTS conversions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_name TEXT NOT NULL,       -- a.eml, archive.mbox#3
    source_path TEXT NOT NULL,
    entry INTEGER NOT NULL DEFAULT 0, -- 1-based mbox entry, 0 for .eml files
    format TEXT NOT NULL,
    output_path TEXT NOT NULL,
    anchor TEXT,                      -- section anchor inside a combined document
    content_hash TEXT NOT NULL,       -- hex SHA-256 of the source bytes
    message_id TEXT,
    subject TEXT,
    sender TEXT,
    date DATETIME,
    raw_date TEXT,
    reply_count INTEGER DEFAULT 0,
    body_text_preview TEXT,           -- first 10KB, for FTS5 only
    attachment_count INTEGER DEFAULT 0,
    file_size INTEGER,
    run_id TEXT,
    converted_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source_path, entry, format, output_path)
);

CREATE VIRTUAL TABLE IF NOT EXISTS conversions_fts USING fts5(
    subject,
    sender,
    source_name,
    body_text_preview,
    content='conversions',
    content_rowid='id'
);

-- External content tables must be told the old values on delete and update.
CREATE TRIGGER IF NOT EXISTS conversions_ai AFTER INSERT ON conversions BEGIN
    INSERT INTO conversions_fts(rowid, subject, sender, source_name, body_text_preview)
    VALUES (new.id, new.subject, new.sender, new.source_name, new.body_text_preview);
END;

CREATE TRIGGER IF NOT EXISTS conversions_ad AFTER DELETE ON conversions BEGIN
    INSERT INTO conversions_fts(conversions_fts, rowid, subject, sender, source_name, body_text_preview)
    VALUES ('delete', old.id, old.subject, old.sender, old.source_name, old.body_text_preview);
END;

CREATE TRIGGER IF NOT EXISTS conversions_au AFTER UPDATE ON conversions BEGIN
    INSERT INTO conversions_fts(conversions_fts, rowid, subject, sender, source_name, body_text_preview)
    VALUES ('delete', old.id, old.subject, old.sender, old.source_name, old.body_text_preview);
    INSERT INTO conversions_fts(rowid, subject, sender, source_name, body_text_preview)
    VALUES (new.id, new.subject, new.sender, new.source_name, new.body_text_preview);
END;

-- Attachments written for a conversion. The bytes stay in the attachments directory.
CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversion_id INTEGER NOT NULL,
    filename TEXT NOT NULL,
    path TEXT NOT NULL,
    size INTEGER,
    FOREIGN KEY(conversion_id) REFERENCES conversions(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,              -- uuid
    input_dir TEXT NOT NULL,
    format TEXT NOT NULL,
    combined BOOLEAN DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'running',
    total INTEGER DEFAULT 0,
    converted INTEGER DEFAULT 0,
    skipped INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_conversions_date ON conversions(date DESC);
CREATE INDEX IF NOT EXISTS idx_conversions_output_path ON conversions(output_path);
CREATE INDEX IF NOT EXISTS idx_conversions_run_id ON conversions(run_id);
CREATE INDEX IF NOT EXISTS idx_attachments_conversion_id ON attachments(conversion_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`
