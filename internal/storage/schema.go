package storage

const schema = `
-- Per-chat dialogue mode. Empty mode means idle. Last write wins.
CREATE TABLE IF NOT EXISTS state (
    chat_id TEXT PRIMARY KEY,
    mode TEXT NOT NULL DEFAULT '',
    updated_at DATETIME
);

-- Small per-chat key-value scratchpad for in-flight dialogue data.
CREATE TABLE IF NOT EXISTS scratch (
    chat_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,

    PRIMARY KEY (chat_id, key)
);

-- Append-only log of committed study records.
CREATE TABLE IF NOT EXISTS study_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts DATETIME NOT NULL,
    chat_id TEXT NOT NULL,
    topic TEXT NOT NULL,
    raw_text TEXT
);

-- Saved resource links (the learning bag).
CREATE TABLE IF NOT EXISTS resources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts DATETIME NOT NULL,
    chat_id TEXT NOT NULL,
    title TEXT,
    url TEXT NOT NULL,
    raw_text TEXT
);

-- Spaced-repetition state, one row per studied topic per chat.
CREATE TABLE IF NOT EXISTS reviews (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id TEXT NOT NULL,
    study_id INTEGER,
    topic TEXT NOT NULL,
    interval_days INTEGER NOT NULL,
    due_at DATETIME NOT NULL,
    last_result TEXT NOT NULL DEFAULT '',
    updated_at DATETIME,

    UNIQUE (chat_id, topic)
);

-- At most one quiz session per chat; questions serialized as JSON.
CREATE TABLE IF NOT EXISTS quiz_sessions (
    chat_id TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    topic TEXT NOT NULL,
    questions TEXT NOT NULL,
    current_index INTEGER NOT NULL,
    score INTEGER NOT NULL,
    status TEXT NOT NULL,
    created_at DATETIME
);

-- Question cards imported from notes sources, keyed by content hash.
CREATE TABLE IF NOT EXISTS note_cards (
    hash TEXT PRIMARY KEY,
    topic TEXT,
    question TEXT NOT NULL,
    answer TEXT,
    context TEXT,
    source_id INTEGER,

    FOREIGN KEY(source_id) REFERENCES sources(id)
);

-- Notes sources, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    last_scanned DATETIME
);
`
