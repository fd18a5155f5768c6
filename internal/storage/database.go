package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/studypal/internal/domain"
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db, now: time.Now}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Mode returns the chat's current dialogue mode. A chat that has never
// interacted is idle, reported as the empty string.
func (db *DB) Mode(chatID string) (string, error) {
	var mode string
	row := db.conn.QueryRow(`SELECT mode FROM state WHERE chat_id = ?`, chatID)
	if err := row.Scan(&mode); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to read mode for chat %s: %w", chatID, err)
	}
	return mode, nil
}

// SetMode overwrites the chat's mode. The write is a total overwrite with
// last-write-wins semantics.
func (db *DB) SetMode(chatID, mode string) error {
	_, err := db.conn.Exec(`
		INSERT INTO state (chat_id, mode, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET mode = excluded.mode, updated_at = excluded.updated_at
	`, chatID, mode, db.now())
	if err != nil {
		return fmt.Errorf("failed to set mode for chat %s: %w", chatID, err)
	}
	return nil
}

// Scratch returns the value stored under key for the chat, or "" when unset.
func (db *DB) Scratch(chatID, key string) (string, error) {
	var value string
	row := db.conn.QueryRow(`SELECT value FROM scratch WHERE chat_id = ? AND key = ?`, chatID, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to read scratch %s for chat %s: %w", key, chatID, err)
	}
	return value, nil
}

// SetScratch stores a scratchpad value for the chat.
func (db *DB) SetScratch(chatID, key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO scratch (chat_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(chat_id, key) DO UPDATE SET value = excluded.value
	`, chatID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set scratch %s for chat %s: %w", key, chatID, err)
	}
	return nil
}

// ClearScratch removes one scratchpad key for the chat.
func (db *DB) ClearScratch(chatID, key string) error {
	_, err := db.conn.Exec(`DELETE FROM scratch WHERE chat_id = ? AND key = ?`, chatID, key)
	if err != nil {
		return fmt.Errorf("failed to clear scratch %s for chat %s: %w", key, chatID, err)
	}
	return nil
}

// ClearAllScratch removes every scratchpad key for the chat.
func (db *DB) ClearAllScratch(chatID string) error {
	_, err := db.conn.Exec(`DELETE FROM scratch WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("failed to clear scratch for chat %s: %w", chatID, err)
	}
	return nil
}

// AppendStudy appends one study record and returns its log ID.
func (db *DB) AppendStudy(chatID, topic, rawText string) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO study_log (ts, chat_id, topic, raw_text) VALUES (?, ?, ?, ?)
	`, db.now(), chatID, topic, rawText)
	if err != nil {
		return 0, fmt.Errorf("failed to append study record for chat %s: %w", chatID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get study record ID for chat %s: %w", chatID, err)
	}
	return id, nil
}

// RecentStudy returns the chat's latest n study records, most recent first.
func (db *DB) RecentStudy(chatID string, n int) ([]domain.StudyRecord, error) {
	rows, err := db.conn.Query(`
		SELECT id, ts, chat_id, topic, raw_text
		FROM study_log WHERE chat_id = ? ORDER BY id DESC LIMIT ?
	`, chatID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent study for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var records []domain.StudyRecord
	for rows.Next() {
		var r domain.StudyRecord
		var raw sql.NullString
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.ChatID, &r.Topic, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan study record row: %w", err)
		}
		r.RawText = raw.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// RandomStudy returns one random study record, or nil when the log is empty.
func (db *DB) RandomStudy(chatID string) (*domain.StudyRecord, error) {
	var r domain.StudyRecord
	var raw sql.NullString
	row := db.conn.QueryRow(`
		SELECT id, ts, chat_id, topic, raw_text
		FROM study_log WHERE chat_id = ? ORDER BY RANDOM() LIMIT 1
	`, chatID)
	if err := row.Scan(&r.ID, &r.CreatedAt, &r.ChatID, &r.Topic, &raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pick random study for chat %s: %w", chatID, err)
	}
	r.RawText = raw.String
	return &r, nil
}

// MostRecentTopic returns the topic of the newest study record, or "" when
// nothing has been studied yet.
func (db *DB) MostRecentTopic(chatID string) (string, error) {
	var topic string
	row := db.conn.QueryRow(`
		SELECT topic FROM study_log WHERE chat_id = ? ORDER BY id DESC LIMIT 1
	`, chatID)
	if err := row.Scan(&topic); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to read most recent topic for chat %s: %w", chatID, err)
	}
	return topic, nil
}

// AppendResource appends one saved link and returns its ID.
func (db *DB) AppendResource(chatID, title, url, rawText string) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO resources (ts, chat_id, title, url, raw_text) VALUES (?, ?, ?, ?, ?)
	`, db.now(), chatID, title, url, rawText)
	if err != nil {
		return 0, fmt.Errorf("failed to append resource for chat %s: %w", chatID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get resource ID for chat %s: %w", chatID, err)
	}
	return id, nil
}

// RecentResources returns the chat's latest n saved links, most recent first.
func (db *DB) RecentResources(chatID string, n int) ([]domain.ResourceLink, error) {
	rows, err := db.conn.Query(`
		SELECT id, ts, chat_id, title, url, raw_text
		FROM resources WHERE chat_id = ? ORDER BY id DESC LIMIT ?
	`, chatID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var links []domain.ResourceLink
	for rows.Next() {
		var link domain.ResourceLink
		var raw sql.NullString
		if err := rows.Scan(&link.ID, &link.CreatedAt, &link.ChatID, &link.Title, &link.URL, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan resource row: %w", err)
		}
		link.RawText = raw.String
		links = append(links, link)
	}
	return links, rows.Err()
}

// Reviews returns every review item for the chat.
func (db *DB) Reviews(chatID string) ([]domain.ReviewItem, error) {
	rows, err := db.conn.Query(`
		SELECT id, chat_id, study_id, topic, interval_days, due_at, last_result
		FROM reviews WHERE chat_id = ?
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var items []domain.ReviewItem
	for rows.Next() {
		var item domain.ReviewItem
		var studyID sql.NullInt64
		if err := rows.Scan(&item.ID, &item.ChatID, &studyID, &item.Topic,
			&item.IntervalDays, &item.DueAt, &item.LastResult); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		item.StudyID = studyID.Int64
		items = append(items, item)
	}
	return items, rows.Err()
}

// ReviewByTopic returns the chat's review item for a topic, or nil when the
// topic was never studied.
func (db *DB) ReviewByTopic(chatID, topic string) (*domain.ReviewItem, error) {
	var item domain.ReviewItem
	var studyID sql.NullInt64
	row := db.conn.QueryRow(`
		SELECT id, chat_id, study_id, topic, interval_days, due_at, last_result
		FROM reviews WHERE chat_id = ? AND topic = ? COLLATE NOCASE
	`, chatID, topic)
	err := row.Scan(&item.ID, &item.ChatID, &studyID, &item.Topic,
		&item.IntervalDays, &item.DueAt, &item.LastResult)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find review for chat %s topic %s: %w", chatID, topic, err)
	}
	item.StudyID = studyID.Int64
	return &item, nil
}

// SaveReview inserts or updates the review item for (chat, topic). Review
// history is never deleted; restudying a topic refreshes the existing row.
func (db *DB) SaveReview(item domain.ReviewItem) error {
	_, err := db.conn.Exec(`
		INSERT INTO reviews (chat_id, study_id, topic, interval_days, due_at, last_result, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, topic) DO UPDATE SET
			study_id = excluded.study_id,
			interval_days = excluded.interval_days,
			due_at = excluded.due_at,
			last_result = excluded.last_result,
			updated_at = excluded.updated_at
	`, item.ChatID, item.StudyID, item.Topic, item.IntervalDays, item.DueAt, item.LastResult, db.now())
	if err != nil {
		return fmt.Errorf("failed to save review for chat %s topic %s: %w", item.ChatID, item.Topic, err)
	}
	return nil
}

// QuizSession returns the chat's stored session, or nil when none exists.
func (db *DB) QuizSession(chatID string) (*domain.QuizSession, error) {
	var s domain.QuizSession
	var questions string
	row := db.conn.QueryRow(`
		SELECT id, chat_id, topic, questions, current_index, score, status, created_at
		FROM quiz_sessions WHERE chat_id = ?
	`, chatID)
	err := row.Scan(&s.ID, &s.ChatID, &s.Topic, &questions, &s.CurrentIndex, &s.Score, &s.Status, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load quiz session for chat %s: %w", chatID, err)
	}
	if err := json.Unmarshal([]byte(questions), &s.Questions); err != nil {
		return nil, fmt.Errorf("failed to decode quiz questions for chat %s: %w", chatID, err)
	}
	return &s, nil
}

// SaveQuizSession inserts or replaces the chat's session.
func (db *DB) SaveQuizSession(s *domain.QuizSession) error {
	questions, err := json.Marshal(s.Questions)
	if err != nil {
		return fmt.Errorf("failed to encode quiz questions for chat %s: %w", s.ChatID, err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO quiz_sessions (chat_id, id, topic, questions, current_index, score, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			id = excluded.id,
			topic = excluded.topic,
			questions = excluded.questions,
			current_index = excluded.current_index,
			score = excluded.score,
			status = excluded.status,
			created_at = excluded.created_at
	`, s.ChatID, s.ID, s.Topic, string(questions), s.CurrentIndex, s.Score, s.Status, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save quiz session for chat %s: %w", s.ChatID, err)
	}
	return nil
}

// DeleteQuizSession removes the chat's session if one exists.
func (db *DB) DeleteQuizSession(chatID string) error {
	_, err := db.conn.Exec(`DELETE FROM quiz_sessions WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete quiz session for chat %s: %w", chatID, err)
	}
	return nil
}

// InsertNoteCard inserts a new imported card.
func (db *DB) InsertNoteCard(card domain.NoteCard, sourceID int64) error {
	_, err := db.conn.Exec(`
		INSERT INTO note_cards (hash, topic, question, answer, context, source_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, card.Hash, card.Topic, card.Question, card.Answer, card.Context, sourceID)
	if err != nil {
		return fmt.Errorf("failed to insert note card %s: %w", card.Hash, err)
	}
	return nil
}

// FindNoteCardByHash retrieves a card by its content hash, or nil when absent.
func (db *DB) FindNoteCardByHash(hash string) (*domain.NoteCard, error) {
	var card domain.NoteCard
	row := db.conn.QueryRow(`
		SELECT hash, topic, question, answer, context FROM note_cards WHERE hash = ?
	`, hash)
	err := row.Scan(&card.Hash, &card.Topic, &card.Question, &card.Answer, &card.Context)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find note card by hash %s: %w", hash, err)
	}
	return &card, nil
}

// NoteCardsByTopic returns up to limit cards whose topic matches, used as the
// offline question bank for quiz generation fallback.
func (db *DB) NoteCardsByTopic(topic string, limit int) ([]domain.NoteCard, error) {
	rows, err := db.conn.Query(`
		SELECT hash, topic, question, answer, context
		FROM note_cards WHERE topic = ? COLLATE NOCASE LIMIT ?
	`, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list note cards for topic %s: %w", topic, err)
	}
	defer rows.Close()

	var cards []domain.NoteCard
	for rows.Next() {
		var card domain.NoteCard
		if err := rows.Scan(&card.Hash, &card.Topic, &card.Question, &card.Answer, &card.Context); err != nil {
			return nil, fmt.Errorf("failed to scan note card row: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// NoteCardsBySourceID retrieves all cards associated with a source.
func (db *DB) NoteCardsBySourceID(sourceID int64) ([]domain.NoteCard, error) {
	rows, err := db.conn.Query(`
		SELECT hash, topic, question, answer, context
		FROM note_cards WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get note cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var cards []domain.NoteCard
	for rows.Next() {
		var card domain.NoteCard
		if err := rows.Scan(&card.Hash, &card.Topic, &card.Question, &card.Answer, &card.Context); err != nil {
			return nil, fmt.Errorf("failed to scan note card row for source ID %d: %w", sourceID, err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// DeleteNoteCardByHash removes a card that disappeared from its source.
func (db *DB) DeleteNoteCardByHash(hash string) error {
	_, err := db.conn.Exec(`DELETE FROM note_cards WHERE hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("failed to delete note card with hash %s: %w", hash, err)
	}
	return nil
}

// Source represents a notes source, either a local path or a git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// InsertSource inserts a new source path and returns its ID.
func (db *DB) InsertSource(path, sourceType string) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO sources (path, type, last_scanned) VALUES (?, ?, NULL)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source by its path, or nil when absent.
func (db *DB) FindSourceByPath(path string) (*Source, error) {
	var s Source
	row := db.conn.QueryRow(`
		SELECT id, path, type, last_scanned FROM sources WHERE path = ?
	`, path)
	if err := row.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// AllSources retrieves all stored sources.
func (db *DB) AllSources() ([]Source, error) {
	rows, err := db.conn.Query(`SELECT id, path, type, last_scanned FROM sources`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(sourceID int64) error {
	_, err := db.conn.Exec(`
		UPDATE sources SET last_scanned = ? WHERE id = ?
	`, db.now(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}
