package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/studypal/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "studypal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestModeRoundTrip(t *testing.T) {
	db := openTestDB(t)

	mode, err := db.Mode("chat-1")
	require.NoError(t, err)
	assert.Equal(t, "", mode, "a fresh chat starts idle")

	require.NoError(t, db.SetMode("chat-1", "awaiting_resource"))
	mode, err = db.Mode("chat-1")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_resource", mode)

	// Setting the mode is a total overwrite.
	require.NoError(t, db.SetMode("chat-1", ""))
	mode, err = db.Mode("chat-1")
	require.NoError(t, err)
	assert.Equal(t, "", mode)
}

func TestScratchRoundTrip(t *testing.T) {
	db := openTestDB(t)

	value, err := db.Scratch("chat-1", "nudge_topic")
	require.NoError(t, err)
	assert.Equal(t, "", value)

	require.NoError(t, db.SetScratch("chat-1", "nudge_topic", "EOQ"))
	require.NoError(t, db.SetScratch("chat-1", "other", "x"))

	value, err = db.Scratch("chat-1", "nudge_topic")
	require.NoError(t, err)
	assert.Equal(t, "EOQ", value)

	require.NoError(t, db.ClearScratch("chat-1", "nudge_topic"))
	value, err = db.Scratch("chat-1", "nudge_topic")
	require.NoError(t, err)
	assert.Equal(t, "", value)

	require.NoError(t, db.ClearAllScratch("chat-1"))
	value, err = db.Scratch("chat-1", "other")
	require.NoError(t, err)
	assert.Equal(t, "", value)
}

func TestStudyLog(t *testing.T) {
	db := openTestDB(t)

	topic, err := db.MostRecentTopic("chat-1")
	require.NoError(t, err)
	assert.Equal(t, "", topic)

	for _, studied := range []string{"EOQ", "JIT", "Kanban"} {
		_, err := db.AppendStudy("chat-1", studied, "I studied "+studied)
		require.NoError(t, err)
	}
	_, err = db.AppendStudy("chat-2", "Other", "I studied Other")
	require.NoError(t, err)

	records, err := db.RecentStudy("chat-1", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Kanban", records[0].Topic, "most recent first")
	assert.Equal(t, "JIT", records[1].Topic)

	topic, err = db.MostRecentTopic("chat-1")
	require.NoError(t, err)
	assert.Equal(t, "Kanban", topic)

	random, err := db.RandomStudy("chat-1")
	require.NoError(t, err)
	require.NotNil(t, random)
	assert.Equal(t, "chat-1", random.ChatID)

	random, err = db.RandomStudy("chat-3")
	require.NoError(t, err)
	assert.Nil(t, random, "empty log yields nil, not an error")
}

func TestReviewUpsert(t *testing.T) {
	db := openTestDB(t)
	due := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveReview(domain.ReviewItem{
		ChatID: "chat-1", StudyID: 1, Topic: "EOQ", IntervalDays: 1, DueAt: due,
	}))

	item, err := db.ReviewByTopic("chat-1", "eoq")
	require.NoError(t, err)
	require.NotNil(t, item, "topic lookup is case-insensitive")
	assert.Equal(t, 1, item.IntervalDays)

	item.IntervalDays = 2
	item.DueAt = due.AddDate(0, 0, 2)
	item.LastResult = domain.ReviewRemembered
	require.NoError(t, db.SaveReview(*item))

	items, err := db.Reviews("chat-1")
	require.NoError(t, err)
	require.Len(t, items, 1, "upsert must not duplicate the topic row")
	assert.Equal(t, 2, items[0].IntervalDays)
	assert.Equal(t, domain.ReviewRemembered, items[0].LastResult)

	missing, err := db.ReviewByTopic("chat-1", "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestQuizSessionRoundTrip(t *testing.T) {
	db := openTestDB(t)

	session, err := db.QuizSession("chat-1")
	require.NoError(t, err)
	assert.Nil(t, session)

	stored := &domain.QuizSession{
		ID:     "abc",
		ChatID: "chat-1",
		Topic:  "EOQ",
		Questions: []domain.QuizQuestion{
			{Kind: domain.KindChoice, Prompt: "pick", Options: map[string]string{"A": "x"}, Correct: "A"},
			{Kind: domain.KindOpen, Prompt: "explain", Ideal: "outline"},
		},
		CurrentIndex: 1,
		Score:        1,
		Status:       domain.QuizActive,
		CreatedAt:    time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	stored.Questions[0].Response = &domain.QuizResponse{Answer: "A", Correct: true, Score: 10}
	require.NoError(t, db.SaveQuizSession(stored))

	loaded, err := db.QuizSession("chat-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, stored.Topic, loaded.Topic)
	assert.Equal(t, 1, loaded.CurrentIndex)
	require.Len(t, loaded.Questions, 2)
	require.NotNil(t, loaded.Questions[0].Response)
	assert.Equal(t, "A", loaded.Questions[0].Response.Answer)
	assert.Nil(t, loaded.Questions[1].Response)

	require.NoError(t, db.DeleteQuizSession("chat-1"))
	loaded, err = db.QuizSession("chat-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Deleting again is a no-op.
	assert.NoError(t, db.DeleteQuizSession("chat-1"))
}

func TestNoteCardsAndSources(t *testing.T) {
	db := openTestDB(t)

	sourceID, err := db.InsertSource("/tmp/notes", "local")
	require.NoError(t, err)

	card := domain.NoteCard{Hash: "h1", Topic: "EOQ", Question: "Q", Answer: "A", Context: "C"}
	require.NoError(t, db.InsertNoteCard(card, sourceID))

	found, err := db.FindNoteCardByHash("h1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "EOQ", found.Topic)

	byTopic, err := db.NoteCardsByTopic("eoq", 5)
	require.NoError(t, err)
	assert.Len(t, byTopic, 1)

	bySource, err := db.NoteCardsBySourceID(sourceID)
	require.NoError(t, err)
	assert.Len(t, bySource, 1)

	source, err := db.FindSourceByPath("/tmp/notes")
	require.NoError(t, err)
	require.NotNil(t, source)
	assert.False(t, source.LastScanned.Valid)

	require.NoError(t, db.UpdateSourceLastScanned(sourceID))
	source, err = db.FindSourceByPath("/tmp/notes")
	require.NoError(t, err)
	assert.True(t, source.LastScanned.Valid)

	require.NoError(t, db.DeleteNoteCardByHash("h1"))
	found, err = db.FindNoteCardByHash("h1")
	require.NoError(t, err)
	assert.Nil(t, found)

	sources, err := db.AllSources()
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}
