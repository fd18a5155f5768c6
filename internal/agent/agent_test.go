package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/studypal/internal/domain"
	"github.com/conorfennell/studypal/internal/quiz"
)

type fakeSessions struct {
	modes   map[string]string
	scratch map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{modes: map[string]string{}, scratch: map[string]string{}}
}

func (f *fakeSessions) Mode(chatID string) (string, error)     { return f.modes[chatID], nil }
func (f *fakeSessions) SetMode(chatID, mode string) error      { f.modes[chatID] = mode; return nil }
func (f *fakeSessions) Scratch(chatID, key string) (string, error) {
	return f.scratch[chatID+"/"+key], nil
}
func (f *fakeSessions) SetScratch(chatID, key, value string) error {
	f.scratch[chatID+"/"+key] = value
	return nil
}
func (f *fakeSessions) ClearScratch(chatID, key string) error {
	delete(f.scratch, chatID+"/"+key)
	return nil
}
func (f *fakeSessions) ClearAllScratch(chatID string) error {
	for k := range f.scratch {
		if strings.HasPrefix(k, chatID+"/") {
			delete(f.scratch, k)
		}
	}
	return nil
}

type fakeStudyLog struct {
	records []domain.StudyRecord
}

func (f *fakeStudyLog) RecentStudy(chatID string, n int) ([]domain.StudyRecord, error) {
	out := []domain.StudyRecord{}
	for i := len(f.records) - 1; i >= 0 && len(out) < n; i-- {
		if f.records[i].ChatID == chatID {
			out = append(out, f.records[i])
		}
	}
	return out, nil
}

func (f *fakeStudyLog) RandomStudy(chatID string) (*domain.StudyRecord, error) {
	records, _ := f.RecentStudy(chatID, 1)
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (f *fakeStudyLog) MostRecentTopic(chatID string) (string, error) {
	records, _ := f.RecentStudy(chatID, 1)
	if len(records) == 0 {
		return "", nil
	}
	return records[0].Topic, nil
}

type fakeResources struct {
	links []domain.ResourceLink
}

func (f *fakeResources) RecentResources(chatID string, n int) ([]domain.ResourceLink, error) {
	out := []domain.ResourceLink{}
	for i := len(f.links) - 1; i >= 0 && len(out) < n; i-- {
		if f.links[i].ChatID == chatID {
			out = append(out, f.links[i])
		}
	}
	return out, nil
}

type fakeReviews struct {
	items map[string]domain.ReviewItem // chatID/topic
}

func newFakeReviews() *fakeReviews {
	return &fakeReviews{items: map[string]domain.ReviewItem{}}
}

func (f *fakeReviews) Reviews(chatID string) ([]domain.ReviewItem, error) {
	var out []domain.ReviewItem
	for _, item := range f.items {
		if item.ChatID == chatID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeReviews) ReviewByTopic(chatID, topic string) (*domain.ReviewItem, error) {
	item, ok := f.items[chatID+"/"+topic]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (f *fakeReviews) SaveReview(item domain.ReviewItem) error {
	f.items[item.ChatID+"/"+item.Topic] = item
	return nil
}

type fakeQuizStore struct {
	sessions map[string]*domain.QuizSession
}

func newFakeQuizStore() *fakeQuizStore {
	return &fakeQuizStore{sessions: map[string]*domain.QuizSession{}}
}

func (f *fakeQuizStore) QuizSession(chatID string) (*domain.QuizSession, error) {
	s, ok := f.sessions[chatID]
	if !ok {
		return nil, nil
	}
	copied := *s
	copied.Questions = append([]domain.QuizQuestion(nil), s.Questions...)
	return &copied, nil
}

func (f *fakeQuizStore) SaveQuizSession(s *domain.QuizSession) error {
	copied := *s
	copied.Questions = append([]domain.QuizQuestion(nil), s.Questions...)
	f.sessions[s.ChatID] = &copied
	return nil
}

func (f *fakeQuizStore) DeleteQuizSession(chatID string) error {
	delete(f.sessions, chatID)
	return nil
}

type fakeGenerator struct {
	questions []domain.QuizQuestion
}

func (f *fakeGenerator) Generate(context.Context, string, int) ([]domain.QuizQuestion, error) {
	return f.questions, nil
}

type fakeGrader struct{ score int }

func (f *fakeGrader) Grade(context.Context, string, string, string, string) (domain.GradeResult, error) {
	return domain.GradeResult{Score: f.score, Verdict: "stub"}, nil
}

type fixture struct {
	agent     *Agent
	sessions  *fakeSessions
	studyLog  *fakeStudyLog
	resources *fakeResources
	reviews   *fakeReviews
	quizStore *fakeQuizStore
	generator *fakeGenerator
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions:  newFakeSessions(),
		studyLog:  &fakeStudyLog{},
		resources: &fakeResources{},
		reviews:   newFakeReviews(),
		quizStore: newFakeQuizStore(),
		generator: &fakeGenerator{},
		now:       time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}
	engine := quiz.NewEngine(f.quizStore, &fakeGrader{score: 8}, 6)
	f.agent = New(f.sessions, f.studyLog, f.resources, f.reviews, engine, f.generator, 3)
	f.agent.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) handle(t *testing.T, text string) []Effect {
	t.Helper()
	effects, err := f.agent.Handle(context.Background(), "chat-1", text)
	require.NoError(t, err)
	return effects
}

func texts(effects []Effect) []string {
	var out []string
	for _, e := range effects {
		switch v := e.(type) {
		case SendText:
			out = append(out, v.Text)
		case SendChoice:
			out = append(out, v.Text)
		}
	}
	return out
}

func findPersistStudy(effects []Effect) *PersistStudy {
	for _, e := range effects {
		if p, ok := e.(PersistStudy); ok {
			return &p
		}
	}
	return nil
}

func TestStudyStatementFromIdle(t *testing.T) {
	f := newFixture(t)

	effects := f.handle(t, "I studied EOQ")

	persist := findPersistStudy(effects)
	require.NotNil(t, persist)
	assert.Equal(t, "EOQ", persist.Topic)
	assert.Equal(t, "I studied EOQ", persist.RawText)
	assert.Equal(t, ModeIdle, f.sessions.modes["chat-1"], "mode remains idle")
}

func TestRecordFlow(t *testing.T) {
	f := newFixture(t)

	f.handle(t, "record")
	assert.Equal(t, ModeAwaitingStudy, f.sessions.modes["chat-1"])

	effects := f.handle(t, "supply chain bullwhip effect")
	persist := findPersistStudy(effects)
	require.NotNil(t, persist)
	assert.Equal(t, "supply chain bullwhip effect", persist.Topic)
	assert.Equal(t, ModeIdle, f.sessions.modes["chat-1"])
}

func TestAddResourceThenCancel(t *testing.T) {
	f := newFixture(t)

	f.handle(t, "add resource")
	assert.Equal(t, ModeAwaitingResource, f.sessions.modes["chat-1"])

	effects := f.handle(t, "cancel")
	assert.Equal(t, ModeIdle, f.sessions.modes["chat-1"])
	for _, e := range effects {
		_, isPersist := e.(PersistResourceLink)
		assert.False(t, isPersist, "cancel must not save a resource")
	}
}

func TestResourceFlow(t *testing.T) {
	f := newFixture(t)
	f.handle(t, "add resource")

	t.Run("text without a link reprompts and keeps the mode", func(t *testing.T) {
		effects := f.handle(t, "just some words")
		assert.Equal(t, ModeAwaitingResource, f.sessions.modes["chat-1"])
		assert.Contains(t, texts(effects)[0], "Paste a URL")
	})

	t.Run("text with a link commits and returns to idle", func(t *testing.T) {
		effects := f.handle(t, "this one https://example.com/eoq-guide")
		assert.Equal(t, ModeIdle, f.sessions.modes["chat-1"])
		var persisted *PersistResourceLink
		for _, e := range effects {
			if p, ok := e.(PersistResourceLink); ok {
				persisted = &p
			}
		}
		require.NotNil(t, persisted)
		assert.Equal(t, "https://example.com/eoq-guide", persisted.URL)
	})
}

func TestQuizFullFlow(t *testing.T) {
	f := newFixture(t)
	f.generator.questions = []domain.QuizQuestion{
		{Kind: domain.KindChoice, Prompt: "q1", Options: map[string]string{"A": "x", "B": "y"}, Correct: "A"},
		{Kind: domain.KindChoice, Prompt: "q2", Options: map[string]string{"A": "x", "B": "y"}, Correct: "B"},
		{Kind: domain.KindChoice, Prompt: "q3", Options: map[string]string{"A": "x", "B": "y"}, Correct: "A"},
	}

	f.handle(t, "quiz me")
	assert.Equal(t, ModeAwaitingQuizTopic, f.sessions.modes["chat-1"])

	effects := f.handle(t, "EOQ")
	assert.Equal(t, ModeAwaitingQuizAnswer, f.sessions.modes["chat-1"])
	require.GreaterOrEqual(t, len(effects), 2)
	assert.Contains(t, texts(effects)[1], "Q1/3")

	f.handle(t, "A")
	f.handle(t, "B")
	effects = f.handle(t, "A")

	all := texts(effects)
	require.NotEmpty(t, all)
	assert.Contains(t, all[len(all)-1], "Final score: 3/3")
	assert.Equal(t, ModeIdle, f.sessions.modes["chat-1"])
	assert.Empty(t, f.quizStore.sessions, "session cleared after completion")
}

func TestQuizOpenQuestionsUseGraderThreshold(t *testing.T) {
	f := newFixture(t)
	f.generator.questions = []domain.QuizQuestion{
		{Kind: domain.KindOpen, Prompt: "explain EOQ", Ideal: "outline"},
	}

	f.handle(t, "quiz me")
	f.handle(t, "EOQ")
	effects := f.handle(t, "it minimizes total inventory cost")

	all := texts(effects)
	assert.Contains(t, all[0], "Score: 8/10")
	assert.Contains(t, all[len(all)-1], "Final score: 1/1")
}

func TestQuizRecentShortcutWithEmptyLog(t *testing.T) {
	f := newFixture(t)

	f.handle(t, "quiz me")
	effects := f.handle(t, "recent")

	assert.Equal(t, ModeIdle, f.sessions.modes["chat-1"])
	assert.Contains(t, texts(effects)[0], "Nothing studied yet")
}

func TestQuizRecentShortcutUsesLatestTopic(t *testing.T) {
	f := newFixture(t)
	f.studyLog.records = []domain.StudyRecord{
		{ID: 1, ChatID: "chat-1", Topic: "EOQ"},
		{ID: 2, ChatID: "chat-1", Topic: "JIT"},
	}
	f.generator.questions = []domain.QuizQuestion{{Kind: domain.KindOpen, Prompt: "q", Ideal: "i"}}

	f.handle(t, "quiz me")
	effects := f.handle(t, "recent")

	assert.Equal(t, ModeAwaitingQuizAnswer, f.sessions.modes["chat-1"])
	assert.Contains(t, texts(effects)[0], "JIT")
}

func TestCancelMidQuizIsDestructive(t *testing.T) {
	f := newFixture(t)
	f.generator.questions = []domain.QuizQuestion{
		{Kind: domain.KindChoice, Prompt: "q1", Options: map[string]string{"A": "x"}, Correct: "A"},
		{Kind: domain.KindChoice, Prompt: "q2", Options: map[string]string{"A": "x"}, Correct: "A"},
	}
	f.handle(t, "quiz me")
	f.handle(t, "EOQ")
	f.handle(t, "A")

	f.handle(t, "cancel")

	assert.Equal(t, ModeIdle, f.sessions.modes["chat-1"])
	assert.Empty(t, f.quizStore.sessions, "in-progress session discarded, not suspended")
}

func TestCancelClearsOnlyOwnScratch(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sessions.SetScratch("chat-1", "nudge_topic", "EOQ"))
	require.NoError(t, f.sessions.SetScratch("chat-2", "nudge_topic", "JIT"))

	f.handle(t, "cancel")

	assert.Empty(t, f.sessions.scratch["chat-1/nudge_topic"])
	assert.Equal(t, "JIT", f.sessions.scratch["chat-2/nudge_topic"], "other chats keep their scratch")
}

func TestAnswerWithoutSessionReportsExpiry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sessions.SetMode("chat-1", ModeAwaitingQuizAnswer))

	effects := f.handle(t, "A")

	assert.Equal(t, ModeIdle, f.sessions.modes["chat-1"])
	assert.Contains(t, texts(effects)[0], "Session expired")
}

func TestNudgeWithNoReviews(t *testing.T) {
	f := newFixture(t)

	effects := f.handle(t, "nudge")
	assert.Contains(t, texts(effects)[0], "Nothing to review yet")
}

func TestNudgeThenOutcome(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reviews.SaveReview(domain.ReviewItem{
		ID: 1, ChatID: "chat-1", Topic: "EOQ", IntervalDays: 4,
		DueAt: f.now.AddDate(0, 0, -1),
	}))

	effects := f.handle(t, "nudge")
	require.Len(t, effects, 1)
	choice, ok := effects[0].(SendChoice)
	require.True(t, ok)
	assert.Contains(t, choice.Text, "EOQ")
	assert.Equal(t, "EOQ", f.sessions.scratch["chat-1/nudge_topic"])

	// Bare "remembered" applies to the nudged topic.
	effects = f.handle(t, "remembered")
	assert.Contains(t, texts(effects)[0], "8 days")

	saved, err := f.reviews.ReviewByTopic("chat-1", "EOQ")
	require.NoError(t, err)
	assert.Equal(t, 8, saved.IntervalDays)
	assert.Equal(t, f.now.AddDate(0, 0, 8), saved.DueAt)
	assert.Equal(t, domain.ReviewRemembered, saved.LastResult)
	assert.Empty(t, f.sessions.scratch["chat-1/nudge_topic"], "nudge note cleared")
}

func TestForgotResetsInterval(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reviews.SaveReview(domain.ReviewItem{
		ID: 1, ChatID: "chat-1", Topic: "EOQ", IntervalDays: 16,
		DueAt: f.now.AddDate(0, 0, -1),
	}))

	f.handle(t, "forgot EOQ")

	saved, err := f.reviews.ReviewByTopic("chat-1", "EOQ")
	require.NoError(t, err)
	assert.Equal(t, 1, saved.IntervalDays)
	assert.Equal(t, domain.ReviewForgot, saved.LastResult)
}

func TestOutcomeForUnknownTopic(t *testing.T) {
	f := newFixture(t)

	effects := f.handle(t, "remembered quantum chromodynamics")
	assert.Contains(t, texts(effects)[0], "don't have")
}

func TestRecentListsMostRecentFirst(t *testing.T) {
	f := newFixture(t)
	f.studyLog.records = []domain.StudyRecord{
		{ID: 1, ChatID: "chat-1", Topic: "EOQ", CreatedAt: f.now.AddDate(0, 0, -2)},
		{ID: 2, ChatID: "chat-1", Topic: "JIT", CreatedAt: f.now.AddDate(0, 0, -1)},
	}

	effects := f.handle(t, "recent")
	text := texts(effects)[0]
	assert.Contains(t, text, "1) JIT")
	assert.Contains(t, text, "2) EOQ")
}

func TestBagListsSavedLinks(t *testing.T) {
	f := newFixture(t)

	effects := f.handle(t, "bag")
	assert.Contains(t, texts(effects)[0], "empty")

	f.resources.links = []domain.ResourceLink{
		{ID: 1, ChatID: "chat-1", URL: "https://example.com/eoq"},
		{ID: 2, ChatID: "chat-1", URL: "https://example.com/jit"},
	}
	effects = f.handle(t, "bag")
	text := texts(effects)[0]
	assert.Contains(t, text, "1) https://example.com/jit")
	assert.Contains(t, text, "2) https://example.com/eoq")
}

func TestHelpShowsMenu(t *testing.T) {
	f := newFixture(t)

	effects := f.handle(t, "help")
	require.Len(t, effects, 1)
	choice, ok := effects[0].(SendChoice)
	require.True(t, ok)
	assert.NotEmpty(t, choice.Buttons)
}

func TestUnrecognizedTextFallsBack(t *testing.T) {
	f := newFixture(t)

	effects := f.handle(t, "what's the weather like")
	assert.Contains(t, texts(effects)[0], "help")
	assert.Equal(t, ModeIdle, f.sessions.modes["chat-1"])
}
