// Package agent implements the per-chat dialogue mode machine: it reads the
// chat's current mode, interprets the inbound text, performs the transition,
// and returns the effects the transport must execute.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/conorfennell/studypal/internal/domain"
	"github.com/conorfennell/studypal/internal/quiz"
	"github.com/conorfennell/studypal/internal/schedule"
)

// Dialogue modes. The empty string is the idle resting state; every
// non-idle mode means the next message answers a pending prompt.
const (
	ModeIdle               = ""
	ModeAwaitingStudy      = "awaiting_study"
	ModeAwaitingResource   = "awaiting_resource"
	ModeAwaitingQuizTopic  = "awaiting_quiz_topic"
	ModeAwaitingQuizAnswer = "awaiting_quiz_answer"
)

// scratchNudgeTopic remembers which topic the last nudge offered, so a bare
// "remembered"/"forgot" reply applies to it.
const scratchNudgeTopic = "nudge_topic"

const recentStudyCount = 5

const helpText = `Try:
• I studied ...
• record (then tell me the topic)
• recent
• recollect
• add resource (then paste a link)
• bag
• quiz me
• nudge
• cancel`

// SessionStore is the per-chat mode and scratchpad contract.
type SessionStore interface {
	Mode(chatID string) (string, error)
	SetMode(chatID, mode string) error
	Scratch(chatID, key string) (string, error)
	SetScratch(chatID, key, value string) error
	ClearScratch(chatID, key string) error
	ClearAllScratch(chatID string) error
}

// StudyLog is the read side of the study log contract; appends happen in the
// effect executor.
type StudyLog interface {
	RecentStudy(chatID string, n int) ([]domain.StudyRecord, error)
	RandomStudy(chatID string) (*domain.StudyRecord, error)
	MostRecentTopic(chatID string) (string, error)
}

// ResourceLog is the read side of the learning bag.
type ResourceLog interface {
	RecentResources(chatID string, n int) ([]domain.ResourceLink, error)
}

// ReviewStore persists spaced-repetition items.
type ReviewStore interface {
	Reviews(chatID string) ([]domain.ReviewItem, error)
	ReviewByTopic(chatID, topic string) (*domain.ReviewItem, error)
	SaveReview(item domain.ReviewItem) error
}

// Generator is the external quiz-writing collaborator.
type Generator interface {
	Generate(ctx context.Context, topic string, n int) ([]domain.QuizQuestion, error)
}

// Agent is the dialogue mode machine.
type Agent struct {
	sessions      SessionStore
	studyLog      StudyLog
	resources     ResourceLog
	reviews       ReviewStore
	engine        *quiz.Engine
	generator     Generator
	questionCount int
	now           func() time.Time
}

// New wires the machine to its collaborators. questionCount is how many
// questions a quiz asks for.
func New(sessions SessionStore, studyLog StudyLog, resources ResourceLog, reviews ReviewStore, engine *quiz.Engine, generator Generator, questionCount int) *Agent {
	return &Agent{
		sessions:      sessions,
		studyLog:      studyLog,
		resources:     resources,
		reviews:       reviews,
		engine:        engine,
		generator:     generator,
		questionCount: questionCount,
		now:           time.Now,
	}
}

// Handle is the single entry point: one inbound message in, the resulting
// effects out. Every path either fully commits a mode transition or leaves
// the mode untouched.
func (a *Agent) Handle(ctx context.Context, chatID, text string) ([]Effect, error) {
	text = Normalize(text)
	if text == "" {
		return []Effect{NoOp{}}, nil
	}

	// Help and cancel are honored from every mode.
	if isHelp(text) {
		return []Effect{menuEffect()}, nil
	}
	if isCancel(text) {
		return a.cancel(chatID)
	}

	mode, err := a.sessions.Mode(chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to read mode for chat %s: %w", chatID, err)
	}

	switch mode {
	case ModeAwaitingStudy:
		return a.commitStudy(chatID, text)
	case ModeAwaitingResource:
		return a.saveResource(chatID, text)
	case ModeAwaitingQuizTopic:
		return a.startQuiz(ctx, chatID, text)
	case ModeAwaitingQuizAnswer:
		return a.continueQuiz(ctx, chatID, text)
	default:
		return a.handleIdle(ctx, chatID, text)
	}
}

func (a *Agent) handleIdle(_ context.Context, chatID, text string) ([]Effect, error) {
	switch {
	case isRecord(text):
		if err := a.sessions.SetMode(chatID, ModeAwaitingStudy); err != nil {
			return nil, fmt.Errorf("failed to enter study mode for chat %s: %w", chatID, err)
		}
		return []Effect{SendText{"📝 What did you study? (or type cancel)"}}, nil

	case isAddResource(text):
		if err := a.sessions.SetMode(chatID, ModeAwaitingResource); err != nil {
			return nil, fmt.Errorf("failed to enter resource mode for chat %s: %w", chatID, err)
		}
		return []Effect{SendText{"🎒 Send a link to save (or type cancel)."}}, nil

	case isQuiz(text):
		if err := a.sessions.SetMode(chatID, ModeAwaitingQuizTopic); err != nil {
			return nil, fmt.Errorf("failed to enter quiz-topic mode for chat %s: %w", chatID, err)
		}
		return []Effect{SendText{`❓ Which topic should I quiz you on? (say "recent" for your latest study)`}}, nil

	case isRecent(text):
		return a.recent(chatID)

	case isRecollect(text):
		return a.recollect(chatID)

	case isBag(text):
		return a.bag(chatID)

	case isNudge(text):
		return a.nudge(chatID)
	}

	if remembered, topic, ok := extractOutcome(text); ok {
		return a.recordOutcome(chatID, remembered, topic)
	}

	if topic := extractStudyTopic(text); topic != "" {
		return a.commitStudy(chatID, text)
	}

	return []Effect{SendText{`Got it. Type "help" for commands.`}}, nil
}

// cancel is immediate and destructive: the quiz session and scratch state
// are discarded, not suspended.
func (a *Agent) cancel(chatID string) ([]Effect, error) {
	if err := a.engine.Cancel(chatID); err != nil {
		return nil, err
	}
	if err := a.sessions.ClearAllScratch(chatID); err != nil {
		return nil, err
	}
	if err := a.sessions.SetMode(chatID, ModeIdle); err != nil {
		return nil, fmt.Errorf("failed to reset mode for chat %s: %w", chatID, err)
	}
	return []Effect{SendText{"✅ Cancelled."}}, nil
}

// commitStudy accepts either a full "I studied X" statement or a bare topic
// answered to the record prompt. Both land back in idle.
func (a *Agent) commitStudy(chatID, text string) ([]Effect, error) {
	topic := extractStudyTopic(text)
	if topic == "" {
		topic = text
	}
	if err := a.sessions.SetMode(chatID, ModeIdle); err != nil {
		return nil, fmt.Errorf("failed to reset mode for chat %s: %w", chatID, err)
	}
	return []Effect{
		PersistStudy{Topic: topic, RawText: text},
		SendText{fmt.Sprintf("✅ Saved. You studied: %q", topic)},
	}, nil
}

func (a *Agent) saveResource(chatID, text string) ([]Effect, error) {
	url := extractURL(text)
	if url == "" {
		// Stay in awaiting_resource; the prompt is still pending.
		return []Effect{SendText{"Paste a URL (or type cancel)."}}, nil
	}
	if err := a.sessions.SetMode(chatID, ModeIdle); err != nil {
		return nil, fmt.Errorf("failed to reset mode for chat %s: %w", chatID, err)
	}
	return []Effect{
		PersistResourceLink{Title: "Saved link", URL: url, RawText: text},
		SendText{"🔖 Saved to Learning Bag:\n" + url},
	}, nil
}

func (a *Agent) recent(chatID string) ([]Effect, error) {
	records, err := a.studyLog.RecentStudy(chatID, recentStudyCount)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent study for chat %s: %w", chatID, err)
	}
	if len(records) == 0 {
		return []Effect{SendText{`No study items yet. Try: "I studied EOQ"`}}, nil
	}
	lines := make([]string, 0, len(records))
	for i, record := range records {
		lines = append(lines, fmt.Sprintf("%d) %s (%s)", i+1, record.Topic, record.CreatedAt.Format("2006-01-02 15:04")))
	}
	return []Effect{SendText{"📌 Recent study:\n" + strings.Join(lines, "\n")}}, nil
}

func (a *Agent) recollect(chatID string) ([]Effect, error) {
	record, err := a.studyLog.RandomStudy(chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to pick random study for chat %s: %w", chatID, err)
	}
	if record == nil {
		return []Effect{SendText{`No study items yet. Try: "I studied EOQ"`}}, nil
	}
	return []Effect{SendText{fmt.Sprintf("🧠 Recollect:\n%s\n(%s)", record.Topic, record.CreatedAt.Format("2006-01-02 15:04"))}}, nil
}

func (a *Agent) bag(chatID string) ([]Effect, error) {
	links, err := a.resources.RecentResources(chatID, recentStudyCount)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources for chat %s: %w", chatID, err)
	}
	if len(links) == 0 {
		return []Effect{SendText{`Learning Bag is empty. Say "add resource" to save a link.`}}, nil
	}
	lines := make([]string, 0, len(links))
	for i, link := range links {
		lines = append(lines, fmt.Sprintf("%d) %s", i+1, link.URL))
	}
	return []Effect{SendText{"🎒 Learning Bag:\n" + strings.Join(lines, "\n")}}, nil
}

// nudge presents the due (or soonest upcoming) review item. The nudge is a
// read-only query plus a scratch note; recording the outcome happens when
// the remembered/forgot reply arrives.
func (a *Agent) nudge(chatID string) ([]Effect, error) {
	items, err := a.reviews.Reviews(chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for chat %s: %w", chatID, err)
	}
	picked := schedule.PickDueOrNext(items, a.now())
	if picked == nil {
		return []Effect{SendText{"Nothing to review yet — record some study first."}}, nil
	}
	if err := a.sessions.SetScratch(chatID, scratchNudgeTopic, picked.Topic); err != nil {
		return nil, fmt.Errorf("failed to note nudge topic for chat %s: %w", chatID, err)
	}

	var header string
	if picked.DueAt.After(a.now()) {
		header = fmt.Sprintf("🧠 Nothing due yet — next up on %s:", picked.DueAt.Format("Jan 2"))
	} else {
		header = "🧠 Time to recall:"
	}
	return []Effect{SendChoice{
		Text: fmt.Sprintf("%s\n%s\nDid you remember it?", header, picked.Topic),
		Buttons: [][]Choice{{
			{Label: "✅ Remembered", Data: "remembered"},
			{Label: "❌ Forgot", Data: "forgot"},
		}},
	}}, nil
}

func (a *Agent) recordOutcome(chatID string, remembered bool, topic string) ([]Effect, error) {
	if topic == "" {
		noted, err := a.sessions.Scratch(chatID, scratchNudgeTopic)
		if err != nil {
			return nil, fmt.Errorf("failed to read nudge topic for chat %s: %w", chatID, err)
		}
		topic = noted
	}
	if topic == "" {
		return []Effect{SendText{`Which topic? Say: "remembered <topic>" or "forgot <topic>".`}}, nil
	}

	item, err := a.reviews.ReviewByTopic(chatID, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to find review for chat %s: %w", chatID, err)
	}
	if item == nil {
		return []Effect{SendText{fmt.Sprintf("I don't have %q in your review list yet.", topic)}}, nil
	}

	updated := schedule.RecordOutcome(*item, remembered, a.now())
	if err := a.reviews.SaveReview(updated); err != nil {
		return nil, fmt.Errorf("failed to save review for chat %s: %w", chatID, err)
	}
	if err := a.sessions.ClearScratch(chatID, scratchNudgeTopic); err != nil {
		return nil, fmt.Errorf("failed to clear nudge topic for chat %s: %w", chatID, err)
	}

	if remembered {
		return []Effect{SendText{fmt.Sprintf("👍 Noted. %s comes back in %d days.", updated.Topic, updated.IntervalDays)}}, nil
	}
	return []Effect{SendText{fmt.Sprintf("🔁 No worries — %s comes back tomorrow.", updated.Topic)}}, nil
}

func (a *Agent) startQuiz(ctx context.Context, chatID, text string) ([]Effect, error) {
	topic := text
	if isMostRecentShortcut(text) {
		recent, err := a.studyLog.MostRecentTopic(chatID)
		if err != nil {
			return nil, fmt.Errorf("failed to read most recent topic for chat %s: %w", chatID, err)
		}
		if recent == "" {
			if err := a.sessions.SetMode(chatID, ModeIdle); err != nil {
				return nil, fmt.Errorf("failed to reset mode for chat %s: %w", chatID, err)
			}
			return []Effect{SendText{`Nothing studied yet. Try: "I studied EOQ"`}}, nil
		}
		topic = recent
	}

	questions, err := a.generator.Generate(ctx, topic, a.questionCount)
	if err != nil {
		slog.Warn("quiz generation failed", "chat_id", chatID, "topic", topic, "error", err)
		questions = nil
	}

	session, err := a.engine.Start(chatID, topic, questions)
	if err != nil {
		if errors.Is(err, quiz.ErrEmptyQuiz) {
			if modeErr := a.sessions.SetMode(chatID, ModeIdle); modeErr != nil {
				return nil, fmt.Errorf("failed to reset mode for chat %s: %w", chatID, modeErr)
			}
			return []Effect{SendText{"😕 I couldn't build a quiz on that. Try a different topic."}}, nil
		}
		return nil, err
	}

	if err := a.sessions.SetMode(chatID, ModeAwaitingQuizAnswer); err != nil {
		return nil, fmt.Errorf("failed to enter quiz-answer mode for chat %s: %w", chatID, err)
	}
	effects := []Effect{
		SendText{fmt.Sprintf("🎯 Quiz on %s — %d questions. Let's go!", session.Topic, session.Total())},
		questionEffect(&session.Questions[0], 0, session.Total()),
	}
	return effects, nil
}

func (a *Agent) continueQuiz(ctx context.Context, chatID, text string) ([]Effect, error) {
	session, err := a.engine.Active(chatID)
	if err != nil {
		if errors.Is(err, quiz.ErrSessionNotFound) {
			if modeErr := a.sessions.SetMode(chatID, ModeIdle); modeErr != nil {
				return nil, fmt.Errorf("failed to reset mode for chat %s: %w", chatID, modeErr)
			}
			return []Effect{SendText{`Session expired — say "quiz me" to start a new one.`}}, nil
		}
		return nil, err
	}

	result, err := a.engine.Submit(ctx, chatID, session.CurrentIndex, text)
	if err != nil {
		// Duplicate deliveries are rejected by the engine and ignored from
		// the user's perspective.
		if errors.Is(err, quiz.ErrStaleAnswer) || errors.Is(err, quiz.ErrAlreadyAnswered) {
			slog.Info("duplicate quiz answer ignored", "chat_id", chatID, "error", err)
			return []Effect{NoOp{}}, nil
		}
		return nil, err
	}

	question := session.Questions[session.CurrentIndex]
	effects := []Effect{SendText{answerFeedback(&question, result)}}

	if result.Done {
		effects = append(effects, SendText{fmt.Sprintf("🏁 Quiz complete! Final score: %d/%d", result.SessionScore, result.Total)})
		if err := a.engine.Cancel(chatID); err != nil {
			return nil, err
		}
		if err := a.sessions.SetMode(chatID, ModeIdle); err != nil {
			return nil, fmt.Errorf("failed to reset mode for chat %s: %w", chatID, err)
		}
		return effects, nil
	}

	next, err := a.engine.CurrentQuestion(chatID)
	if err != nil {
		return nil, err
	}
	effects = append(effects, questionEffect(next, session.CurrentIndex+1, result.Total))
	return effects, nil
}

func menuEffect() Effect {
	return SendChoice{
		Text: "Choose an action:\n\n" + helpText,
		Buttons: [][]Choice{
			{{Label: "📝 Record study", Data: "record"}, {Label: "📌 Recent", Data: "recent"}},
			{{Label: "🧠 Recollect", Data: "recollect"}, {Label: "🎒 Add resource", Data: "add resource"}},
			{{Label: "❓ Quiz me", Data: "quiz me"}, {Label: "⏰ Nudge", Data: "nudge"}},
			{{Label: "❌ Cancel", Data: "cancel"}},
		},
	}
}

func questionEffect(q *domain.QuizQuestion, index, total int) Effect {
	header := fmt.Sprintf("Q%d/%d: %s", index+1, total, q.Prompt)
	if q.Kind != domain.KindChoice {
		return SendText{header}
	}

	labels := make([]string, 0, len(q.Options))
	for label := range q.Options {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var b strings.Builder
	b.WriteString(header)
	buttons := make([]Choice, 0, len(labels))
	for _, label := range labels {
		fmt.Fprintf(&b, "\n%s) %s", label, q.Options[label])
		buttons = append(buttons, Choice{Label: label, Data: label})
	}
	return SendChoice{Text: b.String(), Buttons: [][]Choice{buttons}}
}

func answerFeedback(q *domain.QuizQuestion, result quiz.Result) string {
	var b strings.Builder
	if q.Kind == domain.KindChoice {
		if result.Correct {
			b.WriteString("✅ Correct!")
		} else {
			fmt.Fprintf(&b, "❌ Not quite — the answer was %s.", q.Correct)
		}
		if q.Explanation != "" {
			b.WriteString("\n")
			b.WriteString(q.Explanation)
		}
	} else {
		fmt.Fprintf(&b, "🧪 Score: %d/10", result.Score)
		if result.Verdict != "" {
			b.WriteString(" — ")
			b.WriteString(result.Verdict)
		}
		if result.ModelAnswer != "" {
			b.WriteString("\nModel answer: ")
			b.WriteString(result.ModelAnswer)
		}
	}
	fmt.Fprintf(&b, "\nRunning score: %d/%d", result.SessionScore, result.Total)
	return b.String()
}
