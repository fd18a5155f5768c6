// Package quiz owns the lifecycle of the one active quiz session per chat:
// question ordering, exactly-once answer acceptance, scoring, and completion.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studypal/internal/domain"
)

var (
	// ErrEmptyQuiz means question generation produced nothing to ask.
	ErrEmptyQuiz = errors.New("quiz: no questions generated")
	// ErrSessionNotFound means an answer arrived with no active session.
	ErrSessionNotFound = errors.New("quiz: no active session")
	// ErrStaleAnswer means the submission targets an index other than the
	// current question, e.g. a retried webhook delivery.
	ErrStaleAnswer = errors.New("quiz: answer targets a stale question index")
	// ErrAlreadyAnswered means the targeted question already holds a response.
	ErrAlreadyAnswered = errors.New("quiz: question already answered")
)

// Store is the persistence contract for sessions, keyed by chat.
type Store interface {
	QuizSession(chatID string) (*domain.QuizSession, error)
	SaveQuizSession(s *domain.QuizSession) error
	DeleteQuizSession(chatID string) error
}

// Grader evaluates an open-question answer. Implementations must degrade to
// a deterministic grade rather than fail when the external collaborator is
// unavailable.
type Grader interface {
	Grade(ctx context.Context, topic, question, ideal, answer string) (domain.GradeResult, error)
}

// Result reports one accepted answer submission.
type Result struct {
	Correct      bool
	Score        int // literal 0-10 grade for this answer
	Verdict      string
	ModelAnswer  string
	Done         bool
	SessionScore int
	Total        int
}

// Engine drives quiz sessions against an injected store and grader.
type Engine struct {
	store     Store
	grader    Grader
	passScore int
	now       func() time.Time
}

// NewEngine creates an engine. passScore is the minimum 0-10 grade an open
// answer needs to count toward the session score.
func NewEngine(store Store, grader Grader, passScore int) *Engine {
	return &Engine{
		store:     store,
		grader:    grader,
		passScore: passScore,
		now:       time.Now,
	}
}

// Start replaces any existing session for the chat with a fresh one. The
// question list is fixed at this point; an empty list is ErrEmptyQuiz.
func (e *Engine) Start(chatID, topic string, questions []domain.QuizQuestion) (*domain.QuizSession, error) {
	if len(questions) == 0 {
		return nil, ErrEmptyQuiz
	}

	// Last start wins: a stale active or finished session is discarded.
	if err := e.store.DeleteQuizSession(chatID); err != nil {
		return nil, fmt.Errorf("failed to clear previous session for chat %s: %w", chatID, err)
	}

	session := &domain.QuizSession{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Topic:     topic,
		Questions: questions,
		Status:    domain.QuizActive,
		CreatedAt: e.now(),
	}
	if err := e.store.SaveQuizSession(session); err != nil {
		return nil, fmt.Errorf("failed to save new session for chat %s: %w", chatID, err)
	}
	return session, nil
}

// Active returns the chat's active session, or ErrSessionNotFound.
func (e *Engine) Active(chatID string) (*domain.QuizSession, error) {
	session, err := e.store.QuizSession(chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session for chat %s: %w", chatID, err)
	}
	if session == nil || session.Status != domain.QuizActive {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// CurrentQuestion returns the question awaiting an answer.
func (e *Engine) CurrentQuestion(chatID string) (*domain.QuizQuestion, error) {
	session, err := e.Active(chatID)
	if err != nil {
		return nil, err
	}
	return &session.Questions[session.CurrentIndex], nil
}

// Submit records the answer for the question at index and advances the
// session. Submissions against any index other than the current one fail
// with ErrStaleAnswer; a question that already holds a response fails with
// ErrAlreadyAnswered. Neither changes the score or position, which makes
// duplicate deliveries harmless.
func (e *Engine) Submit(ctx context.Context, chatID string, index int, answer string) (Result, error) {
	session, err := e.Active(chatID)
	if err != nil {
		return Result{}, err
	}
	if index != session.CurrentIndex {
		return Result{}, ErrStaleAnswer
	}

	question := &session.Questions[index]
	if question.Response != nil {
		return Result{}, ErrAlreadyAnswered
	}

	result := Result{Total: session.Total()}
	switch question.Kind {
	case domain.KindChoice:
		result.Correct = strings.EqualFold(strings.TrimSpace(answer), question.Correct)
		if result.Correct {
			result.Score = 10
		}
		result.ModelAnswer = question.Explanation
	case domain.KindOpen:
		grade, gradeErr := e.grader.Grade(ctx, session.Topic, question.Prompt, question.Ideal, answer)
		if gradeErr != nil {
			return Result{}, fmt.Errorf("failed to grade answer for chat %s: %w", chatID, gradeErr)
		}
		result.Score = grade.Score
		result.Correct = grade.Score >= e.passScore
		result.Verdict = grade.Verdict
		result.ModelAnswer = grade.ModelAnswer
	default:
		return Result{}, fmt.Errorf("unknown question kind %q", question.Kind)
	}

	question.Response = &domain.QuizResponse{
		Answer:  answer,
		Correct: result.Correct,
		Score:   result.Score,
	}
	if result.Correct {
		session.Score++
	}
	session.CurrentIndex++
	if session.CurrentIndex == session.Total() {
		session.Status = domain.QuizDone
	}

	if err := e.store.SaveQuizSession(session); err != nil {
		return Result{}, fmt.Errorf("failed to save session for chat %s: %w", chatID, err)
	}

	result.Done = session.Status == domain.QuizDone
	result.SessionScore = session.Score
	return result, nil
}

// Cancel unconditionally clears the chat's session. Clearing a chat with no
// session is a no-op.
func (e *Engine) Cancel(chatID string) error {
	if err := e.store.DeleteQuizSession(chatID); err != nil {
		return fmt.Errorf("failed to cancel session for chat %s: %w", chatID, err)
	}
	return nil
}
