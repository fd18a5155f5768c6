package domain

import "time"

// StudyRecord is one committed "I studied X" entry in the study log.
type StudyRecord struct {
	ID        int64
	ChatID    string
	Topic     string
	RawText   string
	CreatedAt time.Time
}

// ResourceLink is a saved link in the learning bag.
type ResourceLink struct {
	ID        int64
	ChatID    string
	Title     string
	URL       string
	RawText   string
	CreatedAt time.Time
}

// ReviewResult is the outcome of the last spaced review of an item.
type ReviewResult string

const (
	ReviewUnset      ReviewResult = ""
	ReviewRemembered ReviewResult = "remembered"
	ReviewForgot     ReviewResult = "forgot"
)

// ReviewItem tracks the spaced-repetition state of one studied topic.
// IntervalDays doubles on a remembered outcome (capped at the scheduler
// maximum) and resets to 1 on a forgotten one.
type ReviewItem struct {
	ID           int64
	ChatID       string
	StudyID      int64
	Topic        string
	IntervalDays int
	DueAt        time.Time
	LastResult   ReviewResult
}

// QuestionKind discriminates the two quiz question variants.
type QuestionKind string

const (
	// KindChoice questions are graded deterministically against Correct.
	KindChoice QuestionKind = "choice"
	// KindOpen questions are graded by the external grading collaborator.
	KindOpen QuestionKind = "open"
)

// QuizResponse is the user's answer to a question. It is set exactly once;
// a question with a non-nil Response rejects further submissions.
type QuizResponse struct {
	Answer  string `json:"answer"`
	Correct bool   `json:"correct"`
	// Score is the literal 0-10 grade. Choice questions record 0 or 10 so
	// that open-question nuance and choice results live in one field.
	Score int `json:"score"`
}

// QuizQuestion is immutable once created, apart from Response.
type QuizQuestion struct {
	Kind    QuestionKind      `json:"kind"`
	Prompt  string            `json:"prompt"`
	Options map[string]string `json:"options,omitempty"` // label -> text, choice kind only
	Correct string            `json:"correct,omitempty"` // expected label, choice kind only
	Ideal   string            `json:"ideal,omitempty"`   // model answer outline, open kind only
	// Explanation is shown after a choice answer; open questions show the
	// grader's model answer instead.
	Explanation string        `json:"explanation,omitempty"`
	Response    *QuizResponse `json:"response,omitempty"`
}

// QuizStatus is the lifecycle state of a session.
type QuizStatus string

const (
	QuizActive QuizStatus = "active"
	QuizDone   QuizStatus = "done"
)

// QuizSession is the one active quiz per chat. CurrentIndex and Score only
// ever increase; Status flips to done exactly when CurrentIndex == Total().
type QuizSession struct {
	ID           string         `json:"id"`
	ChatID       string         `json:"chat_id"`
	Topic        string         `json:"topic"`
	Questions    []QuizQuestion `json:"questions"`
	CurrentIndex int            `json:"current_index"`
	Score        int            `json:"score"`
	Status       QuizStatus     `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Total returns the fixed number of questions in the session.
func (s *QuizSession) Total() int {
	return len(s.Questions)
}

// GradeResult is what the grading collaborator returns for an open answer.
type GradeResult struct {
	Score       int      `json:"score"` // 0-10
	Verdict     string   `json:"verdict"`
	Good        []string `json:"what_was_good"`
	Improve     []string `json:"what_to_improve"`
	ModelAnswer string   `json:"model_answer"`
}

// NoteCard is a question-answer-context card imported from a notes source.
type NoteCard struct {
	Topic    string
	Question string
	Answer   string
	Context  string
	Hash     string
}
