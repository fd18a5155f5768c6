// Package quizgen talks to the LLM collaborator that writes quiz questions
// and grades open answers. Collaborator failures never surface to the chat:
// generation falls back to the imported note-card bank, then to a template
// question, and grading falls back to a deterministic pass grade.
package quizgen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/conorfennell/studypal/internal/domain"
)

// FallbackGradeScore is the 0-10 grade assigned when the grading
// collaborator is unavailable.
const FallbackGradeScore = 6

// Config holds the LLM collaborator settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Bank is the local question bank consulted when the LLM is unavailable.
type Bank interface {
	NoteCardsByTopic(topic string, limit int) ([]domain.NoteCard, error)
}

// Service generates quizzes and grades answers.
type Service struct {
	client *openai.Client
	model  string
	bank   Bank
}

// New creates a Service. With an empty API key the service runs fully
// offline on its fallbacks.
func New(cfg Config, bank Bank) *Service {
	s := &Service{model: cfg.Model, bank: bank}
	if s.model == "" {
		s.model = "gpt-4.1-mini"
	}
	if cfg.APIKey != "" {
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		s.client = openai.NewClientWithConfig(clientConfig)
	}
	return s
}

const generateSystemPrompt = "You generate quizzes and must output strict JSON only."

func generateUserPrompt(topic string, n int) string {
	return fmt.Sprintf(`Create a short quiz on the topic: %s

Return ONLY valid JSON with this exact schema:
{
  "items": [
    {"q": "question text", "ideal": "ideal answer outline (2-4 bullets)",
     "options": {"A": "...", "B": "...", "C": "...", "D": "..."}, "correct": "A",
     "explanation": "why the correct option is right"}
  ]
}

Rules:
- Make %d questions.
- Mix open questions (omit options/correct) and multiple choice (include them).
- Mix: definition, application, mini-case, common pitfall.
- Keep each question answerable in <90 seconds.`, topic, n)
}

// Generate returns at least one question for the topic. The LLM result is
// preferred; a failing or absent LLM degrades to note-bank cards and finally
// to a single template question.
func (s *Service) Generate(ctx context.Context, topic string, n int) ([]domain.QuizQuestion, error) {
	if s.client != nil {
		content, err := s.chat(ctx, generateSystemPrompt, generateUserPrompt(topic, n))
		if err != nil {
			slog.Warn("quiz generation call failed, falling back", "topic", topic, "error", err)
		} else {
			questions, parseErr := parseQuizPayload(content)
			if parseErr != nil {
				slog.Warn("quiz generation returned unparsable payload, falling back", "topic", topic, "error", parseErr)
			} else if len(questions) > 0 {
				return questions, nil
			}
		}
	}
	return s.fallbackQuestions(topic, n), nil
}

const gradeSystemPrompt = "You are a strict evaluator. Output strict JSON only."

func gradeUserPrompt(topic, question, ideal, answer string) string {
	return fmt.Sprintf(`Topic: %s

Question: %s

Ideal answer outline:
%s

User answer:
%s

Grade the user answer strictly vs the ideal outline.
Return ONLY valid JSON with exactly:
{
  "score": 0-10,
  "verdict": "one sentence",
  "what_was_good": ["..."],
  "what_to_improve": ["..."],
  "model_answer": "a short corrected answer (max 6 lines)"
}`, topic, question, ideal, answer)
}

// Grade evaluates an open answer, degrading to a deterministic grade when
// the collaborator is unavailable. It never returns an error for the chat to
// see; the fallback is the error handling.
func (s *Service) Grade(ctx context.Context, topic, question, ideal, answer string) (domain.GradeResult, error) {
	if s.client != nil {
		content, err := s.chat(ctx, gradeSystemPrompt, gradeUserPrompt(topic, question, ideal, answer))
		if err != nil {
			slog.Warn("grading call failed, falling back", "topic", topic, "error", err)
		} else {
			var result domain.GradeResult
			if parseErr := json.Unmarshal([]byte(content), &result); parseErr != nil {
				slog.Warn("grading returned unparsable payload, falling back", "topic", topic, "error", parseErr)
			} else {
				result.Score = clampScore(result.Score)
				if result.ModelAnswer == "" {
					result.ModelAnswer = ideal
				}
				return result, nil
			}
		}
	}
	return fallbackGrade(ideal), nil
}

func (s *Service) chat(ctx context.Context, system, user string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type quizPayload struct {
	Items []quizItem `json:"items"`
}

type quizItem struct {
	Q           string            `json:"q"`
	Ideal       string            `json:"ideal"`
	Options     map[string]string `json:"options"`
	Correct     string            `json:"correct"`
	Explanation string            `json:"explanation"`
}

func parseQuizPayload(content string) ([]domain.QuizQuestion, error) {
	var payload quizPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode quiz payload: %w", err)
	}

	var questions []domain.QuizQuestion
	for _, item := range payload.Items {
		if strings.TrimSpace(item.Q) == "" {
			continue
		}
		question := domain.QuizQuestion{
			Kind:        domain.KindOpen,
			Prompt:      item.Q,
			Ideal:       item.Ideal,
			Explanation: item.Explanation,
		}
		if len(item.Options) > 0 && item.Correct != "" {
			question.Kind = domain.KindChoice
			question.Options = item.Options
			question.Correct = item.Correct
			question.Ideal = ""
		}
		questions = append(questions, question)
	}
	return questions, nil
}

// fallbackQuestions builds open questions from the note-card bank, or a
// single template question when the bank has nothing for the topic.
func (s *Service) fallbackQuestions(topic string, n int) []domain.QuizQuestion {
	if s.bank != nil {
		cards, err := s.bank.NoteCardsByTopic(topic, n)
		if err != nil {
			slog.Warn("note bank lookup failed", "topic", topic, "error", err)
		}
		if len(cards) > 0 {
			questions := make([]domain.QuizQuestion, 0, len(cards))
			for _, card := range cards {
				questions = append(questions, domain.QuizQuestion{
					Kind:        domain.KindOpen,
					Prompt:      card.Question,
					Ideal:       card.Answer,
					Explanation: card.Context,
				})
			}
			return questions
		}
	}

	return []domain.QuizQuestion{{
		Kind:   domain.KindOpen,
		Prompt: fmt.Sprintf("Explain %s in 3 bullet points.", topic),
		Ideal:  "Definition + why it matters + example",
	}}
}

func fallbackGrade(ideal string) domain.GradeResult {
	return domain.GradeResult{
		Score:       FallbackGradeScore,
		Verdict:     "Fallback grading (grader unavailable).",
		Good:        []string{"You attempted an answer."},
		Improve:     []string{"Add more structure and an example."},
		ModelAnswer: ideal,
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}
