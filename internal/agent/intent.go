package agent

import (
	"regexp"
	"strings"
)

// Trigger-phrase matching for the dialogue machine. Matching is
// case-insensitive and operates on normalized text.

var (
	studyRe   = regexp.MustCompile(`(?i)^i\s+(?:studied|learned)\s+(?:about\s+)?(.+)$`)
	urlRe     = regexp.MustCompile(`(?i)(https?://\S+)`)
	outcomeRe = regexp.MustCompile(`(?i)^(remembered|forgot)(?:\s+(.+))?$`)
)

// Normalize trims the raw inbound text.
func Normalize(text string) string {
	return strings.TrimSpace(text)
}

func lowered(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func isHelp(text string) bool {
	switch lowered(text) {
	case "help", "/help", "menu", "/start":
		return true
	}
	return false
}

func isCancel(text string) bool {
	t := lowered(text)
	return t == "cancel" || t == "/cancel"
}

func isRecent(text string) bool {
	t := lowered(text)
	return t == "recent" || t == "/recent" || strings.Contains(t, "what did i study recently")
}

func isRecollect(text string) bool {
	t := lowered(text)
	return t == "recollect" || t == "/recollect" || t == "random" || strings.Contains(t, "random note")
}

func isAddResource(text string) bool {
	return strings.HasPrefix(lowered(text), "add resource")
}

func isRecord(text string) bool {
	t := lowered(text)
	return t == "record" || t == "/record" || t == "record study"
}

func isQuiz(text string) bool {
	t := lowered(text)
	return t == "quiz" || t == "/quiz" || t == "quiz me"
}

func isBag(text string) bool {
	t := lowered(text)
	return t == "bag" || t == "/bag" || t == "resources" || t == "links"
}

func isNudge(text string) bool {
	t := lowered(text)
	return t == "nudge" || t == "/nudge" || t == "review"
}

// isMostRecentShortcut matches the awaiting_quiz_topic shortcut for "quiz me
// on whatever I studied last".
func isMostRecentShortcut(text string) bool {
	t := lowered(text)
	return t == "recent" || t == "last" || t == "latest"
}

// extractStudyTopic pulls the topic out of "I studied EOQ" / "I learned
// about EOQ". Returns "" when the text is not a study statement.
func extractStudyTopic(text string) string {
	m := studyRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractURL returns the first well-formed http(s) link in the text, or "".
func extractURL(text string) string {
	return urlRe.FindString(text)
}

// extractOutcome parses "remembered <topic>" / "forgot" replies to a review
// nudge. The topic may be omitted when a nudge is pending.
func extractOutcome(text string) (remembered bool, topic string, ok bool) {
	m := outcomeRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return false, "", false
	}
	return strings.EqualFold(m[1], "remembered"), strings.TrimSpace(m[2]), true
}
