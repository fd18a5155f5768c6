// Package notes parses markdown study notes into question cards for the
// local quiz bank.
package notes

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/studypal/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	topicPrefix    = "#"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingContext
)

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.NoteCard, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards. A markdown heading
// ("# Topic") sets the topic for every card until the next heading; cards
// above the first heading carry an empty topic.
func Parse(r io.Reader) ([]domain.NoteCard, error) {
	scanner := bufio.NewScanner(r)
	var cards []domain.NoteCard
	var currentCard domain.NoteCard
	var currentBlock []string
	var currentTopic string
	currentState := seeking

	flushBlock := func() {
		if len(currentBlock) == 0 {
			return
		}
		content := strings.Join(currentBlock, "\n")
		switch currentState {
		case readingQuestion:
			currentCard.Question = content
		case readingAnswer:
			currentCard.Answer = content
		case readingContext:
			currentCard.Context = content
		}
		currentBlock = nil
	}

	finishCard := func() {
		flushBlock()
		if currentCard.Question != "" {
			currentCard.Topic = currentTopic
			cards = append(cards, currentCard)
		}
		currentCard = domain.NoteCard{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, topicPrefix) {
			finishCard()
			currentTopic = strings.TrimSpace(strings.TrimLeft(line, "#"))
			continue
		}
		if line == "---" {
			finishCard()
			continue
		}

		isQ := strings.HasPrefix(line, questionPrefix)
		isA := strings.HasPrefix(line, answerPrefix)
		isC := strings.HasPrefix(line, contextPrefix)

		if isQ || isA || isC {
			flushBlock()

			var prefix string
			switch {
			case isQ:
				// A new question always starts a new card.
				if currentState != seeking {
					finishCard()
				}
				currentState = readingQuestion
				prefix = questionPrefix
			case isA:
				currentState = readingAnswer
				prefix = answerPrefix
			case isC:
				currentState = readingContext
				prefix = contextPrefix
			}

			content := strings.TrimPrefix(line, prefix)
			if strings.HasPrefix(content, " ") {
				content = content[1:]
			}
			currentBlock = append(currentBlock, content)
		} else if currentState != seeking {
			currentBlock = append(currentBlock, line)
		}
	}

	finishCard() // Finish the very last card in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cards, nil
}
