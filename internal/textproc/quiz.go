package textproc

import (
	"encoding/json"
	"strings"

	"studybuddy/internal/models"
)

// rawQuizItem mirrors the JSON shape the quiz prompt requests. Correct may
// arrive as option text or, from less obedient runs, as a numeric index.
type rawQuizItem struct {
	Question string          `json:"question"`
	Options  []string        `json:"options"`
	Correct  json.RawMessage `json:"correct"`
}

// ParseQuiz extracts a quiz from free-form provider output. The candidate is
// sliced between the first '[' and the last ']'; when that fails to parse,
// malformed trailing entries are dropped and parsing is retried exactly once.
// A second failure degrades to an empty quiz with ok=false, never an error.
// Items missing a question, fewer than two options, or an unresolvable
// correct answer are dropped silently.
func ParseQuiz(text string) (items []models.QuizItem, ok bool) {
	candidate := sliceArray(stripCodeFences(text))
	if candidate == "" {
		return nil, false
	}

	var raw []rawQuizItem
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		repaired := dropTrailingEntries(candidate)
		if repaired == "" {
			return nil, false
		}
		raw = nil
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil, false
		}
	}

	for _, r := range raw {
		if item, valid := validateItem(r); valid {
			items = append(items, item)
		}
	}
	return items, true
}

// stripCodeFences removes a surrounding markdown code block, including an
// optional language identifier line, if one is present.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	start := 3
	if newlineIdx := strings.Index(text[start:], "\n"); newlineIdx != -1 {
		start += newlineIdx + 1
	}
	if endIdx := strings.Index(text[start:], "```"); endIdx != -1 {
		text = text[start : start+endIdx]
	} else {
		text = text[start:]
	}
	return strings.TrimSpace(text)
}

// sliceArray returns the substring between the first '[' and the last ']',
// or "" when no array-shaped region exists.
func sliceArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// dropTrailingEntries cuts a broken array candidate back to its last complete
// object and recloses it. Returns "" when not even one object survives.
func dropTrailingEntries(candidate string) string {
	last := strings.LastIndex(candidate, "}")
	if last == -1 {
		return ""
	}
	return candidate[:last+1] + "]"
}

func validateItem(r rawQuizItem) (models.QuizItem, bool) {
	question := strings.TrimSpace(r.Question)
	if question == "" || len(r.Options) < 2 {
		return models.QuizItem{}, false
	}

	correct, ok := resolveCorrect(r.Correct, r.Options)
	if !ok {
		return models.QuizItem{}, false
	}

	return models.QuizItem{
		Question: question,
		Options:  r.Options,
		Correct:  correct,
	}, true
}

// resolveCorrect maps the "correct" field to an option index. The prompt asks
// for the option text; a bare in-range index is accepted as well.
func resolveCorrect(raw json.RawMessage, options []string) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		want := strings.ToLower(strings.TrimSpace(text))
		if want == "" {
			return 0, false
		}
		for i, opt := range options {
			if strings.ToLower(strings.TrimSpace(opt)) == want {
				return i, true
			}
		}
		return 0, false
	}

	var index int
	if err := json.Unmarshal(raw, &index); err == nil {
		if index >= 0 && index < len(options) {
			return index, true
		}
	}
	return 0, false
}
