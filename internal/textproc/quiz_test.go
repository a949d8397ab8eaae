package textproc

import "testing"

const wellFormedQuiz = `[
  {"question": "What is mining?", "options": ["Proof of work", "A database", "A wallet", "A browser"], "correct": "Proof of work"},
  {"question": "What secures transactions?", "options": ["Cryptography", "Passwords"], "correct": "Cryptography"},
  {"question": "What is a block?", "options": ["A batch of transactions", "A coin", "A node", "A key"], "correct": "A batch of transactions"}
]`

func TestParseQuiz(t *testing.T) {
	t.Run("WellFormed", func(t *testing.T) {
		items, ok := ParseQuiz(wellFormedQuiz)
		if !ok {
			t.Fatal("expected parse to succeed")
		}
		if len(items) != 3 {
			t.Fatalf("expected 3 items, got %d", len(items))
		}
		if items[0].Correct != 0 {
			t.Errorf("expected correct index 0, got %d", items[0].Correct)
		}
	})

	t.Run("SurroundingProse", func(t *testing.T) {
		text := "Here is your quiz:\n" + wellFormedQuiz + "\nGood luck!"
		items, ok := ParseQuiz(text)
		if !ok || len(items) != 3 {
			t.Fatalf("expected 3 items from prose-wrapped JSON, got %d (ok=%v)", len(items), ok)
		}
	})

	t.Run("CodeFenced", func(t *testing.T) {
		text := "```json\n" + wellFormedQuiz + "\n```"
		items, ok := ParseQuiz(text)
		if !ok || len(items) != 3 {
			t.Fatalf("expected 3 items from fenced JSON, got %d (ok=%v)", len(items), ok)
		}
	})

	t.Run("MalformedTrailingEntry", func(t *testing.T) {
		text := `[
  {"question": "Q1?", "options": ["a", "b", "c"], "correct": "b"},
  {"question": "Q2?", "options": ["x", "y"], "correct": "y"},
  {"question": "Q3?", "options": ["broken...]`
		items, ok := ParseQuiz(text)
		if !ok {
			t.Fatal("expected repaired parse to succeed")
		}
		if len(items) != 2 {
			t.Fatalf("expected 2 leading valid items, got %d", len(items))
		}
		if items[1].Correct != 1 {
			t.Errorf("expected correct index 1 for Q2, got %d", items[1].Correct)
		}
	})

	t.Run("CompletelyNonJSON", func(t *testing.T) {
		items, ok := ParseQuiz("I could not find any document to quiz you on, sorry.")
		if ok {
			t.Error("expected ok=false for non-JSON text")
		}
		if len(items) != 0 {
			t.Errorf("expected no items, got %d", len(items))
		}
	})

	t.Run("EmptyInput", func(t *testing.T) {
		if items, ok := ParseQuiz(""); ok || len(items) != 0 {
			t.Errorf("expected degraded result for empty input, got %d items (ok=%v)", len(items), ok)
		}
	})

	t.Run("InvalidItemsDropped", func(t *testing.T) {
		text := `[
  {"question": "", "options": ["a", "b"], "correct": "a"},
  {"question": "Only one option?", "options": ["a"], "correct": "a"},
  {"question": "Correct not an option?", "options": ["a", "b"], "correct": "z"},
  {"question": "Valid?", "options": ["a", "b"], "correct": "b"}
]`
		items, ok := ParseQuiz(text)
		if !ok {
			t.Fatal("expected parse to succeed")
		}
		if len(items) != 1 {
			t.Fatalf("expected 1 valid item, got %d", len(items))
		}
		if items[0].Question != "Valid?" || items[0].Correct != 1 {
			t.Errorf("wrong surviving item: %+v", items[0])
		}
	})

	t.Run("NumericCorrectAccepted", func(t *testing.T) {
		text := `[{"question": "Q?", "options": ["a", "b", "c"], "correct": 2}]`
		items, ok := ParseQuiz(text)
		if !ok || len(items) != 1 {
			t.Fatalf("expected 1 item, got %d (ok=%v)", len(items), ok)
		}
		if items[0].Correct != 2 {
			t.Errorf("expected correct index 2, got %d", items[0].Correct)
		}
	})

	t.Run("OutOfRangeNumericDropped", func(t *testing.T) {
		text := `[{"question": "Q?", "options": ["a", "b"], "correct": 5}]`
		items, ok := ParseQuiz(text)
		if !ok {
			t.Fatal("expected parse to succeed")
		}
		if len(items) != 0 {
			t.Errorf("expected out-of-range index dropped, got %d items", len(items))
		}
	})

	t.Run("CaseInsensitiveCorrectMatch", func(t *testing.T) {
		text := `[{"question": "Q?", "options": ["Proof of Work", "Stake"], "correct": "proof of work"}]`
		items, ok := ParseQuiz(text)
		if !ok || len(items) != 1 {
			t.Fatalf("expected 1 item, got %d (ok=%v)", len(items), ok)
		}
		if items[0].Correct != 0 {
			t.Errorf("expected correct index 0, got %d", items[0].Correct)
		}
	})
}
