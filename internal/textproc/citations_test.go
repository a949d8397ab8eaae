package textproc

import (
	"strings"
	"testing"
)

func mapResolver(m map[string]string) FileResolver {
	return func(id string) (string, bool) {
		name, ok := m[id]
		return name, ok
	}
}

func TestResolveCitations(t *testing.T) {
	resolve := mapResolver(map[string]string{
		"1":         "notes.pdf",
		"file-abc1": "chapter2.docx",
	})

	t.Run("KnownMarker", func(t *testing.T) {
		out, citations := ResolveCitations("Mining secures the chain[[doc:1]].", resolve)

		if len(citations) != 1 {
			t.Fatalf("expected 1 citation, got %d", len(citations))
		}
		if citations[0].Filename != "notes.pdf" {
			t.Errorf("expected filename notes.pdf, got %q", citations[0].Filename)
		}
		if !strings.Contains(out, "Mining secures the chain [1].") {
			t.Errorf("marker not rewritten to footnote reference: %q", out)
		}
		if !strings.Contains(out, "[1] notes.pdf") {
			t.Errorf("footnote list missing: %q", out)
		}
	})

	t.Run("UnknownMarkerLeftLiteral", func(t *testing.T) {
		out, citations := ResolveCitations("See [[doc:nope]] for details.", resolve)

		if len(citations) != 0 {
			t.Fatalf("expected no citations, got %d", len(citations))
		}
		if out != "See [[doc:nope]] for details." {
			t.Errorf("unknown marker was altered: %q", out)
		}
	})

	t.Run("RepeatedFileSharesFootnote", func(t *testing.T) {
		out, citations := ResolveCitations("First[[doc:1]] and again[[doc:1]].", resolve)

		if len(citations) != 1 {
			t.Fatalf("expected 1 citation for repeated id, got %d", len(citations))
		}
		if strings.Count(out, " [1]") != 2 {
			t.Errorf("expected both markers rewritten to [1]: %q", out)
		}
	})

	t.Run("MultipleFilesNumberedInOrder", func(t *testing.T) {
		out, citations := ResolveCitations("A[[doc:file-abc1]] then B[[doc:1]].", resolve)

		if len(citations) != 2 {
			t.Fatalf("expected 2 citations, got %d", len(citations))
		}
		if citations[0].Filename != "chapter2.docx" || citations[1].Filename != "notes.pdf" {
			t.Errorf("citations out of order: %+v", citations)
		}
		if !strings.Contains(out, "[1] chapter2.docx") || !strings.Contains(out, "[2] notes.pdf") {
			t.Errorf("footnote list wrong: %q", out)
		}
	})

	t.Run("MixedKnownAndUnknown", func(t *testing.T) {
		out, citations := ResolveCitations("X[[doc:1]] Y[[doc:ghost]].", resolve)

		if len(citations) != 1 {
			t.Fatalf("expected 1 citation, got %d", len(citations))
		}
		if !strings.Contains(out, "[[doc:ghost]]") {
			t.Errorf("unknown marker should survive literally: %q", out)
		}
	})

	t.Run("NoMarkers", func(t *testing.T) {
		out, citations := ResolveCitations("Plain answer.", resolve)

		if out != "Plain answer." {
			t.Errorf("text without markers changed: %q", out)
		}
		if citations != nil {
			t.Errorf("expected nil citations, got %+v", citations)
		}
	})
}
