package textproc

import (
	"fmt"
	"regexp"
	"strings"

	"studybuddy/internal/models"
)

// markerPattern matches the canonical inline citation markers the assistant
// client embeds in answer text, e.g. [[doc:file-abc123]].
var markerPattern = regexp.MustCompile(`\[\[doc:([A-Za-z0-9_.-]+)\]\]`)

// FileResolver maps a provider file id to the user-visible filename it was
// uploaded under. The second return reports whether the id is known.
type FileResolver func(fileID string) (string, bool)

// ResolveCitations rewrites inline citation markers into numbered footnote
// references and appends a footnote list keyed by filename at the end of the
// text. Repeated references to the same file share one footnote. Markers
// whose id the resolver does not know are left in place as literal text.
func ResolveCitations(text string, resolve FileResolver) (string, []models.Citation) {
	var citations []models.Citation
	numbered := make(map[string]int)

	out := markerPattern.ReplaceAllStringFunc(text, func(marker string) string {
		id := markerPattern.FindStringSubmatch(marker)[1]
		if n, seen := numbered[id]; seen {
			return fmt.Sprintf(" [%d]", n)
		}
		name, known := resolve(id)
		if !known {
			return marker
		}
		n := len(citations) + 1
		numbered[id] = n
		citations = append(citations, models.Citation{Index: n, FileID: id, Filename: name})
		return fmt.Sprintf(" [%d]", n)
	})

	if len(citations) == 0 {
		return out, nil
	}

	var b strings.Builder
	b.WriteString(out)
	b.WriteString("\n")
	for _, c := range citations {
		fmt.Fprintf(&b, "\n[%d] %s", c.Index, c.Filename)
	}
	return b.String(), citations
}
