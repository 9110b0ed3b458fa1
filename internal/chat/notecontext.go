package chat

import (
	"context"
	"fmt"
	"strings"

	"ainotebook/internal/llm"
	"ainotebook/internal/store"
)

// maxNoteContext caps the characters taken from each attached note.
const maxNoteContext = 4000

// NoteSource resolves notes the user attached to a chat message.
type NoteSource interface {
	GetNote(ctx context.Context, userID, id string) (store.Note, error)
}

// buildNoteContext returns a system message quoting the given notes, or
// false when there is nothing to attach.
func buildNoteContext(notes []store.Note) (llm.Message, bool) {
	if len(notes) == 0 {
		return llm.Message{}, false
	}

	var sb strings.Builder
	sb.WriteString("You are a helpful assistant. Use the following notes to answer the user's question if they are relevant, or use your general knowledge if they don't contain the answer.\n\n")
	sb.WriteString("Notes:\n")
	for i, n := range notes {
		text := []rune(n.ContentText)
		if len(text) > maxNoteContext {
			text = text[:maxNoteContext]
		}
		sb.WriteString(fmt.Sprintf("\n[%d] %s\n%s\n", i+1, n.Title, string(text)))
	}
	return llm.Message{Role: "system", Content: sb.String()}, true
}
