package notebook

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"

	"ainotebook/internal/store"
)

const (
	excerptLength  = 100
	wordsPerMinute = 200
)

var emptyContent = json.RawMessage(`""`)

// derived holds the fields computed from note content.
type derived struct {
	content  json.RawMessage
	text     string
	excerpt  string
	metadata store.NoteMetadata
}

// deriveContent computes the plain text projection, excerpt and metadata
// of raw. String content is used as is; any other JSON value is projected
// to its compact encoding and gets no excerpt. Null becomes "".
func deriveContent(raw json.RawMessage) derived {
	if isNull(raw) {
		raw = emptyContent
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		runes := []rune(s)
		excerpt := runes
		if len(excerpt) > excerptLength {
			excerpt = excerpt[:excerptLength]
		}
		return derived{
			content:  raw,
			text:     s,
			excerpt:  string(excerpt),
			metadata: metadataFor(len(runes)),
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	compact := buf.String()
	return derived{
		content:  json.RawMessage(compact),
		text:     compact,
		excerpt:  "",
		metadata: metadataFor(len([]rune(compact))),
	}
}

func metadataFor(length int) store.NoteMetadata {
	reading := int(math.Ceil(float64(length) / wordsPerMinute))
	if reading < 1 {
		reading = 1
	}
	return store.NoteMetadata{WordCount: length, ReadingTime: reading}
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// truthy reports whether raw would count as a non-empty value: not null,
// false, 0 or "".
func truthy(raw json.RawMessage) bool {
	if isNull(raw) {
		return false
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	default:
		return true
	}
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// stripTags removes anything that looks like an HTML tag.
func stripTags(s string) string {
	return htmlTag.ReplaceAllString(s, "")
}

// contentString returns the note content when it is a JSON string.
func contentString(n store.Note) (string, bool) {
	var s string
	if err := json.Unmarshal(n.Content, &s); err != nil {
		return "", false
	}
	return s, true
}
