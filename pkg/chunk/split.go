package chunk

import (
	"strings"
	"unicode"
)

// Split breaks text into ordered chunks at sentence boundaries.
//
// Sentences accumulate into a chunk until appending the next would exceed
// maxSize; a trailing remainder shorter than minSize merges into the previous
// chunk instead of becoming its own fragment. A single sentence longer than
// maxSize overflows rather than being cut mid-sentence.
func Split(text string, maxSize, minSize int) []*Chunk {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var parts []string
	var current strings.Builder
	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+1+len(sentence) > maxSize {
			parts = append(parts, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	// Merge a short trailing fragment into the previous chunk.
	if n := len(parts); n > 1 && len(parts[n-1]) < minSize {
		parts[n-2] = parts[n-2] + " " + parts[n-1]
		parts = parts[:n-1]
	}

	chunks := make([]*Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = newChunk(i, part, len(strings.Fields(part)))
	}
	return chunks
}

// splitSentences breaks text into trimmed sentences. A sentence ends at
// terminal punctuation, keeping any closing quote with the sentence.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		// Swallow runs of terminal punctuation ("?!", "...") and a closing quote.
		for i+1 < len(runes) && isTerminal(runes[i+1]) {
			i++
		}
		if i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\'' || runes[i+1] == '”') {
			i++
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}

	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Normalize collapses whitespace for comparing split output to the original.
func Normalize(text string) string {
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}
