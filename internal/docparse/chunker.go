package docparse

import "strings"

// Chunking parameters for the fallback text chunker, used when
// semantic forming yields no blocks.
const (
	chunkSize    = 2000 // characters per chunk
	chunkOverlap = 200  // character overlap between chunks
)

// TextChunk is one piece of naively chunked document text.
type TextChunk struct {
	Text      string
	IsOverlap bool // carries trailing context from the previous chunk
}

// SplitText cuts plain text into chunks of at most chunkSize
// characters, preferring sentence boundaries and carrying chunkOverlap
// characters of context across the cut.
func SplitText(text string) []TextChunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if len(text) <= chunkSize {
		return []TextChunk{{Text: text}}
	}

	sentences := strings.Split(text, ". ")

	var (
		chunks     []TextChunk
		current    string
		hasOverlap bool
	)

	for i, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if i < len(sentences)-1 {
			sentence += "."
		}

		if len(current)+len(sentence)+1 > chunkSize && strings.TrimSpace(current) != "" {
			chunks = append(chunks, TextChunk{
				Text:      strings.TrimSpace(current),
				IsOverlap: hasOverlap && len(chunks) > 0,
			})

			overlap := current
			if len(current) > chunkOverlap {
				overlap = current[len(current)-chunkOverlap:]
			}
			current = overlap + " " + sentence
			hasOverlap = true
		} else if current == "" {
			current = sentence
		} else {
			current += " " + sentence
		}
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, TextChunk{
			Text:      strings.TrimSpace(current),
			IsOverlap: hasOverlap && len(chunks) > 0,
		})
	}

	if len(chunks) == 0 {
		return []TextChunk{{Text: text}}
	}
	return chunks
}
