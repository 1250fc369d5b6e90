package chunker

import (
	"fmt"
	"strings"

	"pubsearch/internal/domain"
)

// Window is one span of a section, in characters. End is exclusive.
type Window struct {
	Start int
	End   int
	Text  string
}

// WindowChunker splits section text into fixed-size character windows that
// overlap by a fixed number of characters.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

func (c *WindowChunker) Size() int    { return c.size }
func (c *WindowChunker) Overlap() int { return c.overlap }

// Chunk splits one section into chunks. Chunk ids are derived from the
// publication, section and ordinal, so identical input yields identical ids.
func (c *WindowChunker) Chunk(pubID, section, text string) ([]domain.Chunk, error) {
	windows, err := Split(text, c.size, c.overlap)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = domain.Chunk{
			ID:      ChunkID(pubID, section, i),
			PubID:   pubID,
			Section: section,
			Ordinal: i,
			Start:   w.Start,
			End:     w.End,
			Text:    w.Text,
		}
	}
	return chunks, nil
}

// Split returns the windows covering text. Window i starts at i*(size-overlap)
// and the last window is the first one that reaches the end of the text.
// Empty text yields a single empty window.
func Split(text string, size, overlap int) ([]Window, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 || n < overlap {
		return []Window{{Start: 0, End: n, Text: text}}, nil
	}

	step := size - overlap
	windows := make([]Window, 0, (n+step-1)/step)
	for start := 0; ; start += step {
		end := start + size
		if end > n {
			end = n
		}
		windows = append(windows, Window{
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
		if end >= n {
			break
		}
	}
	return windows, nil
}

// Normalize converts CRLF and lone CR line endings to LF.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// ChunkID builds the stable identifier of a chunk.
func ChunkID(pubID, section string, ordinal int) string {
	return fmt.Sprintf("%s#%s#%d", pubID, section, ordinal)
}

func validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return nil
}
