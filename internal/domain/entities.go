package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Chunk is a contiguous span of normalized text from one section of one publication.
// Offsets are measured in characters (runes); End is exclusive.
type Chunk struct {
	ID      string
	PubID   string
	Section string
	Ordinal int
	Start   int
	End     int
	Text    string
}

// ChunkMetadata is what the index keeps for a chunk at query time.
type ChunkMetadata struct {
	ChunkID string `json:"chunk_id"`
	PubID   string `json:"pub_id"`
	Section string `json:"section"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Excerpt string `json:"excerpt"`
}

// Entry pairs a chunk vector with its metadata. A corpus is an ordered slice of
// entries; the slice position is the index ordinal for both halves.
type Entry struct {
	Vector []float32
	Meta   ChunkMetadata
}

// Section is one named section of a publication.
type Section struct {
	Name string
	Text string
}

// Sections keeps publication sections in their original order. It encodes as a
// JSON object whose key order is preserved on both decode and encode.
type Sections []Section

// Get returns the text of the named section.
func (s Sections) Get(name string) (string, bool) {
	for _, sec := range s {
		if sec.Name == name {
			return sec.Text, true
		}
	}
	return "", false
}

// Names returns the section names in order.
func (s Sections) Names() []string {
	names := make([]string, len(s))
	for i, sec := range s {
		names[i] = sec.Name
	}
	return names
}

func (s Sections) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sec := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(sec.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(sec.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Sections) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*s = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("sections: expected object, got %v", tok)
	}

	var out Sections
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("sections: expected key, got %v", tok)
		}
		var text string
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		// Non-string section bodies are dropped rather than failing the record.
		if err := json.Unmarshal(raw, &text); err != nil {
			continue
		}
		if i, dup := seen[name]; dup {
			out[i].Text = text
			continue
		}
		seen[name] = len(out)
		out = append(out, Section{Name: name, Text: text})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

// Year is a publication year that may arrive as a JSON string or number.
type Year string

func (y *Year) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case string(data) == "null":
		*y = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*y = Year(s)
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("year: %w", err)
		}
		*y = Year(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return nil
}

// PublicationRecord holds the metadata and full section text of one publication.
type PublicationRecord struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Authors   string   `json:"authors"`
	Year      Year     `json:"year"`
	DOI       string   `json:"doi,omitempty"`
	PMCURL    string   `json:"pmc_url,omitempty"`
	SourceURL string   `json:"source_url,omitempty"`
	Sections  Sections `json:"sections"`
}

// IndexInfo describes a persisted index build. It is written next to the index and
// cross-checked against the index contents and the runtime embedder at load.
type IndexInfo struct {
	SchemaVersion    int       `json:"schema_version"`
	BuildID          string    `json:"build_id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	Dimension        int       `json:"dim"`
	ChunkCount       int       `json:"n_vectors"`
	PublicationCount int       `json:"n_publications"`
	ChunkSize        int       `json:"chunk_size"`
	ChunkOverlap     int       `json:"chunk_overlap"`
	ConfigHash       string    `json:"config_hash"`
	CreatedAt        time.Time `json:"created_at"`
}

// Neighbor is one nearest-neighbor hit: an index position and its L2 distance.
type Neighbor struct {
	Position int
	Distance float64
}

// EnrichedResult is a search hit joined with chunk and publication metadata.
// Score is the raw L2 distance: lower is more relevant.
type EnrichedResult struct {
	Score      float64 `json:"score"`
	PubID      string  `json:"pub_id"`
	Section    string  `json:"section"`
	Excerpt    string  `json:"excerpt"`
	PubTitle   string  `json:"pub_title"`
	PubYear    string  `json:"pub_year"`
	PubAuthors string  `json:"pub_authors"`
	ChunkID    string  `json:"chunk_id"`
	Position   int     `json:"position"`
}

// Summary is the templated digest of one publication.
type Summary struct {
	PubID        string   `json:"pub_id"`
	Title        string   `json:"title"`
	Authors      string   `json:"authors"`
	Year         string   `json:"year"`
	Summary      string   `json:"summary"`
	FullSections []string `json:"full_sections"`
}

// Health reports the size of the loaded corpus.
type Health struct {
	Status       string `json:"status"`
	Chunks       int    `json:"n_chunks"`
	Publications int    `json:"n_publications"`
	Model        string `json:"model"`
	Dimension    int    `json:"dim"`
	BuildID      string `json:"build_id"`
}
