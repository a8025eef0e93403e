// Package tokenize maps normalized text to fixed-length integer sequences
// using a vocabulary fitted offline and exported with Keras'
// Tokenizer.to_json().
package tokenize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultFilters matches the Keras tokenizer default filter set.
const DefaultFilters = "!\"#$%&()*+,-./:;<=>?@[\\]^_`{|}~\t\n"

// Tokenizer is a read-only vocabulary lookup. It is safe for concurrent use
// once loaded.
type Tokenizer struct {
	// NumWords caps the vocabulary: indices >= NumWords are treated as out of
	// vocabulary. Zero means no cap.
	NumWords  int
	Filters   string
	Lower     bool
	Split     string
	CharLevel bool
	OOVToken  string

	wordIndex map[string]int
	oovIndex  int
}

// kerasDocument mirrors the JSON layout produced by tokenizer.to_json().
type kerasDocument struct {
	ClassName string      `json:"class_name"`
	Config    kerasConfig `json:"config"`
}

type kerasConfig struct {
	NumWords  *int            `json:"num_words"`
	Filters   *string         `json:"filters"`
	Lower     *bool           `json:"lower"`
	Split     *string         `json:"split"`
	CharLevel bool            `json:"char_level"`
	OOVToken  *string         `json:"oov_token"`
	WordIndex json.RawMessage `json:"word_index"`
}

// ErrEmptyVocabulary is returned when the artifact carries no word index.
var ErrEmptyVocabulary = errors.New("tokenizer: empty word index")

// Load reads a tokenizer artifact from path.
func Load(path string) (*Tokenizer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	tok, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tok, nil
}

// Parse decodes a tokenizer artifact. The word_index field may be a JSON
// object or, as Keras writes it, a JSON-encoded string holding the object.
func Parse(data []byte) (*Tokenizer, error) {
	var doc kerasDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tokenizer json: %w", err)
	}
	if doc.ClassName != "" && doc.ClassName != "Tokenizer" {
		return nil, fmt.Errorf("unexpected class_name %q", doc.ClassName)
	}
	cfg := doc.Config
	index, err := decodeWordIndex(cfg.WordIndex)
	if err != nil {
		return nil, err
	}
	if len(index) == 0 {
		return nil, ErrEmptyVocabulary
	}

	t := &Tokenizer{
		Filters:   DefaultFilters,
		Lower:     true,
		Split:     " ",
		CharLevel: cfg.CharLevel,
		wordIndex: index,
	}
	if cfg.NumWords != nil {
		if *cfg.NumWords < 0 {
			return nil, fmt.Errorf("negative num_words: %d", *cfg.NumWords)
		}
		t.NumWords = *cfg.NumWords
	}
	if cfg.Filters != nil {
		t.Filters = *cfg.Filters
	}
	if cfg.Lower != nil {
		t.Lower = *cfg.Lower
	}
	if cfg.Split != nil {
		t.Split = *cfg.Split
	}
	if cfg.OOVToken != nil && *cfg.OOVToken != "" {
		t.OOVToken = *cfg.OOVToken
		idx, ok := index[t.OOVToken]
		if !ok {
			return nil, fmt.Errorf("oov_token %q missing from word_index", t.OOVToken)
		}
		t.oovIndex = idx
	}
	return t, nil
}

func decodeWordIndex(raw json.RawMessage) (map[string]int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrEmptyVocabulary
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode word_index string: %w", err)
		}
		raw = []byte(inner)
	}
	var index map[string]int
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("decode word_index: %w", err)
	}
	for w, i := range index {
		if i <= 0 {
			return nil, fmt.Errorf("word_index[%q] = %d: indices start at 1", w, i)
		}
	}
	return index, nil
}

// VocabularySize returns the number of distinct indices the tokenizer can
// emit, plus one for the padding index 0.
func (t *Tokenizer) VocabularySize() int {
	maxIdx := 0
	for _, i := range t.wordIndex {
		if t.NumWords > 0 && i >= t.NumWords {
			continue
		}
		if i > maxIdx {
			maxIdx = i
		}
	}
	if t.oovIndex > maxIdx {
		maxIdx = t.oovIndex
	}
	return maxIdx + 1
}

// Words splits text into tokens following the tokenizer's settings.
func (t *Tokenizer) Words(text string) []string {
	if t.Lower {
		text = strings.ToLower(text)
	}
	if t.CharLevel {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	split := t.Split
	if split == "" {
		split = " "
	}
	if t.Filters != "" {
		var b strings.Builder
		b.Grow(len(text))
		for _, r := range text {
			if strings.ContainsRune(t.Filters, r) {
				b.WriteString(split)
				continue
			}
			b.WriteRune(r)
		}
		text = b.String()
	}
	parts := strings.Split(text, split)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TextToSequence converts one text to vocabulary indices.
func (t *Tokenizer) TextToSequence(text string) []int {
	words := t.Words(text)
	seq := make([]int, 0, len(words))
	for _, w := range words {
		i, ok := t.wordIndex[w]
		switch {
		case ok && t.NumWords > 0 && i >= t.NumWords:
			if t.OOVToken != "" {
				seq = append(seq, t.oovIndex)
			}
		case ok:
			seq = append(seq, i)
		case t.OOVToken != "":
			seq = append(seq, t.oovIndex)
		}
	}
	return seq
}

// TextsToSequences converts each text to vocabulary indices.
func (t *Tokenizer) TextsToSequences(texts []string) [][]int {
	out := make([][]int, len(texts))
	for i, s := range texts {
		out[i] = t.TextToSequence(s)
	}
	return out
}
