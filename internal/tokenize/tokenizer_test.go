package tokenize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Keras writes word_index as a JSON string inside the config object.
const kerasTokenizerJSON = `{
  "class_name": "Tokenizer",
  "config": {
    "num_words": 6,
    "filters": "!\"#$%&()*+,-./:;<=>?@[\\]^_` + "`" + `{|}~\t\n",
    "lower": true,
    "split": " ",
    "char_level": false,
    "oov_token": "<OOV>",
    "document_count": 3,
    "word_index": "{\"<OOV>\": 1, \"the\": 2, \"news\": 3, \"is\": 4, \"fake\": 5, \"real\": 6, \"today\": 7}"
  }
}`

func TestParse_KerasStringWordIndex(t *testing.T) {
	tok, err := Parse([]byte(kerasTokenizerJSON))
	require.NoError(t, err)
	assert.Equal(t, 6, tok.NumWords)
	assert.Equal(t, "<OOV>", tok.OOVToken)
	// "today" has index 7 >= num_words and maps to OOV like unknown words.
	assert.Equal(t, []int{2, 3, 4, 5, 1, 1}, tok.TextToSequence("the news is fake today unknownword"))
}

func TestParse_ObjectWordIndexWithoutOOV(t *testing.T) {
	data := `{"config": {"num_words": null, "word_index": {"alpha": 1, "beta": 2}}}`
	tok, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, tok.TextToSequence("Alpha, gamma beta!"))
	assert.Equal(t, 3, tok.VocabularySize())
}

func TestParse_Errors(t *testing.T) {
	bad := map[string]string{
		"not json":       `{`,
		"empty index":    `{"config": {"word_index": {}}}`,
		"missing index":  `{"config": {}}`,
		"zero index":     `{"config": {"word_index": {"a": 0}}}`,
		"oov not listed": `{"config": {"oov_token": "<OOV>", "word_index": {"a": 1}}}`,
		"wrong class":    `{"class_name": "Model", "config": {"word_index": {"a": 1}}}`,
	}
	for name, data := range bad {
		_, err := Parse([]byte(data))
		assert.Error(t, err, name)
	}
}

func TestLoad_FromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(p, []byte(kerasTokenizerJSON), 0o644))
	_, err := Load(p)
	require.NoError(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err, "missing artifact")
}

func TestWords_SplitsOnFiltersAndDropsEmpty(t *testing.T) {
	tok := &Tokenizer{Filters: DefaultFilters, Lower: true, Split: " "}
	got := tok.Words("  Hello,World  again\tand\nagain ")
	assert.Equal(t, []string{"hello", "world", "again", "and", "again"}, got)
}
