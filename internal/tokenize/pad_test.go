package tokenize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPad_PreDefaults(t *testing.T) {
	opts := PadOptions{MaxLen: 5, Padding: Pre, Truncating: Pre}
	assert.Equal(t, []int{0, 0, 0, 1, 2}, Pad([]int{1, 2}, opts), "pre pad")
	assert.Equal(t, []int{3, 4, 5, 6, 7}, Pad([]int{1, 2, 3, 4, 5, 6, 7}, opts), "pre truncate")
}

func TestPad_Post(t *testing.T) {
	opts := PadOptions{MaxLen: 4, Padding: Post, Truncating: Post, Value: 9}
	assert.Equal(t, []int{1, 9, 9, 9}, Pad([]int{1}, opts), "post pad")
	assert.Equal(t, []int{1, 2, 3, 4}, Pad([]int{1, 2, 3, 4, 5}, opts), "post truncate")
}

func TestPad_DoesNotAliasInput(t *testing.T) {
	in := []int{1, 2, 3}
	out := Pad(in, PadOptions{MaxLen: 3})
	out[0] = 42
	assert.Equal(t, 1, in[0], "Pad mutated its input")
}

func TestSequencer_AlwaysDefaultLength(t *testing.T) {
	tok, err := Parse([]byte(kerasTokenizerJSON))
	require.NoError(t, err)
	s := NewSequencer(tok, DefaultPadOptions())
	inputs := []string{
		"",
		"the news",
		strings.Repeat("the news is real ", 400),
	}
	for _, in := range inputs {
		assert.Len(t, s.Sequence(in), DefaultMaxLen, "input of %d chars", len(in))
	}
	// Pre truncation keeps the tail of long documents.
	seq := s.Sequence(strings.Repeat("the ", 600) + "fake")
	assert.Equal(t, 5, seq[len(seq)-1], "last token should be 'fake'")
}

func TestPadSequences_Batch(t *testing.T) {
	got := PadSequences([][]int{{1}, {1, 2, 3}}, PadOptions{MaxLen: 2})
	assert.Equal(t, [][]int{{0, 1}, {2, 3}}, got)
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide("")
	require.NoError(t, err)
	assert.Equal(t, Pre, s)
	s, err = ParseSide("post")
	require.NoError(t, err)
	assert.Equal(t, Post, s)
	_, err = ParseSide("middle")
	assert.Error(t, err)
}
