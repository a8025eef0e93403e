package tokenize

import "fmt"

// DefaultMaxLen is the sequence length the classifier was trained on.
const DefaultMaxLen = 500

// Side selects where padding or truncation is applied.
type Side string

const (
	Pre  Side = "pre"
	Post Side = "post"
)

// ParseSide accepts "pre" or "post"; empty means Pre.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case "", Pre:
		return Pre, nil
	case Post:
		return Post, nil
	}
	return "", fmt.Errorf("invalid side %q: want pre or post", s)
}

// PadOptions mirrors the arguments of Keras pad_sequences.
type PadOptions struct {
	MaxLen     int
	Padding    Side
	Truncating Side
	Value      int
}

// DefaultPadOptions returns pad_sequences defaults with maxlen 500.
func DefaultPadOptions() PadOptions {
	return PadOptions{MaxLen: DefaultMaxLen, Padding: Pre, Truncating: Pre}
}

// Pad returns a copy of seq with length exactly opts.MaxLen. Pre truncation
// keeps the trailing tokens; post truncation keeps the leading ones.
func Pad(seq []int, opts PadOptions) []int {
	n := opts.MaxLen
	if n <= 0 {
		return []int{}
	}
	if len(seq) > n {
		if opts.Truncating == Post {
			seq = seq[:n]
		} else {
			seq = seq[len(seq)-n:]
		}
	}
	out := make([]int, n)
	if opts.Value != 0 {
		for i := range out {
			out[i] = opts.Value
		}
	}
	if opts.Padding == Post {
		copy(out, seq)
	} else {
		copy(out[n-len(seq):], seq)
	}
	return out
}

// PadSequences pads every sequence in seqs.
func PadSequences(seqs [][]int, opts PadOptions) [][]int {
	out := make([][]int, len(seqs))
	for i, s := range seqs {
		out[i] = Pad(s, opts)
	}
	return out
}

// Sequencer turns normalized text into a padded token sequence.
type Sequencer struct {
	Tokenizer *Tokenizer
	Options   PadOptions
}

// NewSequencer binds a tokenizer to pad options.
func NewSequencer(t *Tokenizer, opts PadOptions) *Sequencer {
	return &Sequencer{Tokenizer: t, Options: opts}
}

// Sequence tokenizes text and pads the result.
func (s *Sequencer) Sequence(text string) []int {
	return Pad(s.Tokenizer.TextToSequence(text), s.Options)
}
