package predict

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/newscheck/internal/article"
	"github.com/hyperifyio/newscheck/internal/tokenize"
)

type stubArticles struct {
	art   article.Article
	err   error
	calls int
}

func (s *stubArticles) Extract(_ context.Context, rawURL string) (article.Article, error) {
	s.calls++
	if s.err != nil {
		return article.Article{}, &article.ExtractionError{URL: rawURL, Err: s.err}
	}
	return s.art, nil
}

// recordingSequencer captures what reaches the tokenizer.
type recordingSequencer struct {
	last string
}

func (r *recordingSequencer) Sequence(text string) []int {
	r.last = text
	return tokenize.Pad([]int{len(text)}, tokenize.DefaultPadOptions())
}

type fixedClassifier struct {
	p      float64
	err    error
	gotLen int
}

func (f *fixedClassifier) Predict(seq []int) (float64, error) {
	f.gotLen = len(seq)
	return f.p, f.err
}

func TestLabelFor_Boundary(t *testing.T) {
	assert.Equal(t, Fake, LabelFor(0.5))
	assert.Equal(t, Real, LabelFor(0.5000001))
	assert.Equal(t, Fake, LabelFor(0))
	assert.Equal(t, Real, LabelFor(1))
}

func TestRun_ValidationMessages(t *testing.T) {
	arts := &stubArticles{}
	p := New(arts, &recordingSequencer{}, &fixedClassifier{p: 0.9})

	_, err := p.Run(context.Background(), Request{InputType: InputText, NewsText: ""})
	require.Error(t, err)
	assert.Equal(t, "Please provide News Text.", err.Error())
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = p.Run(context.Background(), Request{InputType: InputURL, URL: ""})
	require.Error(t, err)
	assert.Equal(t, "Please provide a URL.", err.Error())

	_, err = p.Run(context.Background(), Request{InputType: "pdf", NewsText: "x"})
	require.Error(t, err)
	assert.Equal(t, MsgBadInputType, err.Error())

	assert.Zero(t, arts.calls, "validation failures must not scrape")
}

func TestRun_TextBranch(t *testing.T) {
	seq := &recordingSequencer{}
	clf := &fixedClassifier{p: 0.73}
	p := New(&stubArticles{}, seq, clf)

	out, err := p.Run(context.Background(), Request{InputType: InputText, NewsText: "Shocking NEWS!"})
	require.NoError(t, err)
	assert.Equal(t, Real, out.Label)
	assert.Equal(t, 0.73, out.Probability)
	assert.Equal(t, "Shocking NEWS!", out.NewsText)
	assert.Equal(t, InputText, out.InputType)
	assert.Equal(t, "shocking news ", seq.last)
	assert.Equal(t, tokenize.DefaultMaxLen, clf.gotLen)
}

func TestRun_URLBranchEchoesScrapedText(t *testing.T) {
	arts := &stubArticles{art: article.Article{Title: "Headline", Text: "Scraped body text."}}
	p := New(arts, &recordingSequencer{}, &fixedClassifier{p: 0.2})

	out, err := p.Run(context.Background(), Request{InputType: InputURL, URL: "https://news.example/a", NewsText: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, 1, arts.calls)
	assert.Equal(t, Fake, out.Label)
	assert.Equal(t, "Scraped body text.", out.NewsText)
	assert.Equal(t, "https://news.example/a", out.URL)
	assert.Equal(t, "Headline", out.Title)

	resp := Render(out, nil)
	assert.Equal(t, "Scraped body text.", resp.NewsText)
	assert.Equal(t, "Fake", resp.Result)
	assert.Equal(t, InputURL, resp.SelectedInput)
	require.NotNil(t, resp.Probability)
	assert.Equal(t, 0.2, *resp.Probability)
}

func TestRun_ExtractionFailureShortCircuits(t *testing.T) {
	clf := &fixedClassifier{p: 0.9}
	p := New(&stubArticles{err: errors.New("dial tcp: no such host")}, &recordingSequencer{}, clf)

	out, err := p.Run(context.Background(), Request{InputType: InputURL, URL: "https://nowhere.invalid"})
	require.Error(t, err)
	assert.Equal(t, KindExtraction, KindOf(err))
	assert.Zero(t, clf.gotLen, "classifier must not run after a failed scrape")

	resp := Render(out, err)
	assert.Empty(t, resp.Result)
	assert.Empty(t, resp.NewsText)
	assert.True(t, strings.Contains(resp.Error, "no such host"))
}

func TestRun_InferenceError(t *testing.T) {
	p := New(&stubArticles{}, &recordingSequencer{}, &fixedClassifier{err: errors.New("token id 9000 outside embedding vocabulary")})
	_, err := p.Run(context.Background(), Request{InputType: InputText, NewsText: "x"})
	require.Error(t, err)
	assert.Equal(t, KindInference, KindOf(err))
	assert.Contains(t, err.Error(), "token id 9000")
}

func TestKindOf_Internal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestRun_DeterministicWithRealSequencer(t *testing.T) {
	tok, err := tokenize.Parse([]byte(`{"config":{"oov_token":"<OOV>","word_index":{"<OOV>":1,"vaccine":2,"cure":3}}}`))
	require.NoError(t, err)
	seq := tokenize.NewSequencer(tok, tokenize.DefaultPadOptions())
	clf := sumClassifier{}
	p := New(&stubArticles{}, seq, clf)

	req := Request{InputType: InputText, NewsText: "Miracle CURE: vaccine!"}
	a, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	b, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.Label, b.Label)
	assert.Equal(t, a.Probability, b.Probability)
}

// sumClassifier turns the token ids into a stable pseudo-probability.
type sumClassifier struct{}

func (sumClassifier) Predict(seq []int) (float64, error) {
	s := 0
	for _, v := range seq {
		s += v
	}
	return float64(s%100) / 100, nil
}
