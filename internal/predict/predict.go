// Package predict runs the news verdict pipeline: validate the request,
// obtain text (scraped or supplied), normalize, tokenize, classify and label.
package predict

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/newscheck/internal/article"
	"github.com/hyperifyio/newscheck/internal/textnorm"
)

// Input types accepted in Request.InputType.
const (
	InputURL  = "url"
	InputText = "text"
)

// Label is the verdict shown to the user.
type Label string

const (
	Real Label = "Real"
	Fake Label = "Fake"
)

// Threshold is the probability a prediction must exceed to be Real.
const Threshold = 0.5

// LabelFor maps a probability to a label. Exactly Threshold is Fake.
func LabelFor(p float64) Label {
	if p > Threshold {
		return Real
	}
	return Fake
}

// Request is one user submission.
type Request struct {
	InputType string
	URL       string
	NewsText  string
}

// Outcome is a successful prediction.
type Outcome struct {
	Label       Label
	Probability float64
	InputType   string
	URL         string
	// NewsText is the supplied text, or the scraped text for URL inputs.
	NewsText string
	Title    string
}

// ArticleSource turns a URL into article text.
type ArticleSource interface {
	Extract(ctx context.Context, rawURL string) (article.Article, error)
}

// Sequencer maps normalized text to a fixed-length token sequence.
type Sequencer interface {
	Sequence(text string) []int
}

// Classifier scores a token sequence.
type Classifier interface {
	Predict(seq []int) (float64, error)
}

// Pipeline holds the process-wide read-only collaborators. It is safe for
// concurrent use as long as they are.
type Pipeline struct {
	articles   ArticleSource
	sequencer  Sequencer
	classifier Classifier
}

// New wires a pipeline.
func New(articles ArticleSource, sequencer Sequencer, classifier Classifier) *Pipeline {
	return &Pipeline{articles: articles, sequencer: sequencer, classifier: classifier}
}

// Validate checks that req names a supported input type and carries the
// field that type requires.
func Validate(req Request) error {
	switch req.InputType {
	case InputURL:
		if req.URL == "" {
			return &ValidationError{Field: "url", Message: MsgMissingURL}
		}
	case InputText:
		if req.NewsText == "" {
			return &ValidationError{Field: "news_text", Message: MsgMissingText}
		}
	default:
		return &ValidationError{Field: "inputType", Message: MsgBadInputType}
	}
	return nil
}

// Run executes the pipeline once. It never retries; the first failing stage
// ends the run.
func (p *Pipeline) Run(ctx context.Context, req Request) (Outcome, error) {
	if err := Validate(req); err != nil {
		return Outcome{}, err
	}
	out := Outcome{InputType: req.InputType, URL: req.URL, NewsText: req.NewsText}
	if req.InputType == InputURL {
		a, err := p.articles.Extract(ctx, req.URL)
		if err != nil {
			return Outcome{}, err
		}
		out.NewsText = a.Text
		out.Title = a.Title
	}
	prob, err := p.Score(out.NewsText)
	if err != nil {
		return Outcome{}, err
	}
	out.Probability = prob
	out.Label = LabelFor(prob)
	log.Debug().Str("input", req.InputType).Float64("probability", prob).Str("label", string(out.Label)).Msg("prediction")
	return out, nil
}

// Score normalizes, tokenizes and classifies text.
func (p *Pipeline) Score(text string) (float64, error) {
	seq := p.sequencer.Sequence(textnorm.Normalize(text))
	prob, err := p.classifier.Predict(seq)
	if err != nil {
		return 0, &InferenceError{Err: fmt.Errorf("predict: %w", err)}
	}
	return prob, nil
}
