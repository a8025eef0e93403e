package predict

import (
	"errors"

	"github.com/hyperifyio/newscheck/internal/article"
)

// User-facing validation messages.
const (
	MsgMissingURL   = "Please provide a URL."
	MsgMissingText  = "Please provide News Text."
	MsgBadInputType = "Please select an input type."
)

// ValidationError reports a missing or invalid request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// InferenceError wraps a classifier failure.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string { return "classification failed: " + e.Err.Error() }

func (e *InferenceError) Unwrap() error { return e.Err }

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindExtraction
	KindInference
)

// KindOf reports which stage produced err.
func KindOf(err error) Kind {
	var ve *ValidationError
	var xe *article.ExtractionError
	var ie *InferenceError
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &xe):
		return KindExtraction
	case errors.As(err, &ie):
		return KindInference
	}
	return KindInternal
}
