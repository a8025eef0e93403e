package predict

// Response is what the page or API shows for one request. On failure only
// Error is set.
type Response struct {
	Result        string   `json:"result,omitempty"`
	Probability   *float64 `json:"probability,omitempty"`
	URL           string   `json:"url,omitempty"`
	Title         string   `json:"title,omitempty"`
	NewsText      string   `json:"news_text,omitempty"`
	SelectedInput string   `json:"selected_input,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Render maps a pipeline result to a Response. Any error becomes the single
// user-visible message and discards the partial outcome.
func Render(out Outcome, err error) Response {
	if err != nil {
		return Response{Error: err.Error()}
	}
	prob := out.Probability
	return Response{
		Result:        string(out.Label),
		Probability:   &prob,
		URL:           out.URL,
		Title:         out.Title,
		NewsText:      out.NewsText,
		SelectedInput: out.InputType,
	}
}
