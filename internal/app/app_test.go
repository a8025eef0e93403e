package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/newscheck/internal/model"
	"github.com/hyperifyio/newscheck/internal/predict"
)

const testTokenizerJSON = `{
  "class_name": "Tokenizer",
  "config": {
    "num_words": null,
    "lower": true,
    "split": " ",
    "char_level": false,
    "oov_token": "<OOV>",
    "word_index": "{\"<OOV>\": 1, \"the\": 2, \"news\": 3, \"fake\": 4}"
  }
}`

// testArtifact scores text by the share of "fake" tokens: a sequence without
// them lands at sigmoid(0.5), a sequence made of them well below 0.5.
func testArtifact(inputLength int) model.Artifact {
	return model.Artifact{
		Format:      model.Format,
		InputLength: inputLength,
		Layers: []model.LayerSpec{
			{Type: "embedding", InputDim: 5, OutputDim: 1, MaskZero: true, Embeddings: [][]float64{{0}, {0}, {0}, {0}, {-4}}},
			{Type: "global_average_pooling1d"},
			{Type: "dense", Units: 1, Activation: "sigmoid", Kernel: [][]float64{{1}}, Bias: []float64{0.5}},
		},
	}
}

func writeArtifacts(t *testing.T, a model.Artifact) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.GinMode = "test"
	cfg.TokenizerPath = filepath.Join(dir, "tokenizer.json")
	cfg.ModelPath = filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(cfg.TokenizerPath, []byte(testTokenizerJSON), 0o644))
	b, err := json.Marshal(a)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfg.ModelPath, b, 0o644))
	return cfg
}

func TestNew_LoadsArtifacts(t *testing.T) {
	a, err := New(writeArtifacts(t, testArtifact(500)))
	require.NoError(t, err)
	defer a.Close()
	assert.Contains(t, a.Describe(), "vocabulary=5")
	assert.Contains(t, a.Describe(), "maxlen=500")
}

func TestNew_MissingArtifacts(t *testing.T) {
	cfg := writeArtifacts(t, testArtifact(500))
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.json")
	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	cfg = writeArtifacts(t, testArtifact(500))
	cfg.TokenizerPath = filepath.Join(t.TempDir(), "missing.json")
	_, err = New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNew_MalformedTokenizer(t *testing.T) {
	cfg := writeArtifacts(t, testArtifact(500))
	require.NoError(t, os.WriteFile(cfg.TokenizerPath, []byte(`{"config":`), 0o644))
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_ArtifactMismatch(t *testing.T) {
	_, err := New(writeArtifacts(t, testArtifact(100)))
	assert.ErrorIs(t, err, ErrArtifactMismatch)

	small := testArtifact(500)
	small.Layers[0].InputDim = 3
	small.Layers[0].Embeddings = small.Layers[0].Embeddings[:3]
	_, err = New(writeArtifacts(t, small))
	assert.ErrorIs(t, err, ErrArtifactMismatch)
}

func TestClassify_Text(t *testing.T) {
	a, err := New(writeArtifacts(t, testArtifact(500)))
	require.NoError(t, err)

	out, err := a.Classify(context.Background(), predict.Request{InputType: predict.InputText, NewsText: "The News!"})
	require.NoError(t, err)
	assert.Equal(t, predict.Real, out.Label)

	out, err = a.Classify(context.Background(), predict.Request{InputType: predict.InputText, NewsText: "FAKE fake fake"})
	require.NoError(t, err)
	assert.Equal(t, predict.Fake, out.Label)
	assert.Less(t, out.Probability, 0.5)
}

func TestClassify_URL(t *testing.T) {
	page := `<html><head><title>Story</title></head><body><main>
<h1>Story</h1>
<p>` + strings.Repeat("fake fake news. ", 40) + `</p>
</main></body></html>`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	}))
	defer ts.Close()

	cfg := writeArtifacts(t, testArtifact(500))
	cfg.AllowPrivateHosts = true
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	a, err := New(cfg)
	require.NoError(t, err)

	out, err := a.Classify(context.Background(), predict.Request{InputType: predict.InputURL, URL: ts.URL + "/story"})
	require.NoError(t, err)
	assert.Equal(t, predict.Fake, out.Label)
	assert.Contains(t, out.NewsText, "fake fake news")
}

func TestClose_DropsIdleFetchConnections(t *testing.T) {
	closed := make(chan struct{}, 1)
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, "<html><body><main><p>"+strings.Repeat("real news today. ", 40)+"</p></main></body></html>")
	}))
	ts.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateClosed {
			select {
			case closed <- struct{}{}:
			default:
			}
		}
	}
	ts.Start()
	defer ts.Close()

	cfg := writeArtifacts(t, testArtifact(500))
	cfg.AllowPrivateHosts = true
	a, err := New(cfg)
	require.NoError(t, err)
	_, err = a.Classify(context.Background(), predict.Request{InputType: predict.InputURL, URL: ts.URL + "/story"})
	require.NoError(t, err)

	a.Close()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("keep-alive connection still open after Close")
	}
}

func TestClassify_PrivateHostBlockedByDefault(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("private host should not be fetched")
	}))
	defer ts.Close()

	a, err := New(writeArtifacts(t, testArtifact(500)))
	require.NoError(t, err)
	_, err = a.Classify(context.Background(), predict.Request{InputType: predict.InputURL, URL: ts.URL})
	require.Error(t, err)
	assert.Equal(t, predict.KindExtraction, predict.KindOf(err))
}

func TestServe_GracefulShutdown(t *testing.T) {
	a, err := New(writeArtifacts(t, testArtifact(500)))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/health", ln.Addr())
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(url)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	cfg := writeArtifacts(t, testArtifact(500))
	cfg.ListenAddr = "bad-address"
	a, err := New(cfg)
	require.NoError(t, err)
	err = a.Run(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
