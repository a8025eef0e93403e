// Package model runs inference for the pre-trained news classifier.
//
// The network is exported offline from the training framework into a JSON
// artifact listing the layers of a sequential model and their weights. Only
// the layers needed for text classification over token sequences are
// supported: embedding, lstm, gru, pooling, flatten, dropout and dense.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Format is the artifact format identifier written by the export script.
const Format = "sequential/v1"

// Artifact is the on-disk representation of a sequential model.
type Artifact struct {
	Format      string      `json:"format"`
	InputLength int         `json:"input_length"`
	Layers      []LayerSpec `json:"layers"`
}

// LayerSpec describes one layer. Weight matrices are row-major with rows
// indexing the layer input, as the training framework stores them.
type LayerSpec struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`

	// embedding
	InputDim   int         `json:"input_dim,omitempty"`
	OutputDim  int         `json:"output_dim,omitempty"`
	MaskZero   bool        `json:"mask_zero,omitempty"`
	Embeddings [][]float64 `json:"embeddings,omitempty"`

	// lstm, gru, dense
	Units               int         `json:"units,omitempty"`
	Activation          string      `json:"activation,omitempty"`
	RecurrentActivation string      `json:"recurrent_activation,omitempty"`
	ReturnSequences     bool        `json:"return_sequences,omitempty"`
	ResetAfter          *bool       `json:"reset_after,omitempty"`
	Kernel              [][]float64 `json:"kernel,omitempty"`
	RecurrentKernel     [][]float64 `json:"recurrent_kernel,omitempty"`
	Bias                []float64   `json:"bias,omitempty"`
	RecurrentBias       []float64   `json:"recurrent_bias,omitempty"`

	// dropout
	Rate float64 `json:"rate,omitempty"`
}

// Model is an immutable, loaded network. Predict is safe for concurrent use.
type Model struct {
	inputLength int
	embed       *embedding
	layers      []layer
	names       []string
}

// ErrNoLayers is returned for artifacts without an embedding layer.
var ErrNoLayers = errors.New("model: artifact has no layers")

// Load reads and validates a model artifact.
func Load(path string) (*Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("%s: parse model json: %w", path, err)
	}
	m, err := Build(a)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Build assembles a model from an artifact, checking every weight shape.
func Build(a Artifact) (*Model, error) {
	if a.Format != "" && a.Format != Format {
		return nil, fmt.Errorf("unsupported model format %q", a.Format)
	}
	if len(a.Layers) == 0 {
		return nil, ErrNoLayers
	}
	if a.InputLength < 0 {
		return nil, fmt.Errorf("negative input_length %d", a.InputLength)
	}
	first := a.Layers[0]
	if first.Type != "embedding" {
		return nil, fmt.Errorf("first layer must be embedding, got %q", first.Type)
	}
	emb, err := buildEmbedding(first)
	if err != nil {
		return nil, fmt.Errorf("layer 0 (embedding): %w", err)
	}
	m := &Model{inputLength: a.InputLength, embed: emb, names: []string{layerName(first, 0)}}
	cur := shape{seq: true, features: first.OutputDim}
	for i, spec := range a.Layers[1:] {
		idx := i + 1
		l, next, err := buildLayer(spec, cur, a.InputLength)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", idx, spec.Type, err)
		}
		m.layers = append(m.layers, l)
		m.names = append(m.names, layerName(spec, idx))
		cur = next
	}
	if cur.seq || cur.features != 1 {
		return nil, fmt.Errorf("model must end in a single output unit, got seq=%t features=%d", cur.seq, cur.features)
	}
	return m, nil
}

func layerName(s LayerSpec, idx int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%s_%d", s.Type, idx)
}

// InputLength is the sequence length the model was trained on; zero means
// any length is accepted.
func (m *Model) InputLength() int { return m.inputLength }

// VocabularySize is the number of rows in the embedding table.
func (m *Model) VocabularySize() int { return len(m.embed.weights) }

// Layers lists layer names in evaluation order.
func (m *Model) Layers() []string { return append([]string(nil), m.names...) }

// Predict returns the probability the network assigns to seq.
func (m *Model) Predict(seq []int) (float64, error) {
	if m.inputLength > 0 && len(seq) != m.inputLength {
		return 0, fmt.Errorf("sequence length %d, model expects %d", len(seq), m.inputLength)
	}
	if len(seq) == 0 {
		return 0, errors.New("empty sequence")
	}
	x, err := m.embed.lookup(seq)
	if err != nil {
		return 0, err
	}
	for i, l := range m.layers {
		if x, err = l.forward(x); err != nil {
			return 0, fmt.Errorf("%s: %w", m.names[i+1], err)
		}
	}
	return x.vec[0], nil
}

func buildEmbedding(s LayerSpec) (*embedding, error) {
	if s.InputDim <= 0 || s.OutputDim <= 0 {
		return nil, fmt.Errorf("input_dim and output_dim must be positive")
	}
	if err := checkMatrix("embeddings", s.Embeddings, s.InputDim, s.OutputDim); err != nil {
		return nil, err
	}
	return &embedding{weights: s.Embeddings, maskZero: s.MaskZero}, nil
}

func buildLayer(s LayerSpec, in shape, inputLength int) (layer, shape, error) {
	switch s.Type {
	case "lstm":
		if !in.seq {
			return nil, shape{}, errors.New("expects a sequence input")
		}
		act, rec, err := recurrentActivations(s, "sigmoid")
		if err != nil {
			return nil, shape{}, err
		}
		u := s.Units
		if u <= 0 {
			return nil, shape{}, errors.New("units must be positive")
		}
		if err := checkMatrix("kernel", s.Kernel, in.features, 4*u); err != nil {
			return nil, shape{}, err
		}
		if err := checkMatrix("recurrent_kernel", s.RecurrentKernel, u, 4*u); err != nil {
			return nil, shape{}, err
		}
		if err := checkVector("bias", s.Bias, 4*u); err != nil {
			return nil, shape{}, err
		}
		l := &lstm{units: u, kernel: s.Kernel, recurrentKernel: s.RecurrentKernel, bias: s.Bias,
			activation: act, recurrentAct: rec, returnSequences: s.ReturnSequences}
		return l, shape{seq: s.ReturnSequences, features: u}, nil

	case "gru":
		if !in.seq {
			return nil, shape{}, errors.New("expects a sequence input")
		}
		act, rec, err := recurrentActivations(s, "sigmoid")
		if err != nil {
			return nil, shape{}, err
		}
		u := s.Units
		if u <= 0 {
			return nil, shape{}, errors.New("units must be positive")
		}
		resetAfter := true
		if s.ResetAfter != nil {
			resetAfter = *s.ResetAfter
		}
		if err := checkMatrix("kernel", s.Kernel, in.features, 3*u); err != nil {
			return nil, shape{}, err
		}
		if err := checkMatrix("recurrent_kernel", s.RecurrentKernel, u, 3*u); err != nil {
			return nil, shape{}, err
		}
		if err := checkVector("bias", s.Bias, 3*u); err != nil {
			return nil, shape{}, err
		}
		if resetAfter {
			if err := checkVector("recurrent_bias", s.RecurrentBias, 3*u); err != nil {
				return nil, shape{}, err
			}
		}
		l := &gru{units: u, kernel: s.Kernel, recurrentKernel: s.RecurrentKernel, bias: s.Bias,
			recurrentBias: s.RecurrentBias, resetAfter: resetAfter, activation: act, recurrentAct: rec,
			returnSequences: s.ReturnSequences}
		return l, shape{seq: s.ReturnSequences, features: u}, nil

	case "global_average_pooling1d":
		if !in.seq {
			return nil, shape{}, errors.New("expects a sequence input")
		}
		return globalAveragePooling{}, shape{features: in.features}, nil

	case "global_max_pooling1d":
		if !in.seq {
			return nil, shape{}, errors.New("expects a sequence input")
		}
		return globalMaxPooling{}, shape{features: in.features}, nil

	case "flatten":
		if !in.seq {
			return flatten{}, in, nil
		}
		if inputLength <= 0 {
			return nil, shape{}, errors.New("flatten after a sequence needs input_length")
		}
		return flatten{}, shape{features: inputLength * in.features}, nil

	case "dropout", "spatial_dropout1d":
		if s.Rate < 0 || s.Rate >= 1 {
			return nil, shape{}, fmt.Errorf("rate %v out of range [0,1)", s.Rate)
		}
		return identity{}, in, nil

	case "dense":
		act, err := lookupActivation(s.Activation)
		if err != nil {
			return nil, shape{}, err
		}
		if s.Units <= 0 {
			return nil, shape{}, errors.New("units must be positive")
		}
		if err := checkMatrix("kernel", s.Kernel, in.features, s.Units); err != nil {
			return nil, shape{}, err
		}
		bias := s.Bias
		if bias == nil {
			bias = make([]float64, s.Units)
		}
		if err := checkVector("bias", bias, s.Units); err != nil {
			return nil, shape{}, err
		}
		return &dense{kernel: s.Kernel, bias: bias, activation: act}, shape{seq: in.seq, features: s.Units}, nil
	}
	return nil, shape{}, fmt.Errorf("unsupported layer type %q", s.Type)
}

func recurrentActivations(s LayerSpec, defaultRecurrent string) (activationFunc, activationFunc, error) {
	actName := s.Activation
	if actName == "" {
		actName = "tanh"
	}
	recName := s.RecurrentActivation
	if recName == "" {
		recName = defaultRecurrent
	}
	act, err := lookupActivation(actName)
	if err != nil {
		return nil, nil, err
	}
	rec, err := lookupActivation(recName)
	if err != nil {
		return nil, nil, err
	}
	return act, rec, nil
}

func checkMatrix(name string, m [][]float64, rows, cols int) error {
	if len(m) != rows {
		return fmt.Errorf("%s has %d rows, want %d", name, len(m), rows)
	}
	for i, r := range m {
		if len(r) != cols {
			return fmt.Errorf("%s row %d has %d columns, want %d", name, i, len(r), cols)
		}
	}
	return nil
}

func checkVector(name string, v []float64, n int) error {
	if len(v) != n {
		return fmt.Errorf("%s has length %d, want %d", name, len(v), n)
	}
	return nil
}
