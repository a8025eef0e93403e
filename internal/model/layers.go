package model

import (
	"fmt"
	"math"
)

// tensor carries activations between layers: either a sequence of feature
// vectors (with an optional mask) or a single flat vector.
type tensor struct {
	seq  [][]float64
	mask []bool
	vec  []float64
}

func (t tensor) isSeq() bool { return t.seq != nil }

type layer interface {
	forward(in tensor) (tensor, error)
}

// shape tracks the output of each layer while the network is assembled.
type shape struct {
	seq      bool
	features int
}

type embedding struct {
	weights  [][]float64
	maskZero bool
}

func (e *embedding) lookup(ids []int) (tensor, error) {
	out := tensor{seq: make([][]float64, len(ids))}
	if e.maskZero {
		out.mask = make([]bool, len(ids))
	}
	for t, id := range ids {
		if id < 0 || id >= len(e.weights) {
			return tensor{}, fmt.Errorf("token id %d outside embedding vocabulary [0,%d)", id, len(e.weights))
		}
		out.seq[t] = e.weights[id]
		if e.maskZero {
			out.mask[t] = id != 0
		}
	}
	return out, nil
}

// lstm follows the Keras kernel layout: columns are grouped as input,
// forget, cell and output gates, each units wide.
type lstm struct {
	units           int
	kernel          [][]float64
	recurrentKernel [][]float64
	bias            []float64
	activation      activationFunc
	recurrentAct    activationFunc
	returnSequences bool
}

func (l *lstm) forward(in tensor) (tensor, error) {
	if !in.isSeq() {
		return tensor{}, fmt.Errorf("lstm expects a sequence input")
	}
	u := l.units
	h := make([]float64, u)
	c := make([]float64, u)
	var outs [][]float64
	if l.returnSequences {
		outs = make([][]float64, len(in.seq))
	}
	z := make([]float64, 4*u)
	for t, x := range in.seq {
		if in.mask == nil || in.mask[t] {
			copy(z, l.bias)
			addVecMat(z, x, l.kernel)
			addVecMat(z, h, l.recurrentKernel)
			i, f, g, o := z[:u], z[u:2*u], z[2*u:3*u], z[3*u:]
			l.recurrentAct(i)
			l.recurrentAct(f)
			l.activation(g)
			l.recurrentAct(o)
			for k := 0; k < u; k++ {
				c[k] = f[k]*c[k] + i[k]*g[k]
			}
			act := append([]float64(nil), c...)
			l.activation(act)
			for k := 0; k < u; k++ {
				h[k] = o[k] * act[k]
			}
		}
		if l.returnSequences {
			outs[t] = append([]float64(nil), h...)
		}
	}
	if l.returnSequences {
		return tensor{seq: outs, mask: in.mask}, nil
	}
	return tensor{vec: h}, nil
}

// gru follows the Keras layout: update, reset and candidate gates. With
// resetAfter the reset gate is applied after the recurrent matmul and a
// separate recurrent bias is used.
type gru struct {
	units           int
	kernel          [][]float64
	recurrentKernel [][]float64
	bias            []float64
	recurrentBias   []float64
	resetAfter      bool
	activation      activationFunc
	recurrentAct    activationFunc
	returnSequences bool
}

func (g *gru) forward(in tensor) (tensor, error) {
	if !in.isSeq() {
		return tensor{}, fmt.Errorf("gru expects a sequence input")
	}
	u := g.units
	h := make([]float64, u)
	var outs [][]float64
	if g.returnSequences {
		outs = make([][]float64, len(in.seq))
	}
	xz := make([]float64, 3*u)
	hz := make([]float64, 3*u)
	for t, x := range in.seq {
		if in.mask == nil || in.mask[t] {
			copy(xz, g.bias)
			addVecMat(xz, x, g.kernel)
			if g.resetAfter {
				copy(hz, g.recurrentBias)
				addVecMat(hz, h, g.recurrentKernel)
			} else {
				for k := range hz {
					hz[k] = 0
				}
				addVecMatCols(hz[:2*u], h, g.recurrentKernel, 0)
			}
			zg := addInto(make([]float64, u), xz[:u], hz[:u])
			rg := addInto(make([]float64, u), xz[u:2*u], hz[u:2*u])
			g.recurrentAct(zg)
			g.recurrentAct(rg)
			cand := make([]float64, u)
			if g.resetAfter {
				for k := 0; k < u; k++ {
					cand[k] = xz[2*u+k] + rg[k]*hz[2*u+k]
				}
			} else {
				rh := make([]float64, u)
				for k := 0; k < u; k++ {
					rh[k] = rg[k] * h[k]
				}
				copy(cand, xz[2*u:])
				addVecMatCols(cand, rh, g.recurrentKernel, 2*u)
			}
			g.activation(cand)
			for k := 0; k < u; k++ {
				h[k] = zg[k]*h[k] + (1-zg[k])*cand[k]
			}
		}
		if g.returnSequences {
			outs[t] = append([]float64(nil), h...)
		}
	}
	if g.returnSequences {
		return tensor{seq: outs, mask: in.mask}, nil
	}
	return tensor{vec: h}, nil
}

type globalAveragePooling struct{}

func (globalAveragePooling) forward(in tensor) (tensor, error) {
	if !in.isSeq() {
		return tensor{}, fmt.Errorf("global_average_pooling1d expects a sequence input")
	}
	out := make([]float64, seqFeatures(in))
	n := 0
	for t, x := range in.seq {
		if in.mask != nil && !in.mask[t] {
			continue
		}
		n++
		for k, v := range x {
			out[k] += v
		}
	}
	if n > 0 {
		for k := range out {
			out[k] /= float64(n)
		}
	}
	return tensor{vec: out}, nil
}

type globalMaxPooling struct{}

func (globalMaxPooling) forward(in tensor) (tensor, error) {
	if !in.isSeq() {
		return tensor{}, fmt.Errorf("global_max_pooling1d expects a sequence input")
	}
	out := make([]float64, seqFeatures(in))
	for k := range out {
		out[k] = math.Inf(-1)
	}
	seen := false
	for t, x := range in.seq {
		if in.mask != nil && !in.mask[t] {
			continue
		}
		seen = true
		for k, v := range x {
			if v > out[k] {
				out[k] = v
			}
		}
	}
	if !seen {
		for k := range out {
			out[k] = 0
		}
	}
	return tensor{vec: out}, nil
}

type flatten struct{}

func (flatten) forward(in tensor) (tensor, error) {
	if !in.isSeq() {
		return in, nil
	}
	out := make([]float64, 0, len(in.seq)*seqFeatures(in))
	for _, x := range in.seq {
		out = append(out, x...)
	}
	return tensor{vec: out}, nil
}

type identity struct{}

func (identity) forward(in tensor) (tensor, error) { return in, nil }

type dense struct {
	kernel     [][]float64
	bias       []float64
	activation activationFunc
}

func (d *dense) apply(x []float64) []float64 {
	out := make([]float64, len(d.bias))
	copy(out, d.bias)
	addVecMat(out, x, d.kernel)
	d.activation(out)
	return out
}

func (d *dense) forward(in tensor) (tensor, error) {
	if !in.isSeq() {
		return tensor{vec: d.apply(in.vec)}, nil
	}
	out := tensor{seq: make([][]float64, len(in.seq)), mask: in.mask}
	for t, x := range in.seq {
		out.seq[t] = d.apply(x)
	}
	return out, nil
}

func seqFeatures(t tensor) int {
	if len(t.seq) == 0 {
		return 0
	}
	return len(t.seq[0])
}

// addVecMat computes dst += x · m where m is len(x) rows by len(dst) columns.
func addVecMat(dst, x []float64, m [][]float64) {
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		row := m[i]
		for j := range dst {
			dst[j] += xi * row[j]
		}
	}
}

// addVecMatCols is addVecMat restricted to columns [off, off+len(dst)).
func addVecMatCols(dst, x []float64, m [][]float64, off int) {
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		row := m[i][off : off+len(dst)]
		for j := range dst {
			dst[j] += xi * row[j]
		}
	}
}

func addInto(dst, a, b []float64) []float64 {
	for i := range dst {
		dst[i] = a[i] + b[i]
	}
	return dst
}
