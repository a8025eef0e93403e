package model

import (
	"fmt"
	"math"
)

type activationFunc func(v []float64)

func lookupActivation(name string) (activationFunc, error) {
	switch name {
	case "", "linear":
		return func([]float64) {}, nil
	case "relu":
		return func(v []float64) {
			for i, x := range v {
				if x < 0 {
					v[i] = 0
				}
			}
		}, nil
	case "sigmoid":
		return func(v []float64) {
			for i, x := range v {
				v[i] = sigmoid(x)
			}
		}, nil
	case "hard_sigmoid":
		return func(v []float64) {
			for i, x := range v {
				v[i] = hardSigmoid(x)
			}
		}, nil
	case "tanh":
		return func(v []float64) {
			for i, x := range v {
				v[i] = math.Tanh(x)
			}
		}, nil
	case "softmax":
		return softmax, nil
	}
	return nil, fmt.Errorf("unsupported activation %q", name)
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func hardSigmoid(x float64) float64 {
	y := 0.2*x + 0.5
	if y < 0 {
		return 0
	}
	if y > 1 {
		return 1
	}
	return y
}

func softmax(v []float64) {
	if len(v) == 0 {
		return
	}
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - m)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}
