// Package trainer fits gate parameters from labeled examples. It runs
// offline, never on the serving path: Fit returns a fresh snapshot for
// the caller to install atomically once training completes.
package trainer

import (
	"fmt"
	"math"

	"github.com/moegate-ai/moegate/internal/feature"
	"github.com/moegate-ai/moegate/internal/gate"
)

// Example is one labeled routing decision.
type Example struct {
	Text        string `json:"text"`
	ExpertIndex int    `json:"expert_index"`
}

// Fit runs full-batch gradient descent on the categorical
// cross-entropy between the gate's output distribution and the one-hot
// expert label. The input snapshot is not mutated; the returned
// snapshot holds the fitted weights. The second return is the per-epoch
// loss history.
func Fit(base *gate.Parameters, examples []Example, learningRate float32, epochs int) (*gate.Parameters, []float32, error) {
	if base == nil {
		return nil, nil, fmt.Errorf("trainer: base parameters are nil")
	}
	if len(examples) == 0 {
		return nil, nil, fmt.Errorf("trainer: no examples")
	}
	if learningRate <= 0 {
		return nil, nil, fmt.Errorf("trainer: learning rate must be > 0, got %g", learningRate)
	}
	if epochs < 1 {
		return nil, nil, fmt.Errorf("trainer: epochs must be >= 1, got %d", epochs)
	}

	inputs := make([][]float32, len(examples))
	labels := make([]int, len(examples))
	for i, ex := range examples {
		if ex.ExpertIndex < 0 || ex.ExpertIndex >= base.Experts {
			return nil, nil, fmt.Errorf("trainer: example %d labels expert %d, registry has %d", i, ex.ExpertIndex, base.Experts)
		}
		canonical, binary := feature.Canonicalize([]byte(ex.Text))
		inputs[i] = feature.Analyze(canonical, binary).Vector()
		labels[i] = ex.ExpertIndex
	}

	p := clone(base)
	losses := make([]float32, 0, epochs)
	for epoch := 0; epoch < epochs; epoch++ {
		loss := step(p, inputs, labels, learningRate)
		losses = append(losses, loss)
	}
	return p, losses, nil
}

// step performs one full-batch update and returns the mean loss before
// the update.
func step(p *gate.Parameters, inputs [][]float32, labels []int, lr float32) float32 {
	g := newGrads(p)
	n := float32(len(inputs))

	var loss float64
	for i, x := range inputs {
		y := labels[i]

		// Forward pass with cached pre-activations.
		z1 := affine(p.W1, p.B1, x)
		a1 := reluCopy(z1)
		z2 := affine(p.W2, p.B2, a1)
		a2 := reluCopy(z2)
		z3 := affine(p.W3, p.B3, a2)
		prob := gate.Softmax(z3)

		loss += -math.Log(math.Max(float64(prob[y]), 1e-12))

		// Softmax + cross-entropy collapses to (p - onehot).
		dz3 := make([]float32, len(prob))
		copy(dz3, prob)
		dz3[y]--
		for j := range dz3 {
			dz3[j] /= n
		}

		accumulate(g.w3, g.b3, dz3, a2)
		dz2 := backprop(p.W3, dz3, z2)
		accumulate(g.w2, g.b2, dz2, a1)
		dz1 := backprop(p.W2, dz2, z1)
		accumulate(g.w1, g.b1, dz1, x)
	}

	apply(p.W1, p.B1, g.w1, g.b1, lr)
	apply(p.W2, p.B2, g.w2, g.b2, lr)
	apply(p.W3, p.B3, g.w3, g.b3, lr)

	return float32(loss / float64(n))
}

type grads struct {
	w1, w2, w3 [][]float32
	b1, b2, b3 []float32
}

func newGrads(p *gate.Parameters) *grads {
	return &grads{
		w1: zeroLike(p.W1),
		b1: make([]float32, len(p.B1)),
		w2: zeroLike(p.W2),
		b2: make([]float32, len(p.B2)),
		w3: zeroLike(p.W3),
		b3: make([]float32, len(p.B3)),
	}
}

// accumulate adds the outer product dz * in to dw and dz to db.
func accumulate(dw [][]float32, db []float32, dz []float32, in []float32) {
	for i, d := range dz {
		row := dw[i]
		for j, v := range in {
			row[j] += d * v
		}
		db[i] += d
	}
}

// backprop propagates dz through weights w and the ReLU at
// pre-activation z, returning the gradient one layer down.
func backprop(w [][]float32, dz []float32, z []float32) []float32 {
	out := make([]float32, len(z))
	for i, d := range dz {
		row := w[i]
		for j := range out {
			out[j] += row[j] * d
		}
	}
	for j, v := range z {
		if v <= 0 {
			out[j] = 0
		}
	}
	return out
}

func apply(w [][]float32, b []float32, dw [][]float32, db []float32, lr float32) {
	for i, row := range w {
		for j := range row {
			row[j] -= lr * dw[i][j]
		}
		b[i] -= lr * db[i]
	}
}

func affine(w [][]float32, b []float32, x []float32) []float32 {
	out := make([]float32, len(w))
	for i, row := range w {
		sum := b[i]
		for j, v := range row {
			sum += v * x[j]
		}
		out[i] = sum
	}
	return out
}

func reluCopy(x []float32) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		if v > 0 {
			out[i] = v
		}
	}
	return out
}

func zeroLike(m [][]float32) [][]float32 {
	out := make([][]float32, len(m))
	for i, row := range m {
		out[i] = make([]float32, len(row))
	}
	return out
}

func clone(p *gate.Parameters) *gate.Parameters {
	return &gate.Parameters{
		Experts: p.Experts,
		Seed:    p.Seed,
		W1:      cloneMatrix(p.W1),
		B1:      append([]float32(nil), p.B1...),
		W2:      cloneMatrix(p.W2),
		B2:      append([]float32(nil), p.B2...),
		W3:      cloneMatrix(p.W3),
		B3:      append([]float32(nil), p.B3...),
	}
}

func cloneMatrix(m [][]float32) [][]float32 {
	out := make([][]float32, len(m))
	for i, row := range m {
		out[i] = append([]float32(nil), row...)
	}
	return out
}
