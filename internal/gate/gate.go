package gate

import (
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/moegate-ai/moegate/internal/feature"
)

// Network dimensions. The hidden widths are fixed design constants.
const (
	InputDim = feature.Dim
	Hidden1  = 128
	Hidden2  = 64
)

// Parameters is one immutable snapshot of the gate network weights.
// Rows index output units, columns input units. A snapshot is never
// mutated after construction; retraining produces a fresh snapshot.
type Parameters struct {
	Experts int   `json:"experts"`
	Seed    int64 `json:"seed"`

	W1 [][]float32 `json:"w1"`
	B1 []float32   `json:"b1"`
	W2 [][]float32 `json:"w2"`
	B2 []float32   `json:"b2"`
	W3 [][]float32 `json:"w3"`
	B3 []float32   `json:"b3"`
}

// Gate scores feature vectors into a probability distribution over
// experts. The active parameter snapshot is swapped atomically so
// concurrent scoring never observes a partial update.
type Gate struct {
	params atomic.Pointer[Parameters]
}

// New creates a gate with seeded random initialization for the given
// expert count.
func New(experts int, seed int64) (*Gate, error) {
	p, err := NewParameters(experts, seed)
	if err != nil {
		return nil, err
	}
	g := &Gate{}
	g.params.Store(p)
	return g, nil
}

// FromParameters creates a gate around an existing snapshot.
func FromParameters(p *Parameters) (*Gate, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	g := &Gate{}
	g.params.Store(p)
	return g, nil
}

// NewParameters builds a deterministically initialized snapshot.
// Weights are drawn uniform in [-1/sqrt(fanIn), 1/sqrt(fanIn)].
func NewParameters(experts int, seed int64) (*Parameters, error) {
	if experts < 1 {
		return nil, fmt.Errorf("gate: expert count must be >= 1, got %d", experts)
	}
	rng := rand.New(rand.NewSource(seed))
	p := &Parameters{
		Experts: experts,
		Seed:    seed,
		W1:      initMatrix(rng, Hidden1, InputDim),
		B1:      make([]float32, Hidden1),
		W2:      initMatrix(rng, Hidden2, Hidden1),
		B2:      make([]float32, Hidden2),
		W3:      initMatrix(rng, experts, Hidden2),
		B3:      make([]float32, experts),
	}
	return p, nil
}

func initMatrix(rng *rand.Rand, rows, cols int) [][]float32 {
	bound := 1 / float32(math.Sqrt(float64(cols)))
	m := make([][]float32, rows)
	for i := range m {
		row := make([]float32, cols)
		for j := range row {
			row[j] = (rng.Float32()*2 - 1) * bound
		}
		m[i] = row
	}
	return m
}

func (p *Parameters) validate() error {
	if p == nil {
		return fmt.Errorf("gate: parameters are nil")
	}
	if p.Experts < 1 {
		return fmt.Errorf("gate: expert count must be >= 1, got %d", p.Experts)
	}
	if len(p.W1) != Hidden1 || len(p.B1) != Hidden1 {
		return fmt.Errorf("gate: first layer shape mismatch")
	}
	for i, row := range p.W1 {
		if len(row) != InputDim {
			return fmt.Errorf("gate: w1 row %d has width %d, want %d", i, len(row), InputDim)
		}
	}
	if len(p.W2) != Hidden2 || len(p.B2) != Hidden2 {
		return fmt.Errorf("gate: second layer shape mismatch")
	}
	for i, row := range p.W2 {
		if len(row) != Hidden1 {
			return fmt.Errorf("gate: w2 row %d has width %d, want %d", i, len(row), Hidden1)
		}
	}
	if len(p.W3) != p.Experts || len(p.B3) != p.Experts {
		return fmt.Errorf("gate: output layer shape mismatch")
	}
	for i, row := range p.W3 {
		if len(row) != Hidden2 {
			return fmt.Errorf("gate: w3 row %d has width %d, want %d", i, len(row), Hidden2)
		}
	}
	return nil
}

// Experts reports the output dimension of the active snapshot.
func (g *Gate) Experts() int {
	return g.params.Load().Experts
}

// Parameters returns the active snapshot. Callers must treat it as
// read-only.
func (g *Gate) Parameters() *Parameters {
	return g.params.Load()
}

// Swap installs a new snapshot. In-flight scoring keeps the snapshot it
// already loaded; no reader ever sees a half-updated parameter set.
func (g *Gate) Swap(p *Parameters) error {
	if err := p.validate(); err != nil {
		return err
	}
	if have := g.params.Load().Experts; p.Experts != have {
		return fmt.Errorf("gate: snapshot has %d experts, registry has %d", p.Experts, have)
	}
	g.params.Store(p)
	return nil
}

// Score maps a feature vector to a probability distribution over
// experts. For a fixed snapshot it is a pure function of the input.
func (g *Gate) Score(vec []float32) []float32 {
	return g.params.Load().Forward(vec)
}

// Forward runs the feed-forward pass: two hidden affine+ReLU layers,
// a final affine layer, then softmax.
func (p *Parameters) Forward(vec []float32) []float32 {
	h1 := affine(p.W1, p.B1, vec)
	relu(h1)
	h2 := affine(p.W2, p.B2, h1)
	relu(h2)
	logits := affine(p.W3, p.B3, h2)
	return Softmax(logits)
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

func relu(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// Softmax normalizes logits into a proper probability distribution.
// The max is subtracted first for numerical stability.
func Softmax(logits []float32) []float32 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float32, len(logits))
	var sum float32
	for i, v := range logits {
		e := float32(math.Exp(float64(v - max)))
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
