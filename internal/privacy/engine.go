// Package privacy answers aggregate queries over ledger records with
// calibrated Laplace noise and accounts for the privacy loss they incur.
package privacy

import (
	crand "crypto/rand"
	"math"
	"math/rand/v2"
	"sync"

	"lexaudit/internal/ledger/models"
	"lexaudit/internal/privacy/metrics"
	dErrors "lexaudit/pkg/domain-errors"
)

// Engine computes noisy statistics at a fixed epsilon and delta.
type Engine struct {
	epsilon float64
	delta   float64

	splitHistogram bool
	metrics        *metrics.Metrics

	mu  sync.Mutex
	rng *rand.Rand
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSource replaces the noise source. Tests pass a seeded PCG source for
// reproducible output.
func WithSource(src rand.Source) EngineOption {
	return func(e *Engine) {
		e.rng = rand.New(src)
	}
}

// SplitHistogramEpsilon divides epsilon evenly across histogram buckets
// instead of spending the full epsilon on each one.
func SplitHistogramEpsilon() EngineOption {
	return func(e *Engine) {
		e.splitHistogram = true
	}
}

func WithEngineMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine validates epsilon > 0 and 0 <= delta < 1.
func NewEngine(epsilon, delta float64, opts ...EngineOption) (*Engine, error) {
	if !(epsilon > 0) || math.IsInf(epsilon, 0) {
		return nil, dErrors.Newf(dErrors.CodeInvalidRecord, "epsilon must be positive, got %v", epsilon)
	}
	if !(delta >= 0 && delta < 1) {
		return nil, dErrors.Newf(dErrors.CodeInvalidRecord, "delta must be in [0, 1), got %v", delta)
	}
	e := &Engine{epsilon: epsilon, delta: delta}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		var seed [32]byte
		if _, err := crand.Read(seed[:]); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "seed noise source")
		}
		e.rng = rand.New(rand.NewChaCha8(seed))
	}
	return e, nil
}

func (e *Engine) Epsilon() float64 { return e.epsilon }
func (e *Engine) Delta() float64   { return e.delta }

func (e *Engine) noise(scale float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return laplace(e.rng, scale)
}

func (e *Engine) result(trueValue, scale, epsilon float64) DpQueryResult {
	return DpQueryResult{
		Value:     trueValue + e.noise(scale),
		TrueValue: trueValue,
		Epsilon:   epsilon,
		Delta:     e.delta,
		Mechanism: MechanismLaplace,
	}
}

// Count returns the number of records matching pred plus Laplace(1/epsilon)
// noise.
func (e *Engine) Count(records []models.AuditRecord, pred Predicate) DpQueryResult {
	n := 0
	for _, r := range records {
		if pred(r) {
			n++
		}
	}
	e.metrics.IncQuery("count")
	return e.result(float64(n), 1/e.epsilon, e.epsilon)
}

// Sum adds extract over all records. Sensitivity is taken as the record count,
// so the noise scale is len(records)/epsilon.
func (e *Engine) Sum(records []models.AuditRecord, extract Extractor) DpQueryResult {
	var total float64
	for _, r := range records {
		total += extract(r)
	}
	e.metrics.IncQuery("sum")
	return e.result(total, sensitivity(len(records))/e.epsilon, e.epsilon)
}

// Average noises the sum and the count separately and divides. The two
// sub-queries compose sequentially, so the reported epsilon is doubled. An
// empty input returns a zero result with zero cost.
func (e *Engine) Average(records []models.AuditRecord, extract Extractor) DpQueryResult {
	e.metrics.IncQuery("average")
	if len(records) == 0 {
		return DpQueryResult{Delta: e.delta, Mechanism: MechanismLaplace}
	}

	var total float64
	for _, r := range records {
		total += extract(r)
	}
	n := float64(len(records))

	noisySum := total + e.noise(sensitivity(len(records))/e.epsilon)
	noisyCount := n + e.noise(1/e.epsilon)
	if noisyCount < 1 {
		noisyCount = 1
	}
	return DpQueryResult{
		Value:     noisySum / noisyCount,
		TrueValue: total / n,
		Epsilon:   2 * e.epsilon,
		Delta:     e.delta,
		Mechanism: MechanismLaplace,
	}
}

// Histogram counts records per key and noises each bucket independently. By
// default every bucket is noised at the full epsilon; since each record
// falls into exactly one bucket the buckets compose in parallel and the
// query costs epsilon. With SplitHistogramEpsilon each bucket gets
// epsilon/buckets instead.
func (e *Engine) Histogram(records []models.AuditRecord, key KeyFunc) HistogramResult {
	counts := make(map[string]int)
	for _, r := range records {
		counts[key(r)]++
	}

	perBucket := e.epsilon
	if e.splitHistogram && len(counts) > 0 {
		perBucket = e.epsilon / float64(len(counts))
	}

	out := HistogramResult{
		Buckets: make(map[string]DpQueryResult, len(counts)),
		Epsilon: e.epsilon,
		Delta:   e.delta,
	}
	if len(counts) == 0 {
		out.Epsilon = 0
	}
	for k, c := range counts {
		out.Buckets[k] = e.result(float64(c), 1/perBucket, perBucket)
	}
	e.metrics.IncQuery("histogram")
	return out
}

func sensitivity(n int) float64 {
	return float64(max(n, 1))
}
