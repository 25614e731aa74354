package risk

import (
	"math"
	"slices"
	"sync"
)

// SummarySnapshot is a point-in-time view of a StreamingSummary
type SummarySnapshot struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Max    float64 `json:"max"`
	VaR95  float64 `json:"var95"`
	VaR99  float64 `json:"var99"`
}

// StreamingSummary tracks running statistics of a loss stream in O(1) memory.
// Quantiles are P-squared approximations; exact figures come from LossDistribution.
// Safe for concurrent use.
type StreamingSummary struct {
	mu    sync.Mutex
	count int
	mean  float64
	m2    float64
	max   float64
	var95 *P2QuantileEstimator
	var99 *P2QuantileEstimator
}

// NewStreamingSummary creates an empty summary
func NewStreamingSummary() *StreamingSummary {
	return &StreamingSummary{
		var95: NewP2QuantileEstimator(0.95),
		var99: NewP2QuantileEstimator(0.99),
	}
}

// Add folds one observation into the summary
func (s *StreamingSummary) Add(x float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Welford
	s.count++
	delta := x - s.mean
	s.mean += delta / float64(s.count)
	s.m2 += delta * (x - s.mean)

	if s.count == 1 || x > s.max {
		s.max = x
	}
	s.var95.Update(x)
	s.var99.Update(x)
}

// Snapshot returns the current statistics
func (s *StreamingSummary) Snapshot() SummarySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SummarySnapshot{
		Count: s.count,
		Mean:  s.mean,
		Max:   s.max,
		VaR95: s.var95.Quantile(),
		VaR99: s.var99.Quantile(),
	}
	if s.count > 1 {
		snap.StdDev = math.Sqrt(s.m2 / float64(s.count-1))
	}
	return snap
}

// P2QuantileEstimator implements the P-squared algorithm (Jain & Chlamtac) for
// online estimation of a single quantile with five markers.
// Not safe for concurrent use.
type P2QuantileEstimator struct {
	markers   [5]float64 // actual marker positions
	desired   [5]float64 // desired marker positions
	increment [5]float64 // desired position increments per observation
	heights   [5]float64 // marker heights
	quantile  float64
	count     int
}

// NewP2QuantileEstimator creates an estimator for quantile q in (0, 1)
func NewP2QuantileEstimator(q float64) *P2QuantileEstimator {
	p2 := &P2QuantileEstimator{quantile: q}
	p2.increment = [5]float64{0, q / 2, q, (1 + q) / 2, 1}
	return p2
}

// Count returns the number of observations seen
func (p2 *P2QuantileEstimator) Count() int {
	return p2.count
}

// Update processes one observation
func (p2 *P2QuantileEstimator) Update(x float64) {
	p2.count++

	if p2.count <= 5 {
		p2.heights[p2.count-1] = x
		if p2.count == 5 {
			p2.initialize()
		}
		return
	}

	var k int
	switch {
	case x < p2.heights[0]:
		p2.heights[0] = x
		k = 0
	case x >= p2.heights[4]:
		p2.heights[4] = x
		k = 3
	default:
		for k = 0; k < 3; k++ {
			if x < p2.heights[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		p2.markers[i]++
	}
	for i := range p2.desired {
		p2.desired[i] += p2.increment[i]
	}

	for i := 1; i < 4; i++ {
		d := p2.desired[i] - p2.markers[i]
		if (d >= 1 && p2.markers[i+1]-p2.markers[i] > 1) ||
			(d <= -1 && p2.markers[i-1]-p2.markers[i] < -1) {
			step := 1
			if d < 0 {
				step = -1
			}
			h := p2.parabolic(i, step)
			if p2.heights[i-1] < h && h < p2.heights[i+1] {
				p2.heights[i] = h
			} else {
				p2.heights[i] = p2.linear(i, step)
			}
			p2.markers[i] += float64(step)
		}
	}
}

// Quantile returns the current estimate. With fewer than five observations it
// is the exact order statistic of what has been seen.
func (p2 *P2QuantileEstimator) Quantile() float64 {
	if p2.count == 0 {
		return 0
	}
	if p2.count < 5 {
		seen := slices.Clone(p2.heights[:p2.count])
		slices.Sort(seen)
		return seen[QuantileIndex(len(seen), p2.quantile)]
	}
	return p2.heights[2]
}

func (p2 *P2QuantileEstimator) initialize() {
	slices.Sort(p2.heights[:])
	q := p2.quantile
	for i := range p2.markers {
		p2.markers[i] = float64(i)
	}
	p2.desired = [5]float64{0, 2 * q, 4 * q, 2 + 2*q, 4}
}

func (p2 *P2QuantileEstimator) parabolic(i, step int) float64 {
	d := float64(step)
	n, h := p2.markers, p2.heights
	return h[i] + d/(n[i+1]-n[i-1])*
		((n[i]-n[i-1]+d)*(h[i+1]-h[i])/(n[i+1]-n[i])+
			(n[i+1]-n[i]-d)*(h[i]-h[i-1])/(n[i]-n[i-1]))
}

func (p2 *P2QuantileEstimator) linear(i, step int) float64 {
	j := i + step
	return p2.heights[i] + float64(step)*(p2.heights[j]-p2.heights[i])/(p2.markers[j]-p2.markers[i])
}
