// Package dist samples scenario parameters and summarises sampled values.
//
// A sampled quantity is a plain []float64. A slice of length one is a scalar.
package dist

import (
	"math"
	"math/rand/v2"
	"slices"
)

// DefaultSampleCount is used when no sample count is configured.
const DefaultSampleCount = 10000

// Sampler draws stratified samples: the unit interval is split into n equal
// strata, one point is drawn in each, and the points are shuffled. The
// inverse CDF of the target distribution maps them to values.
type Sampler struct {
	n   int
	rng *rand.Rand
}

// NewSampler returns a sampler drawing n points per variable. The same seed
// always yields the same samples.
func NewSampler(n int, seed uint64) *Sampler {
	if n < 1 {
		n = 1
	}
	return &Sampler{
		n:   n,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// N returns the number of samples per variable.
func (s *Sampler) N() int {
	return s.n
}

func (s *Sampler) strata() []float64 {
	u := make([]float64, s.n)
	for i := range u {
		u[i] = (float64(i) + s.rng.Float64()) / float64(s.n)
	}
	s.rng.Shuffle(len(u), func(i, j int) { u[i], u[j] = u[j], u[i] })
	return u
}

// Normal samples a normal distribution.
func (s *Sampler) Normal(mean, sd float64) []float64 {
	u := s.strata()
	const eps = 1e-12
	for i, p := range u {
		p = max(eps, min(p, 1-eps))
		u[i] = mean + sd*math.Sqrt2*math.Erfinv(2*p-1)
	}
	return u
}

// Uniform samples a uniform distribution on [lo, hi].
func (s *Sampler) Uniform(lo, hi float64) []float64 {
	u := s.strata()
	for i, p := range u {
		u[i] = lo + (hi-lo)*p
	}
	return u
}

// Percentile returns the p-th quantile (0 < p < 1) of samples, taken as the
// sorted value at index floor(p*n).
func Percentile(samples []float64, p float64) float64 {
	if len(samples) == 1 {
		return samples[0]
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	return percentileSorted(sorted, p)
}

// Percentiles returns several quantiles with a single sort.
func Percentiles(samples []float64, ps []float64) []float64 {
	out := make([]float64, len(ps))
	if len(samples) == 1 {
		for i := range out {
			out[i] = samples[0]
		}
		return out
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	for i, p := range ps {
		out[i] = percentileSorted(sorted, p)
	}
	return out
}

func percentileSorted(sorted []float64, p float64) float64 {
	idx := int(p * float64(len(sorted)))
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// Median returns the 0.5 quantile.
func Median(samples []float64) float64 {
	return Percentile(samples, 0.5)
}

// Mean returns the arithmetic mean.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

// DiscretePDF returns len(ticks)+1 probabilities: P(x < ticks[0]), then
// P(ticks[i-1] <= x < ticks[i]) for each following tick, then
// P(x >= ticks[last]). The values sum to 1. A scalar puts 1 in its bin.
func DiscretePDF(samples []float64, ticks []float64) []float64 {
	out := make([]float64, len(ticks)+1)
	if len(samples) == 0 {
		return out
	}
	n := float64(len(samples))
	prev := 0.0
	for i, t := range ticks {
		below := 0
		for _, v := range samples {
			if v < t {
				below++
			}
		}
		frac := float64(below) / n
		out[i] = frac - prev
		prev = frac
	}
	out[len(ticks)] = 1 - prev
	return out
}

// MinSampleCount returns the smallest sample count for which the extreme
// percentiles fall on distinct sorted indices. percentiles must be sorted
// and lie in (0, 1).
func MinSampleCount(percentiles []float64) int {
	if len(percentiles) == 0 {
		return 1
	}
	lo, hi := percentiles[0], percentiles[len(percentiles)-1]
	minpts := math.Max(1/lo, 1/(1-hi))
	whole := math.Floor(minpts)
	if whole != minpts {
		return 2 * (int(whole) + 1)
	}
	return 2 * int(whole)
}
