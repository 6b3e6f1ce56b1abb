package aggregate

import "sort"

// weightedSample is one pooled observation and the weight it carries.
type weightedSample struct {
	value  float64
	weight float64
	source int
}

// pool is an ordered, weighted distribution built from several sources.
type pool struct {
	samples []weightedSample
	// positions[i] is the centred cumulative weight of samples[i].
	positions []float64
	total     float64
}

func newPool(samples []weightedSample) *pool {
	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].value != samples[j].value {
			return samples[i].value < samples[j].value
		}
		return samples[i].source < samples[j].source
	})

	p := &pool{samples: samples, positions: make([]float64, len(samples))}
	cum := 0.0
	for i, s := range samples {
		p.positions[i] = cum + s.weight/2
		cum += s.weight
	}
	p.total = cum
	return p
}

// Percentile returns the weighted percentile q (0-1). The rank q*total is
// located between the two samples whose centred cumulative weights bracket
// it and linearly interpolated; ranks outside the first or last position
// clamp to the extreme sample.
func (p *pool) Percentile(q float64) float64 {
	n := len(p.samples)
	if n == 0 {
		return 0
	}
	rank := q * p.total
	if rank <= p.positions[0] {
		return p.samples[0].value
	}
	if rank >= p.positions[n-1] {
		return p.samples[n-1].value
	}

	// First position strictly greater than rank; its predecessor is <= rank.
	hi := sort.Search(n, func(i int) bool { return p.positions[i] > rank })
	lo := hi - 1
	span := p.positions[hi] - p.positions[lo]
	if span <= 0 {
		return p.samples[lo].value
	}
	frac := (rank - p.positions[lo]) / span
	return p.samples[lo].value + frac*(p.samples[hi].value-p.samples[lo].value)
}
