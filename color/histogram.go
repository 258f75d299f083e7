package color

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// denseBitsLimit is the largest palette stored as a slice, bigger palettes use a
// map keyed by bin
const denseBitsLimit = 6

// histogram counts palette bin frequencies
type histogram struct {
	dense  []float64
	sparse map[uint32]float64
	total  float64
}

func newHistogram(bits int) *histogram {
	if bits <= denseBitsLimit {
		n := 1 << bits
		return &histogram{dense: make([]float64, n*n*n)}
	}
	return &histogram{sparse: make(map[uint32]float64)}
}

func (h *histogram) add(bin uint32, v float64) {
	if h.dense != nil {
		h.dense[bin] += v
	} else {
		h.sparse[bin] += v
	}
	h.total += v
}

func (h *histogram) get(bin uint32) float64 {
	if h.dense != nil {
		return h.dense[bin]
	}
	return h.sparse[bin]
}

// each visits every non-empty bin
func (h *histogram) each(fn func(bin uint32, count float64)) {
	if h.dense != nil {
		for b, c := range h.dense {
			if c > 0 {
				fn(uint32(b), c)
			}
		}
		return
	}

	for b, c := range h.sparse {
		if c > 0 {
			fn(b, c)
		}
	}
}

// blend folds the previous model into h, weighting it by decay
func (h *histogram) blend(prev *histogram, decay float64) {

	if prev == nil || decay <= 0 {
		return
	}

	cur := make(map[uint32]float64)
	h.each(func(bin uint32, count float64) {
		cur[bin] = count
	})

	h.reset()

	for bin, count := range cur {
		h.add(bin, (1-decay)*count)
	}

	prev.each(func(bin uint32, count float64) {
		h.add(bin, decay*count)
	})
}

func (h *histogram) reset() {
	if h.dense != nil {
		clear(h.dense)
	} else {
		clear(h.sparse)
	}
	h.total = 0
}

// distinct returns the number of non-empty bins
func (h *histogram) distinct() int {
	n := 0
	h.each(func(uint32, float64) { n++ })
	return n
}

// rarityThreshold returns the bin count at the given percentile [0,100] of
// the non-empty bin counts, capped at maxFraction of all pixels.  Bins whose
// count is at or below the threshold are rare.
func (h *histogram) rarityThreshold(percentile, maxFraction float64) float64 {

	counts := make([]float64, 0, 64)
	h.each(func(_ uint32, c float64) {
		counts = append(counts, c)
	})

	if len(counts) == 0 {
		return 0
	}

	sort.Float64s(counts)

	thr := stat.Quantile(percentile/100, stat.LinInterp, counts, nil)

	if limit := h.total * maxFraction; thr > limit {
		thr = limit
	}

	return thr
}

// quantizer maps BGR pixels to palette bins
type quantizer struct {
	shift uint
	n     uint32
}

func newQuantizer(bits int) quantizer {
	return quantizer{shift: uint(8 - bits), n: 1 << bits}
}

func (q quantizer) bin(b, g, r byte) uint32 {
	return uint32(b>>q.shift) + uint32(g>>q.shift)*q.n + uint32(r>>q.shift)*q.n*q.n
}
