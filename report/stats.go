// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"math"

	"github.com/aclements/go-moremath/stats"

	"github.com/aclements/go-regionperf/sample"
)

// RunningStats accumulates per-event mean, variance, min and max
// across every Flush call a Writer receives, without ever retaining
// more than the most recent batch: each batch's mean and variance
// (computed with go-moremath/stats) is merged into the running totals
// with Chan et al.'s parallel combination formula, matching the
// sample.Buffer's own "logically emptied after flush" invariant.
type RunningStats struct {
	n      []int64
	mean   []float64
	m2     []float64 // sum of squared deviations from mean, Chan's algorithm
	min    []uint64
	max    []uint64
	hasAny bool
}

// NewRunningStats allocates a RunningStats for the given number of
// event columns.
func NewRunningStats(columns int) *RunningStats {
	return &RunningStats{
		n:    make([]int64, columns),
		mean: make([]float64, columns),
		m2:   make([]float64, columns),
		min:  make([]uint64, columns),
		max:  make([]uint64, columns),
	}
}

// Add folds one flush batch's deltas into the running statistics.
func (r *RunningStats) Add(samples []*sample.Sample) {
	if len(samples) == 0 {
		return
	}
	columns := len(samples[0].Delta())
	for col := 0; col < columns; col++ {
		xs := make([]float64, len(samples))
		for i, s := range samples {
			d := s.Delta()[col]
			xs[i] = float64(d)
			first := !r.hasAny && i == 0
			if first || d < r.min[col] {
				r.min[col] = d
			}
			if first || d > r.max[col] {
				r.max[col] = d
			}
		}
		sm := stats.Sample{Xs: xs}
		batchMean := sm.Mean()
		batchStdDev := sm.StdDev()
		dof := len(xs) - 1
		if dof < 1 {
			dof = 1
		}
		batchM2 := batchStdDev * batchStdDev * float64(dof)
		r.merge(col, int64(len(xs)), batchMean, batchM2)
	}
	r.hasAny = true
}

// merge combines the running (n, mean, m2) for column col with a new
// batch of size bn, mean bmean and sum-of-squared-deviations bm2,
// using Chan, Golub & LeVeque's parallel variance formula.
func (r *RunningStats) merge(col int, bn int64, bmean, bm2 float64) {
	if bn == 0 {
		return
	}
	an := r.n[col]
	if an == 0 {
		r.n[col], r.mean[col], r.m2[col] = bn, bmean, bm2
		return
	}
	delta := bmean - r.mean[col]
	total := an + bn
	r.mean[col] += delta * float64(bn) / float64(total)
	r.m2[col] += bm2 + delta*delta*float64(an)*float64(bn)/float64(total)
	r.n[col] = total
}

// Count returns the total number of samples folded in so far.
func (r *RunningStats) Count() int64 {
	if len(r.n) == 0 {
		return 0
	}
	return r.n[0]
}

// Mean returns column i's running mean.
func (r *RunningStats) Mean(i int) float64 { return r.mean[i] }

// StdDev returns column i's running sample standard deviation (the
// sum of squared deviations divided by n-1).
func (r *RunningStats) StdDev(i int) float64 {
	if r.n[i] < 2 {
		return 0
	}
	return math.Sqrt(r.m2[i] / float64(r.n[i]-1))
}

// Min returns column i's running minimum.
func (r *RunningStats) Min(i int) uint64 { return r.min[i] }

// Max returns column i's running maximum.
func (r *RunningStats) Max(i int) uint64 { return r.max[i] }
