// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report formats closed samples into the tabular output the
// engine's sample.Buffer flushes to, and accumulates running summary
// statistics across every flush of a run (grounded on
// cmd/perfdump's column-per-field, Fprintf-driven reporting style).
package report // import "github.com/aclements/go-regionperf/report"

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aclements/go-regionperf/pmu"
	"github.com/aclements/go-regionperf/sample"
)

// Writer is the default sample.Formatter: one row per sample, one
// column per PMU event, plus the run's summary rows emitted by
// CloseSummary.
type Writer struct {
	out   io.Writer
	tw    *tabwriter.Writer
	index int
	stats *RunningStats
}

// NewWriter wraps out for use as a sample.Formatter.
func NewWriter(out io.Writer) *Writer {
	return &Writer{
		out: out,
		tw:  tabwriter.NewWriter(out, 0, 4, 2, ' ', 0),
	}
}

// Flush implements sample.Formatter.
func (w *Writer) Flush(samples []*sample.Sample, events []pmu.Event, headers bool) error {
	if w.stats == nil {
		w.stats = NewRunningStats(len(events))
	}
	if headers {
		fmt.Fprint(w.tw, "sample\t")
		for _, name := range pmu.Names(events) {
			fmt.Fprintf(w.tw, "%s\t", name)
		}
		fmt.Fprintln(w.tw)
	}

	for _, s := range samples {
		delta := s.Delta()
		fmt.Fprintf(w.tw, "%d\t", w.index)
		for _, v := range delta {
			fmt.Fprintf(w.tw, "%d\t", v)
		}
		fmt.Fprintln(w.tw)
		w.index++
	}

	if err := w.tw.Flush(); err != nil {
		return fmt.Errorf("report: flush table: %w", err)
	}
	w.stats.Add(samples)
	return nil
}

// CloseSummary implements sample.SummaryCloser, writing the
// accumulated summary statistics (mean, standard deviation, min and
// max per event) computed across the whole run without the formatter
// ever holding more than the most recent flush batch in memory.
func (w *Writer) CloseSummary(events []pmu.Event) error {
	if w.stats == nil || w.stats.Count() == 0 {
		return nil
	}
	fmt.Fprintln(w.out)
	tw := tabwriter.NewWriter(w.out, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "stat\t")
	for _, name := range pmu.Names(events) {
		fmt.Fprintf(tw, "%s\t", name)
	}
	fmt.Fprintln(tw)

	rows := []struct {
		label string
		get   func(int) float64
	}{
		{"mean", w.stats.Mean},
		{"stddev", w.stats.StdDev},
		{"min", func(i int) float64 { return float64(w.stats.Min(i)) }},
		{"max", func(i int) float64 { return float64(w.stats.Max(i)) }},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t", row.label)
		for i := range events {
			fmt.Fprintf(tw, "%.2f\t", row.get(i))
		}
		fmt.Fprintln(tw)
	}
	fmt.Fprintf(w.out, "\nsamples: %d\n", w.stats.Count())
	return tw.Flush()
}
