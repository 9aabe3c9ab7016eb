// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aclements/go-regionperf/pmu"
	"github.com/aclements/go-regionperf/sample"
)

func TestWriterFlushHeadersOnce(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	events := []pmu.Event{{Name: "cpu-cycles"}}

	// A capacity-1 Buffer flushes after every CloseCurrent, giving one
	// Formatter.Flush call per sample without reaching into sample's
	// unexported Sample.close.
	b := sample.NewBuffer(events, 1)

	b.BeginNext(pmu.CounterVector{0})
	b.CloseCurrent(pmu.CounterVector{10})
	if err := b.MaybeFlush(w); err != nil {
		t.Fatalf("MaybeFlush: %v", err)
	}

	b.BeginNext(pmu.CounterVector{10})
	b.CloseCurrent(pmu.CounterVector{30})
	if err := b.MaybeFlush(w); err != nil {
		t.Fatalf("MaybeFlush: %v", err)
	}

	out := buf.String()
	if strings.Count(out, "cpu-cycles") != 1 {
		t.Fatalf("header printed %d times, want 1:\n%s", strings.Count(out, "cpu-cycles"), out)
	}
	if !strings.Contains(out, "10") || !strings.Contains(out, "20") {
		t.Fatalf("missing expected deltas in output:\n%s", out)
	}
}

func TestWriterCloseSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	events := []pmu.Event{{Name: "cpu-cycles"}}

	b := sample.NewBuffer(events, 2)
	b.BeginNext(pmu.CounterVector{0})
	b.CloseCurrent(pmu.CounterVector{10})
	b.BeginNext(pmu.CounterVector{10})
	b.CloseCurrent(pmu.CounterVector{30})
	if err := b.MaybeFlush(w); err != nil {
		t.Fatalf("MaybeFlush: %v", err)
	}

	if err := w.CloseSummary(events); err != nil {
		t.Fatalf("CloseSummary: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "mean") || !strings.Contains(out, "samples: 2") {
		t.Fatalf("missing summary section:\n%s", out)
	}
}

func TestWriterCloseEmptyIsNoop(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.CloseSummary(nil); err != nil {
		t.Fatalf("CloseSummary on unused writer: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}
