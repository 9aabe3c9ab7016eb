// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package pmu

import (
	"errors"
	"os"
	"testing"
)

func TestConfigureSelf(t *testing.T) {
	g, err := Configure(os.Getpid(), DefaultEvents)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			t.Skipf("PMU unavailable in this environment: %v", err)
		}
		t.Fatalf("Configure: %v", err)
	}
	defer g.Close()

	begin, err := g.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if len(begin) != len(DefaultEvents) {
		t.Fatalf("Begin returned %d counters, want %d", len(begin), len(DefaultEvents))
	}

	// Burn a few cycles so the end read has something to report.
	sum := 0
	for i := 0; i < 1<<20; i++ {
		sum += i
	}

	end, err := g.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if len(end) != len(begin) {
		t.Fatalf("End returned %d counters, want %d", len(end), len(begin))
	}
	_ = sum
}

func TestNames(t *testing.T) {
	names := Names(DefaultEvents)
	if len(names) != len(DefaultEvents) {
		t.Fatalf("got %d names, want %d", len(names), len(DefaultEvents))
	}
	if names[0] != "cpu-cycles" {
		t.Errorf("names[0] = %q, want cpu-cycles", names[0])
	}
}
