// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sample

import (
	"reflect"
	"testing"

	"github.com/aclements/go-regionperf/pmu"
)

func TestDelta(t *testing.T) {
	s := &Sample{Begin: pmu.CounterVector{10, 100}}
	s.close(pmu.CounterVector{15, 250})

	got := s.Delta()
	want := []uint64{5, 150}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Delta() = %v, want %v", got, want)
	}
}

func TestDeltaWraps(t *testing.T) {
	s := &Sample{Begin: pmu.CounterVector{^uint64(0) - 1}}
	s.close(pmu.CounterVector{1})

	// end < begin only happens if the counter itself wrapped;
	// unsigned subtraction reproduces the true elapsed count.
	got := s.Delta()
	want := []uint64{3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Delta() = %v, want %v", got, want)
	}
}

func TestDeltaPanicsUnclosed(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic calling Delta on an unclosed sample")
		}
	}()
	s := &Sample{Begin: pmu.CounterVector{1}}
	s.Delta()
}

func TestClosed(t *testing.T) {
	s := &Sample{Begin: pmu.CounterVector{1}}
	if s.Closed() {
		t.Fatal("new sample should not be closed")
	}
	s.close(pmu.CounterVector{2})
	if !s.Closed() {
		t.Fatal("sample should be closed after close")
	}
}
