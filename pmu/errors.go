// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmu

import "errors"

// ErrUnavailable is wrapped into the error returned by Configure when
// the host kernel refuses to open a PMU counter, corresponding to
// spec.md §7's PmuUnavailable error kind.
var ErrUnavailable = errors.New("pmu: counters unavailable")
