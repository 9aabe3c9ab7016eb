// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command regionperf measures hardware performance counters over a
// region of a traced program's execution, either the whole run or
// every dynamic entry into an address range.
//
// Usage:
//
//	regionperf [flags] -- program [args...]
//
// With no -start/-end flags, regionperf measures the whole run as a
// single sample. With both given, it installs breakpoints at those
// addresses and emits one sample per entry into the range, up to
// -max samples.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/aclements/go-regionperf/engine"
	"github.com/aclements/go-regionperf/pmu"
	"github.com/aclements/go-regionperf/report"
)

func main() {
	var (
		flagStart   = flag.String("start", "0", "region start `address` (hex, e.g. 0x401000)")
		flagEnd     = flag.String("end", "0", "region end `address` (hex, e.g. 0x401050)")
		flagMax     = flag.Uint("max", 0, "stop after this many samples (0 means unlimited)")
		flagTimeout = flag.Uint("timeout", 0, "stop a global-mode run after this many seconds (0 means unlimited)")
		flagOutput  = flag.String("o", "-", "output `file` (- means stderr)")
		flagCap     = flag.Int("bufcap", 0, "sample ring buffer capacity (0 means the default)")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] -- program [args...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	start, err := strconv.ParseUint(trimHex(*flagStart), 16, 64)
	if err != nil {
		log.Fatalf("regionperf: invalid -start: %v", err)
	}
	end, err := strconv.ParseUint(trimHex(*flagEnd), 16, 64)
	if err != nil {
		log.Fatalf("regionperf: invalid -end: %v", err)
	}

	cfg := engine.Config{
		AddrStart:      start,
		AddrEnd:        end,
		MaxSamples:     uint32(*flagMax),
		TimeoutSeconds: uint32(*flagTimeout),
		Argv:           flag.Args(),
		BufferCapacity: *flagCap,
		Events:         pmu.DefaultEvents,
	}

	sink, isStderr, err := openSink(*flagOutput)
	if err != nil {
		log.Fatalf("regionperf: %v", err)
	}

	logger := log.New(os.Stderr, "regionperf: ", log.LstdFlags)
	writer := report.NewWriter(sink)

	eng, err := engine.New(cfg, sink, isStderr, writer, logger)
	if err != nil {
		log.Fatal(err)
	}

	status, err := eng.Run()
	if err != nil {
		logger.Print(err)
	}
	os.Exit(status)
}

func trimHex(s string) string {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func openSink(path string) (f *os.File, isStderr bool, err error) {
	if path == "-" {
		return os.Stderr, true, nil
	}
	f, err = os.Create(path)
	if err != nil {
		return nil, false, fmt.Errorf("open output: %w", err)
	}
	return f, false, nil
}
