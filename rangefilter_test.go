// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline_test

import (
	"bytes"
	"fmt"
	"reflect"
	"testing"

	pipeline "code.emberroute.dev/pipeline"
)

func TestRangeFilter_TruncatesToSingleRange(t *testing.T) {
	var collected [][]byte
	conn := pipeline.NewContext()
	conn.Ranges = []*pipeline.Range{{Start: 2, End: 6}}
	limits := pipeline.DefaultLimits()

	stages := []*pipeline.Stage{
		pipeline.NewRangeFilter(nil),
		sinkStage(&collected),
	}
	pl, err := pipeline.NewPipeline(conn, stages, limits)
	if err != nil {
		t.Fatal(err)
	}

	_ = pl.Head().Put(pipeline.NewDataPacket([]byte("0123456789")))
	_ = pl.Head().Put(pipeline.NewEndPacket())

	if !pl.Pump() {
		t.Fatal("Pump() = false, want true")
	}
	if conn.StatusCode != 206 {
		t.Fatalf("StatusCode = %d, want 206", conn.StatusCode)
	}

	var out bytes.Buffer
	for _, b := range collected {
		out.Write(b)
	}
	if out.String() != "2345" {
		t.Fatalf("ranged output = %q, want %q", out.String(), "2345")
	}
}

// TestRangeFilter_MultipartByteranges proves spec §8 Scenario 4: a
// multi-range request emits a multipart/byteranges response, with one
// boundary+Content-Range preamble packet ahead of each range's data and
// a closing boundary packet after the last one.
func TestRangeFilter_MultipartByteranges(t *testing.T) {
	var collected [][]byte
	conn := pipeline.NewContext()
	conn.MimeType = "text/plain"
	conn.Ranges = []*pipeline.Range{{Start: 0, End: 2}, {Start: 5, End: 8}}
	limits := pipeline.DefaultLimits()

	stages := []*pipeline.Stage{
		pipeline.NewRangeFilter(nil),
		sinkStage(&collected),
	}
	pl, err := pipeline.NewPipeline(conn, stages, limits)
	if err != nil {
		t.Fatal(err)
	}

	// Packets are pre-split at the range boundaries, as a static-file
	// handler reading in fixed-size blocks would naturally produce.
	_ = pl.Head().Put(pipeline.NewDataPacket([]byte("01")))
	_ = pl.Head().Put(pipeline.NewDataPacket([]byte("234")))
	_ = pl.Head().Put(pipeline.NewDataPacket([]byte("567")))
	_ = pl.Head().Put(pipeline.NewDataPacket([]byte("89")))
	_ = pl.Head().Put(pipeline.NewEndPacket())

	if !pl.Pump() {
		t.Fatal("Pump() = false, want true")
	}
	if conn.StatusCode != 206 {
		t.Fatalf("StatusCode = %d, want 206", conn.StatusCode)
	}
	if conn.RangeBoundary == "" {
		t.Fatal("RangeBoundary was never assigned for a multi-range request")
	}

	boundary := conn.RangeBoundary
	want := []string{
		fmt.Sprintf("\r\n--%s\r\nContent-Type: text/plain\r\nContent-Range: bytes 0-1/10\r\n\r\n", boundary),
		"01",
		fmt.Sprintf("\r\n--%s\r\nContent-Type: text/plain\r\nContent-Range: bytes 5-7/10\r\n\r\n", boundary),
		"567",
		fmt.Sprintf("\r\n--%s--\r\n", boundary),
		"",
	}

	got := make([]string, len(collected))
	for i, b := range collected {
		got[i] = string(b)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("packets on the wire =\n%q\nwant\n%q", got, want)
	}
}

func TestRangeFilter_OmittedWhenNoRangeRequested(t *testing.T) {
	// A real Handler consults Stage.Match before including the range
	// filter; with no Range header it is left out of the chain entirely,
	// so a plain handler-to-connector pipeline must pass the body
	// through untouched.
	var collected [][]byte
	conn := pipeline.NewContext()
	limits := pipeline.DefaultLimits()

	if pipeline.NewRangeFilter(nil).Match(conn, "") {
		t.Fatal("range filter's Match matched a request with no ranges")
	}

	stages := []*pipeline.Stage{
		sinkStage(&collected),
	}
	pl, err := pipeline.NewPipeline(conn, stages, limits)
	if err != nil {
		t.Fatal(err)
	}

	_ = pl.Head().Put(pipeline.NewDataPacket([]byte("full body")))
	_ = pl.Head().Put(pipeline.NewEndPacket())

	if !pl.Pump() {
		t.Fatal("Pump() = false, want true")
	}
	if conn.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want unchanged 200", conn.StatusCode)
	}

	var out bytes.Buffer
	for _, b := range collected {
		out.Write(b)
	}
	if out.String() != "full body" {
		t.Fatalf("output = %q, want %q", out.String(), "full body")
	}
}
