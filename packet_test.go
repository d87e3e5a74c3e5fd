// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline_test

import (
	"os"
	"testing"

	pipeline "code.emberroute.dev/pipeline"
)

func TestNewDataPacket_FlagsAndContent(t *testing.T) {
	pkt := pipeline.NewDataPacket([]byte("hello"))
	if pkt.Flags != pipeline.FlagData {
		t.Fatalf("Flags = %v, want FlagData", pkt.Flags)
	}
	if string(pkt.Content) != "hello" {
		t.Fatalf("Content = %q", pkt.Content)
	}
}

func TestNewEndPacket_IsEmpty(t *testing.T) {
	pkt := pipeline.NewEndPacket()
	if pkt.Flags != pipeline.FlagEnd {
		t.Fatalf("Flags = %v, want FlagEnd", pkt.Flags)
	}
	if len(pkt.Content) != 0 {
		t.Fatalf("END packet carries content: %q", pkt.Content)
	}
}

func TestNewExtentPacket_CarriesNoContent(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "extent")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	pkt := pipeline.NewExtentPacket(f, 10, 20)
	if len(pkt.Content) != 0 {
		t.Fatalf("extent packet carries content: %q", pkt.Content)
	}
}

func TestFlag_String(t *testing.T) {
	cases := []struct {
		flag pipeline.Flag
		want string
	}{
		{pipeline.FlagHeader, "HEADER"},
		{pipeline.FlagData, "DATA"},
		{pipeline.FlagEnd, "END"},
		{pipeline.FlagRange, "RANGE"},
	}
	for _, c := range cases {
		if got := c.flag.String(); got != c.want {
			t.Errorf("Flag(%d).String() = %q, want %q", c.flag, got, c.want)
		}
	}
}
