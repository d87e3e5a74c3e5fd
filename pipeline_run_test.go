// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline_test

import (
	"errors"
	"testing"

	pipeline "code.emberroute.dev/pipeline"
)

// sinkStage returns a terminal RoleConnector stage that collects every
// packet's content into collected, standing in for a real net/sendfile
// connector in tests that only care about filter behavior.
func sinkStage(collected *[][]byte) *pipeline.Stage {
	return &pipeline.Stage{
		Name: "sink",
		Role: pipeline.RoleConnector,
		OutgoingService: func(q *pipeline.Queue) {
			for pkt := q.Get(); pkt != nil; pkt = q.Get() {
				buf := append([]byte(nil), pkt.Prefix...)
				buf = append(buf, pkt.Content...)
				*collected = append(*collected, buf)
			}
		},
	}
}

func TestNewPipeline_RejectsEmptyStageList(t *testing.T) {
	_, err := pipeline.NewPipeline(pipeline.NewContext(), nil, pipeline.DefaultLimits())
	if !errors.Is(err, pipeline.ErrEmptyPipeline) {
		t.Fatalf("err = %v, want ErrEmptyPipeline", err)
	}
}

func TestNewPipeline_RejectsNonConnectorTerminal(t *testing.T) {
	stages := []*pipeline.Stage{{Name: "not-a-connector", Role: pipeline.RoleFilter}}
	_, err := pipeline.NewPipeline(pipeline.NewContext(), stages, pipeline.DefaultLimits())
	if !errors.Is(err, pipeline.ErrNotConnector) {
		t.Fatalf("err = %v, want ErrNotConnector", err)
	}
}

func TestPipeline_Pump_DrainsToTerminalConnector(t *testing.T) {
	var collected [][]byte
	conn := pipeline.NewContext()
	stages := []*pipeline.Stage{sinkStage(&collected)}

	pl, err := pipeline.NewPipeline(conn, stages, pipeline.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	_ = pl.Head().Put(pipeline.NewDataPacket([]byte("hello")))
	_ = pl.Head().Put(pipeline.NewEndPacket())

	if !pl.Pump() {
		t.Fatal("Pump() = false, want true once the terminal connector drains")
	}
	if len(collected) != 1 || string(collected[0]) != "hello" {
		t.Fatalf("collected = %v, want [\"hello\"]", collected)
	}
}
