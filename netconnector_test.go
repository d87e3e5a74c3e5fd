// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline_test

import (
	"io"
	"net"
	"testing"

	pipeline "code.emberroute.dev/pipeline"
	"code.emberroute.dev/pipeline/internal/rawio"
)

func loopbackConn(t *testing.T) (server, client net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			acceptCh <- nil
			return
		}
		acceptCh <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	server = <-acceptCh
	if server == nil {
		t.Fatal("accept failed")
	}
	return server, client
}

func TestNetConnector_WritesHeaderAndBody(t *testing.T) {
	server, client := loopbackConn(t)
	defer server.Close()
	defer client.Close()

	writer, err := rawio.NewWriter(server)
	if err != nil {
		t.Fatal(err)
	}

	conn := pipeline.NewContext()
	conn.Transport = writer
	conn.Length = 5

	limits := pipeline.DefaultLimits()
	stages := []*pipeline.Stage{pipeline.NewNetConnector(limits, nil)}
	pl, err := pipeline.NewPipeline(conn, stages, limits)
	if err != nil {
		t.Fatal(err)
	}

	_ = pl.Head().Put(pipeline.NewDataPacket([]byte("hello")))
	_ = pl.Head().Put(pipeline.NewEndPacket())

	if !pl.Pump() {
		t.Fatal("Pump() = false, want true")
	}
	_ = server.Close()

	got, err := io.ReadAll(client)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("bytes received = %q, want %q", got, "hello")
	}
	if conn.BytesWritten != 5 {
		t.Fatalf("BytesWritten = %d, want 5", conn.BytesWritten)
	}
}
