// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package rawio_test

import (
	"io"
	"net"
	"os"
	"testing"

	"code.emberroute.dev/pipeline/internal/rawio"
)

func loopback(t *testing.T) (server, client net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
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

func TestWriter_Writev_BatchesBuffers(t *testing.T) {
	server, client := loopback(t)
	defer server.Close()
	defer client.Close()

	w, err := rawio.NewWriter(server)
	if err != nil {
		t.Fatal(err)
	}

	n, err := w.Writev([][]byte{[]byte("hello, "), []byte("world")})
	if err != nil {
		t.Fatal(err)
	}
	if n != len("hello, world") {
		t.Fatalf("n = %d, want %d", n, len("hello, world"))
	}
	server.Close()

	got, err := io.ReadAll(client)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello, world" {
		t.Fatalf("got %q, want %q", got, "hello, world")
	}
}

func TestWriter_Sendfile_TransfersFileRegion(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "rawio")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString("0123456789"); err != nil {
		t.Fatal(err)
	}

	server, client := loopback(t)
	defer server.Close()
	defer client.Close()

	w, err := rawio.NewWriter(server)
	if err != nil {
		t.Fatal(err)
	}

	n, err := w.Sendfile(f, 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("n = %d, want 5", n)
	}
	server.Close()

	got, err := io.ReadAll(client)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "23456" {
		t.Fatalf("got %q, want %q", got, "23456")
	}
}

func TestNewWriter_RejectsNonRawConn(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	defer cli.Close()

	if _, err := rawio.NewWriter(srv); err == nil {
		t.Fatal("NewWriter(net.Pipe) = nil error, want an error (net.Pipe does not implement syscall.Conn)")
	}
}
