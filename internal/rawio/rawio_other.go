// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !unix

package rawio

import (
	"io"
	"net"
	"os"
)

// Writer is the portable fallback used on platforms without writev/
// sendfile: it issues ordinary Write calls. Functionally equivalent,
// just without the single-syscall batching.
type Writer struct {
	conn net.Conn
}

func NewWriter(c net.Conn) (*Writer, error) {
	return &Writer{conn: c}, nil
}

func (w *Writer) Writev(bufs [][]byte) (int, error) {
	var total int
	for _, b := range bufs {
		n, err := w.conn.Write(b)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (w *Writer) Sendfile(src *os.File, offset, count int64) (int64, error) {
	return io.Copy(w.conn, io.NewSectionReader(src, offset, count))
}

func IsRetryable(err error) bool { return err == ErrWouldBlock }

func IsDisconnect(err error) bool { return false }
