// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package rawio

import (
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Writer issues vectored writes and sendfile transfers directly against
// a connection's file descriptor via SyscallConn, so the pipeline's
// connectors never block the goroutine on a full socket buffer.
type Writer struct {
	rc syscall.RawConn
}

// NewWriter wraps c for raw I/O. c must implement syscall.Conn (true of
// *net.TCPConn and *net.UnixConn).
func NewWriter(c net.Conn) (*Writer, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return nil, errNotRaw(c)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return nil, err
	}
	return &Writer{rc: rc}, nil
}

// Writev writes bufs in a single writev(2) call, returning the number
// of bytes actually written. A partial write is not an error: the
// caller is expected to trim its buffers and retry (net connector's
// adjustVec discipline, grounded on netConnector.c's adjustNetVec).
func (w *Writer) Writev(bufs [][]byte) (int, error) {
	var n int
	var opErr error
	// The callback always returns true: a single non-blocking attempt.
	// Returning false would make RawConn.Write park this goroutine on the
	// netpoller and retry internally until it succeeds, which would turn
	// EAGAIN into ordinary blocking I/O on the data path (spec §5) and
	// make the backpressure path below unreachable.
	err := w.rc.Write(func(fd uintptr) bool {
		n, opErr = unix.Writev(int(fd), bufs)
		return true
	})
	if err != nil {
		return n, err
	}
	if opErr == unix.EAGAIN {
		return 0, ErrWouldBlock
	}
	return n, opErr
}

// Sendfile transfers up to count bytes from src starting at offset
// directly into the connection's socket buffer, without copying through
// user space (send connector, grounded on sendConnector.c).
func (w *Writer) Sendfile(src *os.File, offset, count int64) (int64, error) {
	srcRC, err := src.SyscallConn()
	if err != nil {
		return 0, err
	}
	var written int
	var opErr error
	off := offset
	// Both callbacks return true unconditionally, for the same reason as
	// Writev above: a single non-blocking attempt per call, so EAGAIN
	// surfaces to the caller instead of being retried away inside the
	// syscall.
	err = w.rc.Write(func(outFd uintptr) bool {
		ctlErr := srcRC.Read(func(inFd uintptr) bool {
			written, opErr = unix.Sendfile(int(outFd), int(inFd), &off, int(count))
			return true
		})
		if ctlErr != nil {
			opErr = ctlErr
		}
		return true
	})
	if err != nil {
		return int64(written), err
	}
	if opErr == unix.EAGAIN {
		return 0, ErrWouldBlock
	}
	return int64(written), opErr
}

// IsRetryable reports whether err indicates a transient socket
// condition the connector should treat as backpressure rather than a
// disconnect (netConnector.c: "errCode == EAGAIN || errCode == EWOULDBLOCK").
func IsRetryable(err error) bool {
	return err == ErrWouldBlock || err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// IsDisconnect reports whether err indicates the peer is gone
// (netConnector.c: "errCode == EPIPE || errCode == ECONNRESET").
func IsDisconnect(err error) bool {
	return err == unix.EPIPE || err == unix.ECONNRESET
}

type notRawConnError struct{ c net.Conn }

func (e notRawConnError) Error() string { return "rawio: connection does not support SyscallConn" }

func errNotRaw(c net.Conn) error { return notRawConnError{c: c} }
