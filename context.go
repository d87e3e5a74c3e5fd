// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"io"
	"os"

	"code.emberroute.dev/pipeline/internal/rawio"
)

// ResponseFlag marks orthogonal response-level conditions (spec §3).
type ResponseFlag uint8

const (
	// FlagNoBody marks a response that must not emit a body (HEAD
	// requests, 204/304). Connectors discard DATA packets but still
	// transmit headers.
	FlagNoBody ResponseFlag = 1 << iota
)

// Range is a normalized byte range (spec §3: "(start, end, len) with
// 0 <= start <= end; len = end - start").
type Range struct {
	Start, End int64
	Len        int64
}

// HeaderFormatter serializes the response status line and headers into
// pkt's content buffer on demand (spec §6's fillHeaders collaborator).
// It is the one external seam every connector depends on; the pipeline
// core never constructs header bytes itself.
type HeaderFormatter interface {
	FillHeaders(ctx *Context, pkt *Packet) error
}

// HeaderFormatterFunc adapts a function to a HeaderFormatter.
type HeaderFormatterFunc func(ctx *Context, pkt *Packet) error

func (f HeaderFormatterFunc) FillHeaders(ctx *Context, pkt *Packet) error { return f(ctx, pkt) }

// TraceMask selects which content a Tracer should observe.
type TraceMask uint8

const (
	TraceHeaders TraceMask = 1 << iota
	TraceBody
	TraceResponse = TraceHeaders | TraceBody
)

// Tracer is the optional content-tracing collaborator of spec §6
// (shouldTrace/traceContent).
type Tracer interface {
	ShouldTrace(ctx *Context, mask TraceMask) bool
	TraceContent(ctx *Context, pkt *Packet, offset int, bytesWritten int64, mask TraceMask)
}

// Context carries the per-request state relevant to the pipeline core
// (spec §3: "Request/response context").
//
// A Context is owned by exactly one connection at a time; the file
// descriptor it holds (for a sendfile response) is released when the
// request completes (spec §5's resource discipline).
type Context struct {
	BytesWritten int64
	Length       int64 // declared body length, or -1
	ChunkSize    int   // >0 enables chunk framing, -1 undecided
	EntityLength int64 // origin resource size, -1 if unknown

	Flags ResponseFlag

	Pos           int64 // logical output offset used by the range filter
	Ranges        []*Range
	CurrentRange  int // index into Ranges, or -1 when exhausted
	RangeBoundary string
	MimeType      string

	StatusCode int

	File *os.File // open file descriptor for sendfile, nil otherwise

	Header HeaderFormatter
	Tracer Tracer

	// Transport is the raw vectored-write/sendfile handle for this
	// connection's socket, bound once when the connection is accepted.
	Transport *rawio.Writer

	// RequestBody is the connection's raw inbound byte stream, bound once
	// when the connection is accepted (spec §1: inbound chunk decoding is
	// in scope). Nil outside of a live Runner-served connection.
	RequestBody io.Reader

	// Metrics is the shared instrument set the owning Runner reports
	// against, bound once when the connection is accepted. Nil is safe
	// (every Metrics method is a nil-receiver no-op).
	Metrics *Metrics

	// keepAliveCount is 0 until DisableKeepAlive sets it to -1; the
	// connection-wide request count and limit live with the Runner, not
	// here, since a Context is scoped to a single request.
	keepAliveCount int
	closing        bool
}

// NewContext constructs a Context with the defaults spec §3 names for an
// as-yet-undetermined response (length unknown, entity length unknown,
// chunk framing undecided).
func NewContext() *Context {
	return &Context{
		Length:       -1,
		ChunkSize:    -1,
		EntityLength: -1,
		CurrentRange: -1,
		StatusCode:   200,
	}
}

// NoBody reports whether the response must omit a body.
func (c *Context) NoBody() bool { return c.Flags&FlagNoBody != 0 }

// SetNoBody marks the response as bodyless.
func (c *Context) SetNoBody() { c.Flags |= FlagNoBody }

// DisableKeepAlive forces the connection closed after this request
// completes normally (original_source netConnector.c: "conn->keepAliveCount = 0"
// when a header packet is built with no declared length and chunking is
// not yet active — restored per SPEC_FULL.md §4). Unlike MarkClosing,
// it does not abort the response in progress.
func (c *Context) DisableKeepAlive() { c.keepAliveCount = -1 }

// KeepAliveAllowed reports whether the connection may serve another
// request after this one, combining this response's own override with
// the caller-tracked request count against limit.
func (c *Context) KeepAliveAllowed(requestCount, limit int) bool {
	return !c.closing && !c.ReuseDisabled() && requestCount < limit
}

// ReuseDisabled reports whether this response has called
// DisableKeepAlive, independent of the connection-wide request count.
func (c *Context) ReuseDisabled() bool { return c.keepAliveCount < 0 }

// MarkClosing marks the connection for unconditional close after this
// request (explicit Connection: close, or a protocol/socket error).
func (c *Context) MarkClosing() { c.closing = true }

// Closing reports whether the connection was marked for unconditional
// close.
func (c *Context) Closing() bool { return c.closing }

// CloseFile releases the open file descriptor, if any. Safe to call more
// than once.
func (c *Context) CloseFile() error {
	if c.File == nil {
		return nil
	}
	f := c.File
	c.File = nil
	return f.Close()
}

// currentRangePtr returns the Range the range filter is currently
// streaming, or nil when all ranges have been emitted.
func (c *Context) currentRangePtr() *Range {
	if c.CurrentRange < 0 || c.CurrentRange >= len(c.Ranges) {
		return nil
	}
	return c.Ranges[c.CurrentRange]
}

// advanceRange moves to the next range in sequence.
func (c *Context) advanceRange() {
	c.CurrentRange++
	if c.CurrentRange >= len(c.Ranges) {
		c.CurrentRange = -1
	}
}
