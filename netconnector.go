// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"io"

	"code.emberroute.dev/pipeline/internal/rawio"
)

// NewNetConnector returns the vectored-write connector Stage (spec §3,
// grounded on netConnector.c). It is the terminal stage of the outbound
// pipeline for in-memory content: every turn it walks the queue,
// batches as many packets as fit into a single writev(2), and issues
// one syscall per turn instead of one per packet.
func NewNetConnector(limits Limits, metrics *Metrics) *Stage {
	return &Stage{
		Name:    "netConnector",
		Role:    RoleConnector,
		Methods: MethodAll,
		OutgoingService: func(q *Queue) {
			netOutgoingService(q, limits, metrics)
		},
	}
}

func netOutgoingService(q *Queue, limits Limits, metrics *Metrics) {
	ctx := q.conn
	if ctx == nil || ctx.Transport == nil {
		return
	}

	for !q.Empty() {
		bufs, packets, eof := buildNetVector(q, limits, ctx)
		if len(bufs) == 0 {
			break
		}

		written, err := ctx.Transport.Writev(bufs)
		if err != nil {
			if rawio.IsRetryable(err) {
				metrics.incWriteWouldBlock()
				break
			}
			// Every other non-retryable error (EPIPE/ECONNRESET as well as
			// EIO, a write-deadline timeout, ENOTCONN, ...) is grouped the
			// same way spec §7(b) groups them: disconnect, drop queued
			// packets, mark the request failed.
			ctx.MarkClosing()
			q.Discard()
			return
		}
		if written == 0 {
			break
		}

		ctx.BytesWritten += int64(written)
		metrics.addBytesWritten(int64(written))
		freeWrittenBytes(q, packets, written)

		if eof && q.Empty() {
			break
		}
	}
}

// buildNetVector walks the queue from the head, filling in any pending
// HeaderFormatter and collecting [][]byte fragments (prefix, then
// content) until at least limits.MaxIovec-2 fragments are collected,
// mirroring buildNetVec's
// "leave packets on the queue until I/O completes" discipline — Go
// slices alias the packet buffers directly, so no copy is made.
func buildNetVector(q *Queue, limits Limits, ctx *Context) (bufs [][]byte, packets []*Packet, eof bool) {
	pkt := q.Peek()
	for pkt != nil {
		next := pkt.next

		if !pkt.Extent.empty() {
			// This connector has no sendfile path, unlike sendConnector.c's
			// peer: a file-backed packet is read into memory once so it can
			// ride the same writev batch as everything else.
			n, err := materializeExtent(pkt)
			if err != nil {
				ctx.MarkClosing()
				return nil, nil, false
			}
			q.count += n
		}

		if pkt.Flags&FlagHeader != 0 {
			if ctx.ChunkSize <= 0 && q.Count() > 0 && ctx.Length < 0 {
				// Body size not yet known and chunking didn't kick in:
				// this connection cannot be reused (netConnector.c).
				ctx.DisableKeepAlive()
			}
			if ctx.Header != nil && len(pkt.Content) == 0 {
				if err := ctx.Header.FillHeaders(ctx, pkt); err != nil {
					ctx.MarkClosing()
					return nil, nil, false
				}
				q.count += pkt.contentLen()
			}
		} else if pkt.contentLen() == 0 && pkt.Extent.empty() {
			// No content/extent bytes of its own (the END sentinel, or a
			// spent packet awaiting removal): mark EOF. A bare sentinel
			// with no prefix has nothing left to write, so it is removed
			// here rather than carried into bufs/packets, where an empty
			// batch would make the caller stop before ever freeing it.
			eof = true
			if len(pkt.Prefix) == 0 {
				q.remove(pkt)
				pkt = next
				continue
			}
		} else if ctx.NoBody() {
			// HEAD/204/304: drop the body content, headers still go out.
			q.remove(pkt)
			pkt = next
			continue
		}

		if len(pkt.Prefix) > 0 {
			bufs = append(bufs, pkt.Prefix)
		}
		if len(pkt.Content) > 0 {
			bufs = append(bufs, pkt.Content)
		}
		packets = append(packets, pkt)

		if len(bufs) >= limits.MaxIovec-2 {
			break
		}
		pkt = next
	}
	return bufs, packets, eof
}

// materializeExtent reads a file-backed packet's region into Content and
// clears its Extent, returning the number of bytes read. The net
// connector has no sendfile path, so this is its fallback for
// extent-backed packets the static handler or range filter produced for
// a sendfile-capable connector.
func materializeExtent(pkt *Packet) (int, error) {
	buf := make([]byte, pkt.Extent.Length)
	n, err := pkt.Extent.File.ReadAt(buf, pkt.Extent.Offset)
	if err != nil && err != io.EOF {
		return 0, err
	}
	pkt.Content = buf[:n]
	pkt.Extent = Extent{}
	return n, nil
}

// freeWrittenBytes trims written bytes off the front of the packets
// collected by buildNetVector, discarding any packet fully consumed,
// mirroring freeNetPackets/adjustNetVec's combined effect. Because the
// vector is rebuilt fresh every call, there is no persisted iovec state
// to separately re-index (SPEC_FULL.md's simplification over the C
// original's cached q->iovec).
func freeWrittenBytes(q *Queue, packets []*Packet, n int) {
	for _, pkt := range packets {
		if n <= 0 && (len(pkt.Prefix) > 0 || len(pkt.Content) > 0) {
			return
		}
		if len(pkt.Prefix) > 0 {
			take := min(len(pkt.Prefix), n)
			pkt.Prefix = pkt.Prefix[take:]
			n -= take
		}
		if len(pkt.Content) > 0 && n > 0 {
			take := min(len(pkt.Content), n)
			pkt.Content = pkt.Content[take:]
			n -= take
			q.count -= take
		}
		if len(pkt.Prefix) == 0 && len(pkt.Content) == 0 && pkt.Extent.empty() {
			q.remove(pkt)
		}
	}
}
