// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"math"

	"code.emberroute.dev/pipeline/internal/rawio"
)

// NewSendConnector returns the sendfile connector Stage (spec §3,
// grounded on sendConnector.c). It is not a general-purpose connector:
// it handles exactly one file-backed extent packet per turn, preceded
// by any in-memory prefix/header bufs, and transfers the file region
// straight from the filesystem cache into the socket buffer without
// ever copying it into user space.
func NewSendConnector(limits Limits, metrics *Metrics) *Stage {
	return &Stage{
		Name:    "sendConnector",
		Role:    RoleConnector,
		Methods: MethodGet | MethodHead,
		OutgoingService: func(q *Queue) {
			sendOutgoingService(q, limits, metrics)
		},
		Close: func(q *Queue) {
			if q.conn != nil {
				_ = q.conn.CloseFile()
			}
		},
	}
}

func sendOutgoingService(q *Queue, limits Limits, metrics *Metrics) {
	ctx := q.conn
	if ctx == nil || ctx.Transport == nil {
		return
	}

	for !q.Empty() {
		bufs, extentPkt, packets, eof := buildSendVector(q, limits, ctx)
		if len(bufs) == 0 && extentPkt == nil {
			break
		}

		if len(bufs) > 0 {
			written, err := ctx.Transport.Writev(bufs)
			if err != nil {
				if rawio.IsRetryable(err) {
					metrics.incWriteWouldBlock()
					break
				}
				ctx.MarkClosing()
				freeWrittenBytes(q, packets, math.MaxInt)
				return
			}
			ctx.BytesWritten += int64(written)
			metrics.addBytesWritten(int64(written))
			total := totalLen(bufs)
			freeWrittenBytes(q, packets, written)
			if written < total {
				// Partial header/prefix write: hold off sendfile this turn.
				break
			}
		}

		if extentPkt == nil {
			if eof && q.Empty() {
				break
			}
			continue
		}

		n, err := ctx.Transport.Sendfile(extentPkt.Extent.File, extentPkt.Extent.Offset, extentPkt.Extent.Length)
		if err != nil {
			if rawio.IsRetryable(err) {
				metrics.incWriteWouldBlock()
				break
			}
			ctx.MarkClosing()
			q.remove(extentPkt)
			return
		}
		if n == 0 {
			break
		}
		ctx.BytesWritten += n
		metrics.addBytesWritten(n)
		extentPkt.Extent.Offset += n
		extentPkt.Extent.Length -= n
		if extentPkt.Extent.Length == 0 {
			q.remove(extentPkt)
		} else {
			break // partial sendfile: retry the remainder next turn
		}
	}
}

// buildSendVector walks the queue from the head collecting prefix and
// header-content bufs, stopping at (and separately reporting) the first
// file-backed extent packet — the send API can only move one file
// region per call (sendConnector.c: "can only have one data packet at
// a time due to the limitations of the sendfile API").
func buildSendVector(q *Queue, limits Limits, ctx *Context) (bufs [][]byte, extentPkt *Packet, packets []*Packet, eof bool) {
	pkt := q.Peek()
	for pkt != nil {
		next := pkt.next

		switch {
		case pkt.Flags&FlagHeader != 0:
			if ctx.Header != nil && len(pkt.Content) == 0 {
				if err := ctx.Header.FillHeaders(ctx, pkt); err != nil {
					ctx.MarkClosing()
					return nil, nil, nil, false
				}
				q.count += pkt.contentLen()
			}

		case pkt.contentLen() == 0 && pkt.Extent.empty():
			// A bare sentinel (no prefix) has nothing left to transmit;
			// remove it directly rather than returning an empty batch that
			// would make the caller stop before ever freeing it.
			eof = true
			if len(pkt.Prefix) == 0 {
				q.remove(pkt)
				pkt = next
				continue
			}

		case ctx.NoBody():
			q.remove(pkt)
			pkt = next
			continue

		case !pkt.Extent.empty():
			if len(pkt.Prefix) > 0 {
				bufs = append(bufs, pkt.Prefix)
				packets = append(packets, pkt)
			}
			extentPkt = pkt
			return bufs, extentPkt, packets, eof
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
	return bufs, extentPkt, packets, eof
}

func totalLen(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}
