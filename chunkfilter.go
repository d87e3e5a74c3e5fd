// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"strconv"
)

// chunkState tracks the inbound "\r\nHEX\r\n" decode, mirroring
// original_source/src/http/filters/chunkFilter.c's MA_CHUNK_START/
// MA_CHUNK_DATA/MA_CHUNK_EOF state machine.
type chunkState uint8

const (
	chunkStart chunkState = iota
	chunkData
	chunkEOF
)

// maxChunkSpecLine bounds how many buffered bytes chunkIncomingData will
// scan in the START state looking for the chunk-spec line's trailing
// "\n" before giving up (spec §4.2: "scan up to \n (or fail after 80
// bytes)").
const maxChunkSpecLine = 80

// chunkFilterState is the filter's per-connection scratch, hung off the
// Queue via Queue.filterState (see queue.go).
type chunkFilterState struct {
	state            chunkState
	remainingContent int
}

// NewChunkFilter returns the transfer-chunk-encoding Stage (spec §3,
// grounded on chunkFilter.c). It frames dynamic outgoing content with
// "\r\nHEX\r\n" prefixes when the response length is not known up
// front, and decodes the same framing on inbound request bodies.
func NewChunkFilter(limits Limits, metrics *Metrics) *Stage {
	return &Stage{
		Name:    "chunkFilter",
		Role:    RoleFilter,
		Methods: MethodAll,
		Open: func(q *Queue) {
			if q.PacketSize <= 0 || q.PacketSize > limits.MaxChunkSize {
				q.PacketSize = limits.MaxChunkSize
			}
			if q.Max > 0 && q.PacketSize > q.Max {
				q.PacketSize = q.Max
			}
			q.filterState = &chunkFilterState{state: chunkStart}
		},
		Match: func(ctx *Context, uri string) bool {
			return ctx.Length <= 0
		},
		IncomingData: func(q *Queue, pkt *Packet) {
			chunkIncomingData(q, pkt, metrics)
		},
		OutgoingService: chunkOutgoingService,
	}
}

// chunkIncomingData decodes "\r\nHEX\r\n"-prefixed request-body framing.
// The reversed-delimiter trick ("\r\nSIZE...\r\n" rather than
// "SIZE...\r\nDATA\r\n") lets the trailing CRLF after one chunk's data
// double as the leading CRLF of the next chunk spec, exactly as
// chunkFilter.c documents.
func chunkIncomingData(q *Queue, pkt *Packet, metrics *Metrics) {
	st := q.filterState.(*chunkFilterState)

	if pkt.empty() {
		// End of the raw stream. Anything short of having already parsed
		// the terminal zero-size chunk is a truncated body.
		if st.state != chunkEOF {
			metrics.incChunkErrors()
			q.fail(ErrBadChunk)
			return
		}
	}

	switch st.state {
	case chunkStart:
		buf := pkt.Content
		if len(buf) < 5 {
			if len(buf) > maxChunkSpecLine {
				metrics.incChunkErrors()
				q.fail(ErrBadChunk)
				return
			}
			q.PutBack(pkt)
			return
		}
		if buf[0] != '\r' || buf[1] != '\n' {
			metrics.incChunkErrors()
			q.fail(ErrBadChunk)
			return
		}
		i := 2
		for i < len(buf) && buf[i] != '\n' {
			i++
		}
		if i >= len(buf) || buf[i-1] != '\r' {
			if len(buf) > maxChunkSpecLine {
				metrics.incChunkErrors()
				q.fail(ErrBadChunk)
				return
			}
			q.PutBack(pkt)
			return
		}
		size, err := strconv.ParseInt(string(buf[2:i-1]), 16, 32)
		if err != nil || size < 0 {
			metrics.incChunkErrors()
			q.fail(ErrBadChunk)
			return
		}
		rest := buf[i+1:]
		st.remainingContent = int(size)
		if size == 0 {
			st.state = chunkEOF
			if len(rest) >= 2 && rest[0] == '\r' && rest[1] == '\n' {
				rest = rest[2:]
			}
		} else {
			st.state = chunkData
		}
		if len(rest) > 0 {
			chunkIncomingData(q, &Packet{Flags: pkt.Flags, Content: rest}, metrics)
		}

	case chunkData:
		n := len(pkt.Content)
		if n == 0 {
			return
		}
		if n > st.remainingContent {
			// The buffer already holds the start of the next chunk's spec
			// line, riding along with this chunk's tail: split it off and
			// feed it back through the state machine once this chunk's
			// own content has been forwarded.
			rest := pkt.Content[st.remainingContent:]
			pkt.Content = pkt.Content[:st.remainingContent]
			st.remainingContent = 0
			q.putNext(pkt)
			st.state = chunkStart
			if len(rest) > 0 {
				chunkIncomingData(q, &Packet{Flags: pkt.Flags, Content: rest}, metrics)
			}
			return
		}
		st.remainingContent -= n
		q.putNext(pkt)
		if st.remainingContent == 0 {
			st.state = chunkStart
		}

	case chunkEOF:
		q.putNext(pkt)
	}
}

// chunkOutgoingService applies outbound chunk framing to dynamic
// content, ported from chunkFilter.c's outgoingChunkService.
func chunkOutgoingService(q *Queue) {
	ctx := q.conn

	if !q.Serviced() {
		if last := q.Last(); last != nil && last.Flags&FlagEnd != 0 {
			if ctx.ChunkSize < 0 && ctx.Length <= 0 {
				ctx.Length = int64(q.Count())
			}
		} else if ctx.ChunkSize < 0 {
			size := q.Max
			if size <= 0 || size > q.PacketSize {
				size = q.PacketSize
			}
			ctx.ChunkSize = size
		}
	}

	if ctx.ChunkSize <= 0 {
		q.defaultOutgoingService()
		return
	}

	for pkt := q.Get(); pkt != nil; pkt = q.Get() {
		if pkt.Flags&FlagHeader == 0 {
			if pkt.contentLen() > ctx.ChunkSize {
				q.Resize(pkt, ctx.ChunkSize)
			}
		}
		if !q.WillNextAccept(pkt) {
			q.PutBack(pkt)
			return
		}
		if pkt.Flags&FlagHeader == 0 {
			setChunkPrefix(pkt)
		}
		q.putNext(pkt)
	}
}

// setChunkPrefix lazily builds a packet's chunk-spec prefix. Prefixes
// never count toward Queue.count (chunkFilter.c: "prefixes don't count
// in the queue length").
func setChunkPrefix(pkt *Packet) {
	if len(pkt.Prefix) != 0 {
		return
	}
	if n := pkt.contentLen(); n > 0 {
		pkt.Prefix = []byte(fmt.Sprintf("\r\n%x\r\n", n))
	} else {
		pkt.Prefix = []byte("\r\n0\r\n\r\n")
	}
}
