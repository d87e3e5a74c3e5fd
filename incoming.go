// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import "io"

// IncomingPipeline is the request-body counterpart to Pipeline (spec §2:
// stages form "a doubly-linked chain per direction — incoming and
// outgoing"). Where Pipeline drives OutgoingService turn by turn until
// quiescence, an IncomingPipeline drives a single stage's IncomingData
// callback directly off raw bytes read from the connection, forwarding
// whatever the stage decodes into a terminal sink queue.
//
// Only one stage needs an incoming half today (the chunk filter), so
// this is a two-queue chain rather than NewPipeline's general N-stage
// one: stage's own queue, then a plain sink queue with no stage
// behavior of its own that simply accumulates decoded bytes.
type IncomingPipeline struct {
	conn *Context
	in   *Queue
	sink *Queue
}

// NewIncomingPipeline builds an incoming chain bound to conn and opens
// stage, mirroring NewPipeline's construct-then-Open order.
func NewIncomingPipeline(conn *Context, stage *Stage, limits Limits) *IncomingPipeline {
	sinkStage := &Stage{Name: stage.Name + ".sink", Role: RoleConnector}
	sink := NewQueue(conn, sinkStage, 0, 0, limits.BufSize)
	in := NewQueue(conn, stage, limits.MaxStageBuffer, limits.MaxStageBuffer/4, limits.BufSize)
	in.nextQ = sink
	sink.prevQ = in
	if stage.Open != nil {
		stage.Open(in)
	}
	return &IncomingPipeline{conn: conn, in: in, sink: sink}
}

// Feed drives the stage's IncomingData over one read's worth of raw
// bytes. b is copied; the caller's buffer may be reused immediately.
func (p *IncomingPipeline) Feed(b []byte) {
	if len(b) == 0 || p.in.stage.IncomingData == nil {
		return
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	p.in.stage.IncomingData(p.in, &Packet{Flags: FlagData, Content: cp})
}

// Close signals end-of-stream to the decoder (an empty, non-END packet:
// spec §4.2's EOF state expects "the (empty) packet", not a full END
// sentinel, since an incoming chain has no downstream connector to
// terminate).
func (p *IncomingPipeline) Close() {
	if p.in.stage.IncomingData == nil {
		return
	}
	p.in.stage.IncomingData(p.in, &Packet{Flags: FlagData})
}

// Drain removes and returns every byte the sink queue has accumulated
// so far, leaving it empty.
func (p *IncomingPipeline) Drain() []byte {
	var out []byte
	for pkt := p.sink.Get(); pkt != nil; pkt = p.sink.Get() {
		out = append(out, pkt.Content...)
	}
	return out
}

// Failed reports whether the stage failed the connection (e.g.
// ErrBadChunk) while decoding.
func (p *IncomingPipeline) Failed() bool { return p.conn.Closing() }

// DecodeChunkedBody reads body to completion through stage's incoming
// decoder and returns the fully decoded bytes. It is the convenience
// entry point a Handler uses to read a chunked request body (spec §1:
// "parsing incoming chunks is in scope as part of the chunk filter").
func DecodeChunkedBody(stage *Stage, limits Limits, body io.Reader) ([]byte, error) {
	conn := NewContext()
	ip := NewIncomingPipeline(conn, stage, limits)

	buf := make([]byte, limits.BufSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			ip.Feed(buf[:n])
			if ip.Failed() {
				return nil, ErrBadChunk
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	ip.Close()
	if ip.Failed() {
		return nil, ErrBadChunk
	}
	return ip.Drain(), nil
}
