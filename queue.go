// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

// QueueFlag marks queue-wide state (spec §3: "flags: includes EOF ...
// and SERVICED ...").
type QueueFlag uint8

const (
	// QueueEOF marks that the terminal END packet has been observed; no
	// further packets may be enqueued (spec §3 invariant).
	QueueEOF QueueFlag = 1 << iota
	// QueueServiced marks that the queue's service routine has run at
	// least once for the current request (spec §4.2/§4.3's
	// first-call bookkeeping gate).
	QueueServiced
	// QueueRunning marks a service routine currently executing, used to
	// detect the re-entrancy spec §4.1 forbids.
	QueueRunning
)

// Queue is a bounded FIFO of packets with watermark-based flow control
// and connector scratch state (spec §3/§4.1).
//
// A Queue is intrusively linked (Packet.next/prev), not a slice, so
// Put/Get/PutBack/Resize never allocate beyond the packets themselves —
// the same zero-steady-state-allocation discipline the teacher applies
// to its scratch buffers (framer.rbuf/wbuf in internal.go).
type Queue struct {
	Name string
	Role Role

	first, last *Packet
	count       int // sum of content-byte lengths currently enqueued

	Max        int // high watermark, in content bytes
	Low        int // low watermark, in content bytes
	PacketSize int // target resizing granularity

	Flags QueueFlag

	nextQ, prevQ *Queue
	conn         *Context

	stage *Stage

	// filterState is a stage-private scratch slot (e.g. *chunkFilterState),
	// set by the owning stage's Open and type-asserted by its own
	// callbacks. The queue never inspects it.
	filterState any
}

// NewQueue constructs a queue bound to a connection context and stage.
func NewQueue(conn *Context, stage *Stage, max, low, packetSize int) *Queue {
	return &Queue{
		Name:       stage.Name,
		Role:       stage.Role,
		Max:        max,
		Low:        low,
		PacketSize: packetSize,
		conn:       conn,
		stage:      stage,
	}
}

// Count returns the sum of content-byte lengths currently enqueued.
func (q *Queue) Count() int { return q.count }

// Empty reports whether the queue currently holds no packets.
func (q *Queue) Empty() bool { return q.first == nil }

// EOF reports whether the queue has observed its terminal sentinel.
func (q *Queue) EOF() bool { return q.Flags&QueueEOF != 0 }

// Serviced reports whether the queue has been serviced at least once
// this request.
func (q *Queue) Serviced() bool { return q.Flags&QueueServiced != 0 }

// MarkServiced sets the SERVICED flag; idempotent.
func (q *Queue) MarkServiced() { q.Flags |= QueueServiced }

// Put appends pkt to the tail of the queue and updates count. It
// refuses packets once the queue has observed EOF (spec §3 invariant).
func (q *Queue) Put(pkt *Packet) error {
	if pkt == nil {
		return nil
	}
	if err := pkt.validate(); err != nil {
		return err
	}
	if q.EOF() {
		return ErrQueueEOF
	}
	pkt.prev = q.last
	pkt.next = nil
	if q.last != nil {
		q.last.next = pkt
	} else {
		q.first = pkt
	}
	q.last = pkt
	q.count += pkt.contentLen()
	if pkt.Flags&FlagEnd != 0 {
		q.Flags |= QueueEOF
	}
	return nil
}

// PutBack prepends pkt to the head of the queue (spec §4.1: used when a
// downstream queue refuses the packet). It is ownership transfer back to
// the previous queue, not a copy (spec §9).
func (q *Queue) PutBack(pkt *Packet) {
	if pkt == nil {
		return
	}
	pkt.next = q.first
	pkt.prev = nil
	if q.first != nil {
		q.first.prev = pkt
	} else {
		q.last = pkt
	}
	q.first = pkt
	q.count += pkt.contentLen()
}

// Get pops and returns the head packet, or nil if the queue is empty.
func (q *Queue) Get() *Packet {
	pkt := q.first
	if pkt == nil {
		return nil
	}
	q.remove(pkt)
	return pkt
}

// Peek returns the head packet without removing it.
func (q *Queue) Peek() *Packet { return q.first }

// Last returns the tail packet without removing it (used to test
// "is the last packet END" in the chunk/range filters' first-call logic).
func (q *Queue) Last() *Packet { return q.last }

// remove unlinks pkt from the queue and deducts its content length.
func (q *Queue) remove(pkt *Packet) {
	if pkt.prev != nil {
		pkt.prev.next = pkt.next
	} else {
		q.first = pkt.next
	}
	if pkt.next != nil {
		pkt.next.prev = pkt.prev
	} else {
		q.last = pkt.prev
	}
	q.count -= pkt.contentLen()
	pkt.next, pkt.prev = nil, nil
}

// WillNextAccept reports whether placing pkt into nextQ would keep
// nextQ.count <= nextQ.max after accounting for pkt's content bytes
// (spec §4.1). If it returns false, the caller must PutBack and wait:
// flow control here is strictly producer-stop, never drop.
func (q *Queue) WillNextAccept(pkt *Packet) bool {
	if q.nextQ == nil {
		return true
	}
	if q.nextQ.Max <= 0 {
		return true
	}
	return q.nextQ.count+pkt.contentLen() <= q.nextQ.Max
}

// Resize splits pkt's tail into a new packet inserted immediately after
// pkt in the queue, when pkt carries more than n bytes. When pkt has
// already been removed with Get, the tail is put back at the head of the
// queue instead. HEADER packets
// are never resized (spec §4.1); both content and extent (file-backed)
// packets split cleanly since an Extent is just an (offset, length)
// description, not a copy.
func (q *Queue) Resize(pkt *Packet, n int) *Packet {
	if pkt.Flags&FlagHeader != 0 {
		return nil
	}
	var tail *Packet
	switch {
	case !pkt.Extent.empty():
		if pkt.Extent.Length <= int64(n) {
			return nil
		}
		tail = &Packet{Flags: pkt.Flags, Extent: Extent{
			File:   pkt.Extent.File,
			Offset: pkt.Extent.Offset + int64(n),
			Length: pkt.Extent.Length - int64(n),
		}}
		pkt.Extent.Length = int64(n)
	case len(pkt.Content) > n:
		tail = &Packet{Flags: pkt.Flags, Content: pkt.Content[n:]}
		pkt.Content = pkt.Content[:n]
	default:
		return nil
	}

	if pkt.prev == nil && q.first != pkt {
		// pkt was already taken off the queue (Get): the tail goes back
		// to the head so the next Get returns it.
		q.PutBack(tail)
		return tail
	}
	tail.next = pkt.next
	tail.prev = pkt
	if pkt.next != nil {
		pkt.next.prev = tail
	} else {
		q.last = tail
	}
	pkt.next = tail
	return tail
}

// Discard removes and drops every packet in the queue without
// transmitting it (used by fail and by the net connector's disconnect
// handling, spec §5/§7(b)).
func (q *Queue) Discard() {
	for {
		pkt := q.Get()
		if pkt == nil {
			return
		}
	}
}

// putNext forwards pkt to the downstream queue, failing the connection
// if downstream refuses it (it has already reached EOF, or pkt violates
// the packet invariants).
func (q *Queue) putNext(pkt *Packet) {
	if q.nextQ == nil {
		return
	}
	if err := q.nextQ.Put(pkt); err != nil {
		q.fail(err)
	}
}

// fail routes a stage-local error to the owning connection context,
// marking it for unconditional close (spec §5's error-handling
// discipline: stages never panic or silently drop data on error).
func (q *Queue) fail(err error) {
	if q.conn != nil {
		q.conn.MarkClosing()
	}
	q.Discard()
}

// defaultOutgoingService forwards every packet downstream unchanged,
// respecting flow control (spec §4.1's baseline service routine, used
// by filters that have nothing to transform this turn).
func (q *Queue) defaultOutgoingService() {
	for pkt := q.Get(); pkt != nil; pkt = q.Get() {
		if !q.WillNextAccept(pkt) {
			q.PutBack(pkt)
			return
		}
		q.putNext(pkt)
	}
}
