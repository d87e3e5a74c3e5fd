// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"errors"
	"os"
	"testing"
)

func newTestQueue(max, low, packetSize int) *Queue {
	return NewQueue(NewContext(), &Stage{Name: "test"}, max, low, packetSize)
}

func TestQueue_PutGet_FIFO(t *testing.T) {
	q := newTestQueue(0, 0, 0)
	a := NewDataPacket([]byte("a"))
	b := NewDataPacket([]byte("b"))
	if err := q.Put(a); err != nil {
		t.Fatal(err)
	}
	if err := q.Put(b); err != nil {
		t.Fatal(err)
	}
	if got := q.Get(); got != a {
		t.Fatalf("Get() = %v, want a", got)
	}
	if got := q.Get(); got != b {
		t.Fatalf("Get() = %v, want b", got)
	}
	if got := q.Get(); got != nil {
		t.Fatalf("Get() on drained queue = %v, want nil", got)
	}
}

func TestQueue_Put_RefusesAfterEOF(t *testing.T) {
	q := newTestQueue(0, 0, 0)
	if err := q.Put(NewEndPacket()); err != nil {
		t.Fatal(err)
	}
	if !q.EOF() {
		t.Fatal("queue did not observe EOF after END packet")
	}
	if err := q.Put(NewDataPacket([]byte("x"))); !errors.Is(err, ErrQueueEOF) {
		t.Fatalf("err = %v, want ErrQueueEOF", err)
	}
}

func TestQueue_Put_InvalidExtentPacketRejected(t *testing.T) {
	q := newTestQueue(0, 0, 0)
	pkt := &Packet{Flags: FlagData, Content: []byte("x"), Extent: Extent{Length: 1}}
	if err := q.Put(pkt); !errors.Is(err, ErrInvalidPacket) {
		t.Fatalf("err = %v, want ErrInvalidPacket", err)
	}
}

func TestQueue_PutBack_PrependsAndRestoresCount(t *testing.T) {
	q := newTestQueue(0, 0, 0)
	_ = q.Put(NewDataPacket([]byte("second")))
	q.PutBack(NewDataPacket([]byte("first")))
	if q.Count() != len("second")+len("first") {
		t.Fatalf("Count() = %d, want %d", q.Count(), len("second")+len("first"))
	}
	if got := q.Get(); string(got.Content) != "first" {
		t.Fatalf("Get() = %q, want %q", got.Content, "first")
	}
}

func TestQueue_Resize_SplitsContent(t *testing.T) {
	q := newTestQueue(0, 0, 0)
	pkt := NewDataPacket([]byte("0123456789"))
	_ = q.Put(pkt)

	tail := q.Resize(pkt, 4)
	if tail == nil {
		t.Fatal("Resize returned nil tail")
	}
	if string(pkt.Content) != "0123" {
		t.Fatalf("head content = %q", pkt.Content)
	}
	if string(tail.Content) != "456789" {
		t.Fatalf("tail content = %q", tail.Content)
	}
	if q.Get() != pkt {
		t.Fatal("head not still first in queue")
	}
	if q.Get() != tail {
		t.Fatal("tail not linked after head")
	}
}

func TestQueue_Resize_SplitsExtent(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "resize")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	q := newTestQueue(0, 0, 0)
	pkt := NewExtentPacket(f, 100, 50)
	_ = q.Put(pkt)

	tail := q.Resize(pkt, 20)
	if tail == nil {
		t.Fatal("Resize returned nil tail for extent packet")
	}
	if pkt.Extent.Offset != 100 || pkt.Extent.Length != 20 {
		t.Fatalf("head extent = %+v", pkt.Extent)
	}
	if tail.Extent.Offset != 120 || tail.Extent.Length != 30 {
		t.Fatalf("tail extent = %+v", tail.Extent)
	}
}

func TestQueue_Resize_RefusesHeader(t *testing.T) {
	q := newTestQueue(0, 0, 0)
	pkt := NewHeaderPacket()
	pkt.Content = []byte("HTTP/1.1 200 OK\r\n\r\n")
	_ = q.Put(pkt)
	if tail := q.Resize(pkt, 1); tail != nil {
		t.Fatal("Resize must never split a HEADER packet")
	}
}

func TestQueue_WillNextAccept_RespectsHighWatermark(t *testing.T) {
	producer := newTestQueue(0, 0, 0)
	consumer := newTestQueue(10, 2, 0)
	producer.nextQ = consumer

	small := NewDataPacket(make([]byte, 5))
	if !producer.WillNextAccept(small) {
		t.Fatal("WillNextAccept(small) = false, want true")
	}

	big := NewDataPacket(make([]byte, 20))
	if producer.WillNextAccept(big) {
		t.Fatal("WillNextAccept(big) = true, want false (exceeds Max)")
	}
}

func TestQueue_DefaultOutgoingService_ForwardsToNext(t *testing.T) {
	producer := newTestQueue(0, 0, 0)
	consumer := newTestQueue(0, 0, 0)
	producer.nextQ = consumer

	_ = producer.Put(NewDataPacket([]byte("x")))
	_ = producer.Put(NewEndPacket())

	producer.defaultOutgoingService()

	if !producer.Empty() {
		t.Fatal("producer queue not drained")
	}
	if consumer.Empty() {
		t.Fatal("consumer queue did not receive forwarded packets")
	}
	if got := consumer.Get(); string(got.Content) != "x" {
		t.Fatalf("forwarded content = %q", got.Content)
	}
}

func TestQueue_Discard_DrainsQueue(t *testing.T) {
	q := newTestQueue(0, 0, 0)
	_ = q.Put(NewDataPacket([]byte("a")))
	_ = q.Put(NewDataPacket([]byte("b")))
	q.Discard()
	if !q.Empty() {
		t.Fatal("Discard did not drain the queue")
	}
	if q.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", q.Count())
	}
}
