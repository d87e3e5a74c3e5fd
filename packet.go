// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import "os"

// Flag classifies a Packet's role and, orthogonally, marks it as a
// pipeline boundary (spec §3).
type Flag uint8

const (
	FlagHeader Flag = 1 << iota
	FlagData
	FlagEnd
	FlagRange
	// FlagBoundary marks a packet as a pipeline stage boundary marker;
	// orthogonal to the Header/Data/End/Range classification.
	FlagBoundary
)

func (f Flag) String() string {
	switch f & (FlagHeader | FlagData | FlagEnd | FlagRange) {
	case FlagHeader:
		return "HEADER"
	case FlagData:
		return "DATA"
	case FlagEnd:
		return "END"
	case FlagRange:
		return "RANGE"
	default:
		return "UNKNOWN"
	}
}

// Extent describes a file-backed virtual payload transmitted directly by
// the send connector via sendfile, without ever entering user space.
type Extent struct {
	File   *os.File
	Offset int64
	Length int64
}

func (e Extent) empty() bool { return e.Length <= 0 }

// Packet is the unit of data flowing between queues. It carries at most
// three payload representations simultaneously: Prefix (framing bytes
// prepended by a filter), Content (in-memory body or header bytes), and
// Extent (a file-region descriptor for sendfile). Flags classify it.
//
// Packets are intrusively linked into exactly one Queue at a time; next
// and prev are owned by that Queue and must not be touched by callers.
type Packet struct {
	Flags   Flag
	Prefix  []byte
	Content []byte
	Extent  Extent

	next, prev *Packet
}

// contentLen returns the number of content bytes currently carried by the
// packet. Prefix bytes and extent length never contribute to this.
func (p *Packet) contentLen() int {
	if p == nil {
		return 0
	}
	return len(p.Content)
}

// length returns the packet's effective payload size for queue-walking
// purposes: content bytes, or extent length when the packet is
// extent-backed.
func (p *Packet) length() int64 {
	if p == nil {
		return 0
	}
	if !p.Extent.empty() {
		return p.Extent.Length
	}
	return int64(len(p.Content))
}

// empty reports whether the packet carries no prefix, no content, and no
// extent bytes (used by the chunk filter's inbound decoder to detect the
// end of the raw stream).
func (p *Packet) empty() bool {
	return len(p.Prefix) == 0 && len(p.Content) == 0 && p.Extent.empty()
}

// NewHeaderPacket builds a HEADER packet. Content is filled in lazily by
// a HeaderFormatter when the connector builds its I/O vector; it carries
// no extent (spec §3 invariant: "a HEADER packet has content only").
func NewHeaderPacket() *Packet {
	return &Packet{Flags: FlagHeader}
}

// NewDataPacket builds a DATA packet carrying in-memory content.
func NewDataPacket(content []byte) *Packet {
	return &Packet{Flags: FlagData, Content: content}
}

// NewExtentPacket builds a DATA packet backed by a file region. It must
// not also carry content bytes (spec §3 invariant).
func NewExtentPacket(file *os.File, offset, length int64) *Packet {
	return &Packet{Flags: FlagData, Extent: Extent{File: file, Offset: offset, Length: length}}
}

// NewEndPacket builds the terminal END sentinel: no prefix, no content,
// no extent.
func NewEndPacket() *Packet {
	return &Packet{Flags: FlagEnd}
}

// NewRangePacket builds a RANGE packet (a multipart/byteranges boundary
// or trailer) carrying in-memory content only.
func NewRangePacket(content []byte) *Packet {
	return &Packet{Flags: FlagRange, Content: content}
}

// validate checks the packet invariants named in spec §3. It is called
// defensively at queue boundaries, not on every field access, mirroring
// how the teacher validates framing once per message rather than per
// byte (internal.go's header-then-payload split).
func (p *Packet) validate() error {
	if p.Flags&FlagHeader != 0 && !p.Extent.empty() {
		return ErrInvalidPacket
	}
	if !p.Extent.empty() && len(p.Content) != 0 {
		return ErrInvalidPacket
	}
	if !p.Extent.empty() && p.Extent.Length <= 0 {
		return ErrInvalidPacket
	}
	// An END sentinel carries no content or extent, but it MAY carry a
	// prefix: the chunk filter rides its "\r\n0\r\n\r\n" terminator out on
	// the END packet rather than allocating a separate one (chunkFilter.c:
	// setChunkPrefix is called for every non-header packet, including the
	// zero-length END packet).
	if p.Flags&FlagEnd != 0 && (len(p.Content) != 0 || !p.Extent.empty()) {
		return ErrInvalidPacket
	}
	return nil
}
