// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import "errors"

// Control-flow and protocol sentinel errors.
//
// ErrWouldBlock is a pure flow-control signal (spec §7(c)): it is
// recovered locally by connectors and never surfaced to a caller outside
// this package. The remaining sentinels terminate a request, not the
// server (spec §7's propagation policy).
var (
	// ErrWouldBlock means the underlying socket write would block.
	// Connectors re-arm for the next writable event and return.
	ErrWouldBlock = errors.New("pipeline: operation would block")

	// ErrDisconnected means the peer socket is gone (EPIPE/ECONNRESET or an
	// unexpected negative syscall result). Queued packets are dropped.
	ErrDisconnected = errors.New("pipeline: connection disconnected")

	// ErrBadChunk means the inbound chunk-spec line failed validation.
	ErrBadChunk = errors.New("pipeline: malformed chunk header")

	// ErrBadRange means a byte-range could not be normalized against a
	// known entity length.
	ErrBadRange = errors.New("pipeline: invalid byte range")

	// ErrQueueEOF means a packet was offered to a queue that already
	// observed its terminal sentinel.
	ErrQueueEOF = errors.New("pipeline: queue at EOF")

	// ErrInvalidPacket means a packet violates the packet invariants (a
	// HEADER packet carrying an extent, etc).
	ErrInvalidPacket = errors.New("pipeline: invalid packet")

	// ErrReentrant means a queue's service routine was invoked while
	// already running for the same turn.
	ErrReentrant = errors.New("pipeline: reentrant queue service")

	// ErrEmptyPipeline means NewPipeline was called with no stages.
	ErrEmptyPipeline = errors.New("pipeline: no stages given")

	// ErrNotConnector means a pipeline's last stage is not a RoleConnector.
	ErrNotConnector = errors.New("pipeline: last stage in a pipeline must be a connector")
)
