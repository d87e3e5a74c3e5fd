// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import "time"

// Limits carries every tunable named in spec §6. Defaults are lifted
// from original_source/src/include/httpTune.h's "Medium" tier (the
// middle of its Bot/Default/Top three-tier scheme), since this module
// targets a general-purpose embedded server rather than either memory
// extreme.
type Limits struct {
	MaxIovec       int // number of fragments in a single vectored write
	BufSize        int // default I/O buffer size
	MaxStageBuffer int // queue high watermark (Max), in bytes
	MaxChunkSize   int
	MaxHeaders     int
	MaxNumHeaders  int
	MaxBody        int64
	MaxResponseBody int64
	MaxUploadSize  int64
	RangeBufSize   int

	KeepTimeout   time.Duration
	ServerTimeout time.Duration
	CGITimeout    time.Duration
	MaxKeepAlive  int

	// TimerPeriod is the tick interval of the timeout-enforcement loop
	// (spec §5, restored per SPEC_FULL.md §4).
	TimerPeriod time.Duration
}

// DefaultLimits returns httpTune.h's "Medium" tier tunables.
func DefaultLimits() Limits {
	return Limits{
		MaxIovec:        24,
		BufSize:         4 * 1024,
		MaxStageBuffer:  32 * 1024,
		MaxChunkSize:    8 * 1024,
		MaxHeaders:      8 * 1024,
		MaxNumHeaders:   40,
		MaxBody:         1024 * 1024,
		MaxResponseBody: 256 * 1024 * 1024,
		MaxUploadSize:   0x7fffffff,
		RangeBufSize:    128,

		KeepTimeout:   60 * time.Second,
		ServerTimeout: 300 * time.Second,
		CGITimeout:    4 * time.Second,
		MaxKeepAlive:  100,

		TimerPeriod: 1 * time.Second,
	}
}
