// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rawio wraps the raw vectored-write and sendfile syscalls the
// net connector and send connector need, behind a platform-neutral
// Writer. This mirrors the teacher's internal/bo split: one small
// platform-specific package hidden behind build tags, rather than
// scattering GOOS checks through the pipeline itself.
package rawio

import "errors"

// ErrWouldBlock is returned when the underlying fd is non-blocking and
// not currently writable. Callers retry after the next writable event,
// never by busy-looping.
var ErrWouldBlock = errors.New("rawio: operation would block")
