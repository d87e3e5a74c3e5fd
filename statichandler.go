// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"mime"
	"os"
	"path/filepath"
)

// NewStaticFileStage returns a RoleHandler Stage that serves path as a
// sendfile-backed response (spec §3's handler role; request parsing
// itself is a Non-goal, so this stage takes an already-resolved
// filesystem path rather than a URI). It mirrors sendConnector.c's
// sendOpen in spirit: open once, fail the request on error, otherwise
// hand a single Extent-backed DATA packet plus a terminal END packet
// downstream.
func NewStaticFileStage(path string) *Stage {
	return &Stage{
		Name:    "staticFile",
		Role:    RoleHandler,
		Methods: MethodGet | MethodHead,
		Start: func(q *Queue) {
			ctx := q.conn

			f, err := os.Open(path)
			if err != nil {
				ctx.StatusCode = 404
				ctx.Length = 0
				ctx.SetNoBody()
				_ = q.Put(NewHeaderPacket())
				_ = q.Put(NewEndPacket())
				return
			}

			info, err := f.Stat()
			if err != nil || info.IsDir() {
				_ = f.Close()
				ctx.StatusCode = 404
				ctx.Length = 0
				ctx.SetNoBody()
				_ = q.Put(NewHeaderPacket())
				_ = q.Put(NewEndPacket())
				return
			}

			ctx.File = f
			ctx.EntityLength = info.Size()
			ctx.Length = info.Size()
			if ctx.MimeType == "" {
				ctx.MimeType = mimeTypeFor(path)
			}

			_ = q.Put(NewHeaderPacket())
			if ctx.NoBody() {
				_ = ctx.CloseFile()
			} else if info.Size() > 0 {
				_ = q.Put(NewExtentPacket(f, 0, info.Size()))
			} else {
				_ = ctx.CloseFile()
			}
			_ = q.Put(NewEndPacket())
		},
	}
}

func mimeTypeFor(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
