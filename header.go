// Copyright (c) Emberroute. All Rights Reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
)

// TextHeaderFormatter renders a Context's status line and headers as
// HTTP/1.1 wire bytes into a HEADER packet's Content, the collaborator
// netConnector.c calls via maFillHeaders. Header values use the
// standard library's http.Header container since its canonicalization
// (textproto.CanonicalMIMEHeaderKey) is the behavior every HTTP
// implementation in the ecosystem already standardizes on.
type TextHeaderFormatter struct {
	Values http.Header
	Proto  string // defaults to "HTTP/1.1"
}

// NewTextHeaderFormatter returns a formatter with an empty header set.
func NewTextHeaderFormatter() *TextHeaderFormatter {
	return &TextHeaderFormatter{Values: make(http.Header)}
}

// FillHeaders implements HeaderFormatter.
func (h *TextHeaderFormatter) FillHeaders(ctx *Context, pkt *Packet) error {
	proto := h.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}

	status := ctx.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	text := http.StatusText(status)
	if text == "" {
		text = "Unknown"
	}

	buf := make([]byte, 0, 256)
	buf = append(buf, fmt.Sprintf("%s %d %s\r\n", proto, status, text)...)

	if ctx.MimeType != "" && h.Values.Get("Content-Type") == "" {
		h.Values.Set("Content-Type", ctx.MimeType)
	}
	if ctx.ChunkSize > 0 {
		h.Values.Set("Transfer-Encoding", "chunked")
		h.Values.Del("Content-Length")
	} else if ctx.Length >= 0 {
		h.Values.Set("Content-Length", strconv.FormatInt(ctx.Length, 10))
	}
	if len(ctx.Ranges) == 1 {
		rng := ctx.Ranges[0]
		total := "*"
		if ctx.EntityLength >= 0 {
			total = strconv.FormatInt(ctx.EntityLength, 10)
		}
		h.Values.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%s", rng.Start, rng.End-1, total))
	} else if ctx.RangeBoundary != "" {
		h.Values.Set("Content-Type", "multipart/byteranges; boundary="+ctx.RangeBoundary)
	}
	if ctx.Closing() || ctx.ReuseDisabled() {
		h.Values.Set("Connection", "close")
	}

	keys := make([]string, 0, len(h.Values))
	for k := range h.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range h.Values[k] {
			buf = append(buf, fmt.Sprintf("%s: %s\r\n", k, v)...)
		}
	}
	buf = append(buf, "\r\n"...)

	pkt.Content = buf
	return nil
}
