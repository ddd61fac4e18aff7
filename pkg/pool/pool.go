// Buffer pool for rendered G-code lines
//
// Every converted move is rendered into a short-lived buffer. Buffers are
// recycled through a sync.Pool so long streams do not allocate one builder
// per line.
//
// Usage:
//
//	b := pool.GetLineBuffer()
//	defer pool.PutLineBuffer(b)
//	b.WriteString("G1 X")
//	line := b.String()
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"
)

// MaxPooledCap is the largest buffer capacity returned to the pool.
const MaxPooledCap = 1024

// LineBuffer accumulates one output line.
type LineBuffer struct {
	buf []byte
}

var lineBufferPool = sync.Pool{
	New: func() any {
		return &LineBuffer{
			buf: make([]byte, 0, 96), // G1 with five axes at default precision
		}
	},
}

// GetLineBuffer gets an empty buffer from the pool
func GetLineBuffer() *LineBuffer {
	b := lineBufferPool.Get().(*LineBuffer)
	b.buf = b.buf[:0]
	return b
}

// PutLineBuffer returns a buffer to the pool. Oversized buffers are dropped.
func PutLineBuffer(b *LineBuffer) {
	if b == nil || cap(b.buf) > MaxPooledCap {
		return
	}
	lineBufferPool.Put(b)
}

// WriteByte appends a single byte
func (b *LineBuffer) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// WriteString appends a string
func (b *LineBuffer) WriteString(s string) (int, error) {
	b.buf = append(b.buf, s...)
	return len(s), nil
}

// String returns a copy of the buffered line
func (b *LineBuffer) String() string {
	return string(b.buf)
}

// Len returns the buffer length
func (b *LineBuffer) Len() int {
	return len(b.buf)
}

// Cap returns the buffer capacity
func (b *LineBuffer) Cap() int {
	return cap(b.buf)
}

// Reset clears the buffer and keeps its capacity
func (b *LineBuffer) Reset() {
	b.buf = b.buf[:0]
}
