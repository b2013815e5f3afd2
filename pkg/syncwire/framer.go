// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package syncwire

// Framer splits a raw byte stream on EOT boundaries, yielding complete
// payloads with the terminator stripped. Used by the stream transports
// (serial, websocket) that deliver arbitrary chunks.
type Framer struct {
	buf      []byte
	oversize uint32
}

// Push feeds stream bytes in and returns any completed payloads. Payloads
// longer than MaxPayloadSize are discarded and counted. Returned slices are
// copies, safe to retain after the transport buffer recycles.
func (f *Framer) Push(data []byte) [][]byte {
	var frames [][]byte
	for _, b := range data {
		if b != EOT {
			f.buf = append(f.buf, b)
			continue
		}
		if len(f.buf) > MaxPayloadSize {
			f.oversize++
		} else if len(f.buf) > 0 {
			frame := make([]byte, len(f.buf))
			copy(frame, f.buf)
			frames = append(frames, frame)
		}
		f.buf = f.buf[:0]
	}
	// Unterminated garbage cannot grow without bound.
	if len(f.buf) > MaxPayloadSize {
		f.oversize++
		f.buf = f.buf[:0]
	}
	return frames
}

// Oversize returns the number of discarded over-length frames.
func (f *Framer) Oversize() uint32 { return f.oversize }

// Reset discards any partial frame.
func (f *Framer) Reset() { f.buf = f.buf[:0] }
