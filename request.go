// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

// Request is a cursor over one inbound CMSIS-DAP packet: the parsed
// command opcode plus the remaining payload bytes. Payload values are
// consumed with fixed-width little-endian reads that advance the cursor.
//
// Reading past the end of the payload is a programming error, not a
// recoverable protocol condition: per command the host guarantees a
// well-formed payload length, so an overrun panics via the slice bounds
// check.
type Request struct {
	Command Command
	data    []byte
}

// newRequest parses the opcode byte of a report. Returns false for an
// empty report. Unknown opcodes map to CmdUnimplemented.
func newRequest(report []byte) (Request, bool) {
	if len(report) == 0 {
		return Request{}, false
	}

	return Request{
		Command: commandFromByte(report[0]),
		data:    report[1:],
	}, true
}

func (r *Request) NextU8() uint8 {
	value := r.data[0]
	r.data = r.data[1:]
	return value
}

func (r *Request) NextU16() uint16 {
	value := uint16(r.data[0]) | uint16(r.data[1])<<8
	r.data = r.data[2:]
	return value
}

func (r *Request) NextU32() uint32 {
	value := uint32(r.data[0]) | uint32(r.data[1])<<8 |
		uint32(r.data[2])<<16 | uint32(r.data[3])<<24
	r.data = r.data[4:]
	return value
}

// Rest returns all payload bytes not yet consumed.
func (r *Request) Rest() []byte {
	return r.data
}

// ResponseWriter appends a response into a fixed-capacity packet buffer.
// The first byte always echoes the command opcode; handlers append their
// payload after it. Commands that reserve header space and backfill counts
// afterwards use the *At variants, which do not move the cursor.
type ResponseWriter struct {
	buf []byte
	idx int
}

func newResponseWriter(command Command, buf []byte) *ResponseWriter {
	buf[0] = uint8(command)
	return &ResponseWriter{buf: buf, idx: 1}
}

func (w *ResponseWriter) WriteU8(value uint8) {
	w.buf[w.idx] = value
	w.idx++
}

func (w *ResponseWriter) WriteU16(value uint16) {
	w.buf[w.idx] = uint8(value)
	w.buf[w.idx+1] = uint8(value >> 8)
	w.idx += 2
}

func (w *ResponseWriter) WriteU32(value uint32) {
	w.buf[w.idx] = uint8(value)
	w.buf[w.idx+1] = uint8(value >> 8)
	w.buf[w.idx+2] = uint8(value >> 16)
	w.buf[w.idx+3] = uint8(value >> 24)
	w.idx += 4
}

func (w *ResponseWriter) WriteSlice(data []byte) {
	copy(w.buf[w.idx:w.idx+len(data)], data)
	w.idx += len(data)
}

func (w *ResponseWriter) WriteOK() {
	w.WriteU8(dapOk)
}

func (w *ResponseWriter) WriteErr() {
	w.WriteU8(dapError)
}

func (w *ResponseWriter) WriteU8At(idx int, value uint8) {
	w.buf[idx] = value
}

func (w *ResponseWriter) WriteU16At(idx int, value uint16) {
	w.buf[idx] = uint8(value)
	w.buf[idx+1] = uint8(value >> 8)
}

func (w *ResponseWriter) ReadU8At(idx int) uint8 {
	return w.buf[idx]
}

// Remaining returns the unwritten tail of the packet buffer for handlers
// that fill response data in place; pair with Skip to commit the bytes.
func (w *ResponseWriter) Remaining() []byte {
	return w.buf[w.idx:]
}

func (w *ResponseWriter) Skip(n int) {
	w.idx += n
}

// BytesWritten returns the total response length including the echoed
// command byte.
func (w *ResponseWriter) BytesWritten() int {
	return w.idx
}
