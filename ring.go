// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

// DMARing is a fixed circular buffer filled by a free-running producer
// (the UART receive DMA on hardware) and drained by a single consumer.
// The producer only advances the write index; the consumer only advances
// the read index, so no locking is required with one logical thread of
// control on each side.
//
// Overflow is intentionally not detected: when the consumer falls behind
// a full buffer's worth of data, old bytes are silently overwritten. This
// favours low latency over guaranteed delivery, matching the best-effort
// trace model.
type DMARing struct {
	buf      []byte
	writeIdx int
	lastIdx  int
}

func NewDMARing(size int) *DMARing {
	return &DMARing{buf: make([]byte, size)}
}

// Len returns the fixed capacity of the ring.
func (r *DMARing) Len() int {
	return len(r.buf)
}

// Reset rewinds both cursors, discarding buffered data. Called when
// reception is stopped and restarted.
func (r *DMARing) Reset() {
	r.writeIdx = 0
	r.lastIdx = 0
}

// Produce appends data at the write index, wrapping around the fixed
// buffer. On hardware this is performed by the DMA engine; simulations
// and tests call it directly.
func (r *DMARing) Produce(data []byte) {
	for _, b := range data {
		r.buf[r.writeIdx] = b
		r.writeIdx = (r.writeIdx + 1) % len(r.buf)
	}
}

// BytesAvailable returns the number of unread bytes. Subsequent calls to
// Read may return a different amount of data.
func (r *DMARing) BytesAvailable() int {
	if r.writeIdx >= r.lastIdx {
		return r.writeIdx - r.lastIdx
	}
	return (len(r.buf) - r.lastIdx) + r.writeIdx
}

// Read copies new data into rx, returning the number of bytes written.
//
// Reads at most len(rx) new bytes, which may be less than what was
// received. Remaining data will be read on the next call, so long as the
// internal buffer doesn't overflow, which is not detected.
func (r *DMARing) Read(rx []byte) int {
	writeIdx := r.writeIdx

	switch {
	case writeIdx == r.lastIdx:
		// No action required if no data has been received.
		return 0

	case writeIdx < r.lastIdx:
		// Wraparound occurred:
		// copy from lastIdx to end, and from start to the new writeIdx.
		n1 := len(r.buf) - r.lastIdx
		n2 := writeIdx
		newLastIdx := writeIdx

		// Ensure we don't overflow the rx buffer
		if n1 > len(rx) {
			n1 = len(rx)
			n2 = 0
			newLastIdx = r.lastIdx + n1
		} else if (n1 + n2) > len(rx) {
			n2 = len(rx) - n1
			newLastIdx = n2
		}

		copy(rx[:n1], r.buf[r.lastIdx:r.lastIdx+n1])
		copy(rx[n1:n1+n2], r.buf[:n2])

		r.lastIdx = newLastIdx
		return n1 + n2

	default:
		// New data, no wraparound:
		// copy from lastIdx to the new writeIdx.
		n := writeIdx - r.lastIdx

		// Ensure we don't overflow the rx buffer
		if n > len(rx) {
			n = len(rx)
		}

		copy(rx[:n], r.buf[r.lastIdx:r.lastIdx+n])

		r.lastIdx += n
		return n
	}
}
