// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestParsesOpcodeAndPayload(t *testing.T) {
	req, ok := newRequest([]byte{0x05, 0x01, 0x02})
	require.True(t, ok)
	assert.Equal(t, CmdTransfer, req.Command)
	assert.Equal(t, []byte{0x01, 0x02}, req.Rest())
}

func TestRequestEmptyReport(t *testing.T) {
	_, ok := newRequest(nil)
	assert.False(t, ok)

	_, ok = newRequest([]byte{})
	assert.False(t, ok)
}

func TestRequestUnknownOpcode(t *testing.T) {
	req, ok := newRequest([]byte{0x42})
	require.True(t, ok)
	assert.Equal(t, CmdUnimplemented, req.Command)
}

func TestRequestLittleEndianReads(t *testing.T) {
	req, ok := newRequest([]byte{0x00, 0xAB, 0x34, 0x12, 0x78, 0x56, 0x34, 0x12})
	require.True(t, ok)

	assert.Equal(t, uint8(0xAB), req.NextU8())
	assert.Equal(t, uint16(0x1234), req.NextU16())
	assert.Equal(t, uint32(0x12345678), req.NextU32())
	assert.Empty(t, req.Rest())
}

func TestResponseWriterEchoesCommand(t *testing.T) {
	buf := make([]byte, DAP1PacketSize)
	w := newResponseWriter(CmdConnect, buf)

	assert.Equal(t, 1, w.BytesWritten())
	assert.Equal(t, uint8(CmdConnect), buf[0])
}

func TestResponseWriterLittleEndianWrites(t *testing.T) {
	buf := make([]byte, DAP1PacketSize)
	w := newResponseWriter(CmdInfo, buf)

	w.WriteU8(0xAB)
	w.WriteU16(0x1234)
	w.WriteU32(0x12345678)

	assert.Equal(t, 8, w.BytesWritten())
	assert.Equal(t, []byte{0x00, 0xAB, 0x34, 0x12, 0x78, 0x56, 0x34, 0x12}, buf[:8])
}

func TestResponseWriterBackfill(t *testing.T) {
	buf := make([]byte, DAP1PacketSize)
	w := newResponseWriter(CmdTransfer, buf)

	// Reserve count and status, then backfill.
	w.WriteU16(0)
	w.WriteU32(0xDEADBEEF)
	w.WriteU8At(1, 3)
	w.WriteU8At(2, transferAckOk)

	assert.Equal(t, uint8(3), w.ReadU8At(1))
	assert.Equal(t, uint8(transferAckOk), buf[2])
	assert.Equal(t, 7, w.BytesWritten())
}

func TestResponseWriterRemainingAndSkip(t *testing.T) {
	buf := make([]byte, 8)
	w := newResponseWriter(CmdSWOData, buf)
	w.WriteU8(1)

	tail := w.Remaining()
	require.Len(t, tail, 6)
	tail[0] = 0x11
	tail[1] = 0x22
	w.Skip(2)

	assert.Equal(t, 4, w.BytesWritten())
	assert.Equal(t, []byte{0x1C, 0x01, 0x11, 0x22}, buf[:4])
}
