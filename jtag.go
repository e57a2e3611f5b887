// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

// JTAG sequence header bits per the DAP_JTAG_Sequence wire format.
const (
	jtagSeqCapture uint8 = 1 << 7
	jtagSeqTMS     uint8 = 1 << 6
	jtagSeqBits    uint8 = 0x3F
)

// JTAG implements TAP-level bit shifting: TMS navigation sequences and
// combined TMS/TDI/TDO data sequences. Runs of 8-bit-aligned sequences
// sharing the same capture/TMS header bits are coalesced into one
// hardware-shifted exchange; everything else is bit-banged with explicit
// half-period delays.
type JTAG struct {
	spi   ShiftRegister
	pins  *Pins
	delay DelayTimer

	halfPeriodTicks uint32
	useBitbang      bool
}

func NewJTAG(spi ShiftRegister, pins *Pins, delay DelayTimer) *JTAG {
	return &JTAG{
		spi:             spi,
		pins:            pins,
		delay:           delay,
		halfPeriodTicks: 10000,
		useBitbang:      true,
	}
}

// SetClock requests a TCK rate of at most maxFrequency. If the shift
// register can divide down to the request, batched transfers use it;
// otherwise everything is bit-banged at the computed half period.
// JTAG clock selection never fails: bit-banging covers any rate.
func (j *JTAG) SetClock(maxFrequency uint32) {
	period := j.delay.CalcPeriodTicks(maxFrequency)
	j.halfPeriodTicks = period / 2

	if prescaler, ok := matchPrescaler(j.spi.BaseClock(), maxFrequency); ok {
		j.spi.SetPrescaler(prescaler)
		j.useBitbang = false
	} else {
		j.useBitbang = true
	}

	logger.Debugf("JTAG clock set to max %d Hz (bitbang=%v)", maxFrequency, j.useBitbang)
}

// Enable sets up the shift register for JTAG mode.
func (j *JTAG) Enable() {
	j.spi.SetupJTAG()
}

// Disable releases the shift register.
func (j *JTAG) Disable() {
	j.spi.Disable()
}

// TMSSequence clocks bits onto TMS with TDI/TDO don't-care, used for TAP
// state machine navigation. Bits are consumed LSB first from data.
func (j *JTAG) TMSSequence(data []byte, bitCount int) {
	j.bitbangMode()

	last := j.delay.Current()
	last = j.delay.DelayTicksFromLast(j.halfPeriodTicks, last)

	bits := bitCount
	for _, b := range data {
		frameBits := bits
		if frameBits > 8 {
			frameBits = 8
		}
		for i := 0; i < frameBits; i++ {
			bit := b & 1
			b >>= 1

			j.pins.TMS.SetBool(bit != 0)
			j.pins.TCK.SetLow()
			last = j.delay.DelayTicksFromLast(j.halfPeriodTicks, last)
			j.pins.TCK.SetHigh()
			last = j.delay.DelayTicksFromLast(j.halfPeriodTicks, last)
		}
		bits -= frameBits
	}
}

// Sequences handles a DAP_JTAG_Sequence request body. The wire format:
//   - first byte: number of sequences
//   - per sequence one header byte: bit 7 capture TDO, bit 6 TMS level,
//     bits 5..0 clock count where 0 means 64
//   - followed by ceil(bits/8) TDI bytes, LSB first per byte.
//
// Captured TDO data is written LSB first to successive bytes of rxbuf,
// one byte per consumed TDI byte across capture-enabled sequences.
// Malformed or empty input yields 0 bytes captured, never an error.
//
// Returns the number of bytes written to rxbuf.
func (j *JTAG) Sequences(data []byte, rxbuf []byte) int {
	if len(data) == 0 {
		return 0
	}
	nseqs := int(data[0])
	data = data[1:]
	rxidx := 0

	if nseqs == 0 || len(data) == 0 {
		return 0
	}

	j.delay.DelayTicks(j.halfPeriodTicks)

	// Coalesce alike sequences into a single hardware transfer. Stops at
	// the first sequence with a different header type or a bit count
	// that isn't a whole number of bytes.
	if !j.useBitbang {
		var buffer [DAP2PacketSize]byte
		bufferIdx := 0
		transferType := data[0] & (jtagSeqCapture | jtagSeqTMS)

		for nseqs > 0 {
			if len(data) == 0 {
				break
			}
			header := data[0]
			if header&(jtagSeqCapture|jtagSeqTMS) != transferType {
				// This sequence can't be processed in the same way
				break
			}
			nbits := int(header & jtagSeqBits)
			if nbits&7 != 0 {
				// We can handle only 8*N bit sequences here
				break
			}
			if nbits == 0 {
				nbits = 64
			}
			nbytes := bytesForBits(nbits)

			if len(data) < nbytes+1 {
				break
			}
			data = data[1:]

			copy(buffer[bufferIdx:bufferIdx+nbytes], data[:nbytes])
			bufferIdx += nbytes
			nseqs--
			data = data[nbytes:]
		}

		if bufferIdx > 0 {
			capture := transferType & jtagSeqCapture
			tms := transferType & jtagSeqTMS

			// Set TMS for this transfer.
			j.pins.TMS.SetBool(tms != 0)

			j.spiMode()
			j.spi.JTAGExchange(buffer[:bufferIdx], rxbuf[rxidx:])
			if capture != 0 {
				rxidx += bufferIdx
			}
			// Latch TDI to the last bit the shift register transmitted,
			// so the line doesn't glitch when it becomes a GPIO output.
			j.pins.TDI.SetBool(buffer[bufferIdx-1]>>7 != 0)
			j.bitbangMode()
			j.spi.Disable()
		}
	}

	// Bit-bang the remaining sequences.
	for ; nseqs > 0; nseqs-- {
		if len(data) == 0 {
			break
		}
		header := data[0]
		data = data[1:]
		capture := header & jtagSeqCapture
		tms := header & jtagSeqTMS
		nbits := int(header & jtagSeqBits)
		if nbits == 0 {
			nbits = 64
		}
		nbytes := bytesForBits(nbits)
		if len(data) < nbytes {
			break
		}

		// Split TDI data for this sequence from the remaining sequences.
		tdi := data[:nbytes]
		data = data[nbytes:]

		// Set TMS for this transfer.
		j.pins.TMS.SetBool(tms != 0)

		if capture != 0 {
			j.transferRW(nbits, tdi, rxbuf[rxidx:])
			rxidx += nbytes
		} else {
			j.transferWO(nbits, tdi)
		}
	}

	return rxidx
}

// transferWO writes n bits from successive bytes of tdi, LSB first,
// without capturing TDO.
func (j *JTAG) transferWO(n int, tdi []byte) {
	last := j.delay.Current()

	for byteIdx, b := range tdi {
		for bitIdx := 0; bitIdx < 8; bitIdx++ {
			// Stop after transmitting n bits.
			if byteIdx*8+bitIdx == n {
				return
			}

			// Set TDI and toggle TCK.
			j.pins.TDI.SetBool(b&(1<<uint(bitIdx)) != 0)
			last = j.delay.DelayTicksFromLast(j.halfPeriodTicks, last)
			j.pins.TCK.SetHigh()
			last = j.delay.DelayTicksFromLast(j.halfPeriodTicks, last)
			j.pins.TCK.SetLow()
		}
	}
}

// transferRW writes n bits from tdi while capturing n bits from TDO into
// successive bytes of tdo, LSB first.
//
// TDI is set half a period before the rising edge where the target
// samples it, and TDO is sampled immediately before the falling edge
// where the target updates it.
func (j *JTAG) transferRW(n int, tdi []byte, tdo []byte) {
	last := j.delay.Current()

	for byteIdx, b := range tdi {
		if byteIdx >= len(tdo) {
			return
		}
		var captured uint8
		for bitIdx := 0; bitIdx < 8; bitIdx++ {
			// Stop after transmitting n bits.
			if byteIdx*8+bitIdx == n {
				tdo[byteIdx] = captured
				return
			}

			j.pins.TDI.SetBool(b&(1<<uint(bitIdx)) != 0)
			last = j.delay.DelayTicksFromLast(j.halfPeriodTicks, last)
			j.pins.TCK.SetHigh()
			last = j.delay.DelayTicksFromLast(j.halfPeriodTicks, last)
			if j.pins.TDO.IsHigh() {
				captured |= 1 << uint(bitIdx)
			}
			j.pins.TCK.SetLow()
		}
		tdo[byteIdx] = captured
	}
}

// bytesForBits computes the bytes required to hold a number of bits.
func bytesForBits(bits int) int {
	return (bits + 7) / 8
}

func (j *JTAG) bitbangMode() {
	j.pins.TDO.SetModeInput()
	j.pins.TDI.SetModeOutput()
	j.pins.TCK.SetLow()
	j.pins.TCK.SetModeOutput()
}

func (j *JTAG) spiMode() {
	j.pins.TDO.SetModeAlternate()
	j.pins.TDI.SetModeAlternate()
	j.pins.TCK.SetModeAlternate()
}
