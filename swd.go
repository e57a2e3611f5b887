// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"math/bits"
)

// APnDP selects between the target's debug-port and access-port register
// spaces.
type APnDP uint8

const (
	PortDP APnDP = 0
	PortAP APnDP = 1
)

const (
	rnwWrite uint8 = 0
	rnwRead  uint8 = 1
)

// SWD drives the Serial Wire Debug electrical protocol through a shift
// register: an 8-bit request phase, a 3-bit ACK from the target, and a
// 32-bit data phase with odd parity, with turnaround clocks whenever bus
// ownership changes between probe and target.
//
// The caller must have placed the pins into SWD mode (Pins.SWDMode)
// before starting transactions; the engine itself only toggles SWDIO
// between drive and float around the turnaround points.
type SWD struct {
	spi  ShiftRegister
	pins *Pins

	waitRetries int
}

func NewSWD(spi ShiftRegister, pins *Pins) *SWD {
	return &SWD{
		spi:         spi,
		pins:        pins,
		waitRetries: 8,
	}
}

// SetClock requests an SWD clock of at most maxFrequency. Returns false
// when no prescaler can reach a rate at or below the request.
func (s *SWD) SetClock(maxFrequency uint32) bool {
	prescaler, ok := matchPrescaler(s.spi.BaseClock(), maxFrequency)
	if !ok {
		logger.Debugf("no SWD prescaler for %d Hz", maxFrequency)
		return false
	}

	s.spi.SetPrescaler(prescaler)
	return true
}

// Enable sets up the shift register for SWD mode.
func (s *SWD) Enable() {
	s.spi.SetupSWD()
}

// Disable releases the shift register.
func (s *SWD) Disable() {
	s.spi.Disable()
}

// SetWaitRetries configures how often transactions answered with ACK WAIT
// are retried before giving up. Set by DAP_TransferConfigure.
func (s *SWD) SetWaitRetries(retries int) {
	s.waitRetries = retries
}

// lineReset clocks 56 bits with SWDIO high, resetting the target's SWD
// state machine (the protocol requires at least 50).
func (s *SWD) lineReset() {
	for i := 0; i < 7; i++ {
		s.spi.Tx8(0xFF)
	}
}

// jtagToSWD transmits the JTAG-to-SWD switch sequence.
func (s *SWD) jtagToSWD() {
	s.spi.Tx16(0xE79E)
}

// TxSequence clocks raw bits onto the bus with the probe driving SWDIO.
// Used for SWJ_Sequence; trailing pad bits in the final byte are clocked
// as well, which is harmless since the line ends idle.
func (s *SWD) TxSequence(sequence []byte) {
	s.pins.SWDTx()
	for _, b := range sequence {
		s.spi.Tx8(b)
	}
	s.spi.WaitBusy()
}

func (s *SWD) idleHigh() {
	s.spi.Tx4(0xF)
}

func (s *SWD) idleLow() {
	s.spi.Tx4(0x0)
}

// Start initialises the bus: line reset, JTAG-to-SWD switch sequence,
// another line reset and an idle byte.
func (s *SWD) Start() {
	s.pins.SWDTx()
	s.lineReset()
	s.jtagToSWD()
	s.lineReset()
	s.spi.Tx8(0x00)
	s.spi.WaitBusy()
}

func (s *SWD) ReadDP(a uint8) (uint32, error) {
	return s.Read(PortDP, a)
}

func (s *SWD) WriteDP(a uint8, data uint32) error {
	return s.Write(PortDP, a, data)
}

func (s *SWD) ReadAP(a uint8) (uint32, error) {
	return s.Read(PortAP, a)
}

func (s *SWD) WriteAP(a uint8, data uint32) error {
	return s.Write(PortAP, a, data)
}

// Read performs a register read, retrying on ACK WAIT up to the
// configured retry count. Any other error returns immediately.
func (s *SWD) Read(apndp APnDP, a uint8) (uint32, error) {
	for i := 0; i < s.waitRetries; i++ {
		value, err := s.readInner(apndp, a)
		if err != nil && swdErrorCode(err) == ErrorAckWait {
			continue
		}
		return value, err
	}
	return 0, errAckWait
}

// Write performs a register write, retrying on ACK WAIT up to the
// configured retry count. Any other error returns immediately.
func (s *SWD) Write(apndp APnDP, a uint8, data uint32) error {
	for i := 0; i < s.waitRetries; i++ {
		err := s.writeInner(apndp, a, data)
		if err != nil && swdErrorCode(err) == ErrorAckWait {
			continue
		}
		return err
	}
	return errAckWait
}

func (s *SWD) readInner(apndp APnDP, a uint8) (uint32, error) {
	req := makeRequest(apndp, rnwRead, a)
	s.spi.Tx8(req)
	s.spi.WaitBusy()
	s.spi.Drain()
	s.pins.SWDRx()

	// 1 clock for turnaround and 3 for ACK
	ack := s.spi.Rx4() >> 1
	if err := checkAck(ack); err != nil {
		// On non-OK ACK, the target has released the bus but is still
		// expecting a turnaround clock before the next request, and we
		// need to take over the bus.
		s.pins.SWDTx()
		s.idleLow()
		return 0, err
	}

	data, parity := s.spi.SWDReadDataPhase()

	// Back to driving SWDIO to ensure it doesn't float high
	s.pins.SWDTx()

	if uint32(parity&1) != uint32(bits.OnesCount32(data)&1) {
		return 0, errBadParity
	}
	return data, nil
}

func (s *SWD) writeInner(apndp APnDP, a uint8, data uint32) error {
	req := makeRequest(apndp, rnwWrite, a)
	parity := uint8(bits.OnesCount32(data) & 1)

	s.spi.Tx8(req)
	s.spi.WaitBusy()
	s.spi.Drain()
	s.pins.SWDRx()

	// 1 clock for turnaround, 3 for ACK and 1 for turnaround
	ack := (s.spi.Rx5() >> 1) & 0b111
	s.pins.SWDTx()
	if err := checkAck(ack); err != nil {
		return err
	}

	// The data phase also clocks trailing idle bits; many debug ports
	// require a couple of clock cycles after the parity bit to make the
	// write effective.
	s.spi.SWDWriteDataPhase(data, parity)
	s.spi.WaitBusy()

	return nil
}

// makeRequest builds the 8-bit SWD request: start bit, APnDP, RnW, the
// 2-bit register address, odd parity over those four bits, a zero stop
// bit and the park bit.
func makeRequest(apndp APnDP, rnw uint8, a uint8) uint8 {
	req := uint8(1) | uint8(apndp)<<1 | rnw<<2 | (a&0b11)<<3 | 1<<7
	parity := uint8(bits.OnesCount8(req) & 1)
	return req | parity<<5
}
