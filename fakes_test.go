// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"math/bits"
)

type pinMode int

const (
	pinModeInput pinMode = iota
	pinModeOutput
	pinModeAlternate
)

type fakePin struct {
	high bool
	mode pinMode
}

func (p *fakePin) SetHigh()          { p.high = true }
func (p *fakePin) SetLow()           { p.high = false }
func (p *fakePin) SetBool(high bool) { p.high = high }
func (p *fakePin) IsHigh() bool      { return p.high }
func (p *fakePin) SetModeInput()     { p.mode = pinModeInput }
func (p *fakePin) SetModeOutput()    { p.mode = pinModeOutput }
func (p *fakePin) SetModeAlternate() { p.mode = pinModeAlternate }

// fakePinSet owns one fakePin per probe line and assembles them into a
// Pins value for the code under test.
type fakePinSet struct {
	swclk, swdioOut, swdioIn          fakePin
	tms, tck, tdi, tdo                fakePin
	nreset                            fakePin
	ledRed, ledGreen, ledBlue         fakePin
	tvccEn, t5vEn                     fakePin
}

func (s *fakePinSet) pins() *Pins {
	return &Pins{
		SWCLK:    &s.swclk,
		SWDIOOut: &s.swdioOut,
		SWDIOIn:  &s.swdioIn,
		TMS:      &s.tms,
		TCK:      &s.tck,
		TDI:      &s.tdi,
		TDO:      &s.tdo,
		NRESET:   &s.nreset,
		LedRed:   &s.ledRed,
		LedGreen: &s.ledGreen,
		LedBlue:  &s.ledBlue,
		TVccEn:   &s.tvccEn,
		T5vEn:    &s.t5vEn,
	}
}

// swdResult scripts the target's answer to one SWD transaction.
type swdResult struct {
	ack        uint8
	data       uint32
	flipParity bool
}

// fakeShift is a scripted ShiftRegister. For SWD it plays back one
// swdResult per transaction (defaulting to ACK OK, data 0 when the script
// runs out) and records every transmitted request and written data word.
// For JTAG it echoes TDI back as TDO and counts exchanges so tests can
// observe batching.
type fakeShift struct {
	base         uint32
	prescaler    Prescaler
	prescalerSet bool

	script []swdResult
	cur    swdResult

	ackReads     int
	requests     []uint8
	writtenWords []uint32

	exchangeCalls int
	exchangeSizes []int

	setupSWDCalls  int
	setupJTAGCalls int
	disableCalls   int
}

func newFakeShift() *fakeShift {
	return &fakeShift{base: 48000000}
}

func (f *fakeShift) next() swdResult {
	if len(f.script) == 0 {
		return swdResult{ack: ackOK}
	}
	r := f.script[0]
	f.script = f.script[1:]
	return r
}

func (f *fakeShift) SetupSWD()  { f.setupSWDCalls++ }
func (f *fakeShift) SetupJTAG() { f.setupJTAGCalls++ }
func (f *fakeShift) Disable()   { f.disableCalls++ }

func (f *fakeShift) BaseClock() uint32 { return f.base }
func (f *fakeShift) SetPrescaler(p Prescaler) {
	f.prescaler = p
	f.prescalerSet = true
}

func (f *fakeShift) Tx4(data uint8)   {}
func (f *fakeShift) Tx8(data uint8)   { f.requests = append(f.requests, data) }
func (f *fakeShift) Tx16(data uint16) {}

func (f *fakeShift) Rx4() uint8 {
	f.ackReads++
	f.cur = f.next()
	return f.cur.ack << 1
}

func (f *fakeShift) Rx5() uint8 {
	f.ackReads++
	f.cur = f.next()
	return f.cur.ack << 1
}

func (f *fakeShift) SWDWriteDataPhase(data uint32, parity uint8) {
	f.writtenWords = append(f.writtenWords, data)
}

func (f *fakeShift) SWDReadDataPhase() (uint32, uint8) {
	parity := uint8(bits.OnesCount32(f.cur.data) & 1)
	if f.cur.flipParity {
		parity ^= 1
	}
	return f.cur.data, parity
}

func (f *fakeShift) JTAGExchange(tx []byte, rx []byte) {
	f.exchangeCalls++
	f.exchangeSizes = append(f.exchangeSizes, len(tx))
	copy(rx, tx)
}

func (f *fakeShift) WaitBusy() {}
func (f *fakeShift) Drain()    {}

// fakeDelay satisfies DelayTimer without waiting. Current advances on
// every call so from-last delays always make progress.
type fakeDelay struct {
	now         uint32
	microsSlept uint32
}

func (d *fakeDelay) DelayMicros(us uint32) { d.microsSlept += us }
func (d *fakeDelay) DelayTicks(n uint32)   {}
func (d *fakeDelay) DelayTicksFromLast(ticks uint32, last uint32) uint32 {
	return last + ticks
}
func (d *fakeDelay) Current() uint32 {
	d.now++
	return d.now
}
func (d *fakeDelay) CalcPeriodTicks(frequency uint32) uint32 {
	if frequency == 0 {
		return 0
	}
	return 48000000 / frequency
}

// fakeTraceUART backs the SWO capture interface with a DMARing that tests
// feed directly.
type fakeTraceUART struct {
	ring   *DMARing
	active bool
	baud   uint32
}

func newFakeTraceUART(size int) *fakeTraceUART {
	return &fakeTraceUART{ring: NewDMARing(size)}
}

func (u *fakeTraceUART) Start() {
	u.ring.Reset()
	u.active = true
}
func (u *fakeTraceUART) Stop()          { u.active = false }
func (u *fakeTraceUART) IsActive() bool { return u.active }
func (u *fakeTraceUART) BufferLen() int { return u.ring.Len() }
func (u *fakeTraceUART) SetBaud(baud uint32) uint32 {
	u.baud = baud
	return baud
}
func (u *fakeTraceUART) BytesAvailable() int   { return u.ring.BytesAvailable() }
func (u *fakeTraceUART) Read(rx []byte) int    { return u.ring.Read(rx) }
func (u *fakeTraceUART) produce(data []byte)   { u.ring.Produce(data) }

// fakeSerial is the passthrough UART seen by App tests.
type fakeSerial struct {
	active  bool
	config  VcpConfig
	rx      []byte
	written []byte

	startCalls int
	stopCalls  int
}

func (s *fakeSerial) Start()                 { s.active = true; s.startCalls++ }
func (s *fakeSerial) Stop()                  { s.active = false; s.stopCalls++ }
func (s *fakeSerial) SetConfig(c VcpConfig)  { s.config = c }
func (s *fakeSerial) Write(tx []byte)        { s.written = append(s.written, tx...) }
func (s *fakeSerial) IsTxIdle() bool         { return true }
func (s *fakeSerial) BytesAvailable() int    { return len(s.rx) }

func (s *fakeSerial) Read(rx []byte) int {
	n := copy(rx, s.rx)
	s.rx = s.rx[n:]
	return n
}

// fakeUSB queues host requests and records which reply path each response
// took.
type fakeUSB struct {
	pending []HostRequest

	dap1Replies [][]byte
	dap2Replies [][]byte
	swoStreamed [][]byte
	serialBack  [][]byte

	swoBusy    bool
	lineCoding LineCoding
}

func newFakeUSB() *fakeUSB {
	return &fakeUSB{
		lineCoding: LineCoding{
			StopBits: StopBitsOne,
			DataBits: 8,
			Parity:   ParityNone,
			DataRate: 8000,
		},
	}
}

func (u *fakeUSB) push(kind HostRequestKind, data []byte) {
	u.pending = append(u.pending, HostRequest{Kind: kind, Data: data})
}

func (u *fakeUSB) Interrupt(vcpTxIdle bool) (HostRequest, bool) {
	if len(u.pending) == 0 {
		return HostRequest{}, false
	}
	req := u.pending[0]
	u.pending = u.pending[1:]
	return req, true
}

func (u *fakeUSB) DAP1Reply(data []byte) {
	u.dap1Replies = append(u.dap1Replies, append([]byte(nil), data...))
}

func (u *fakeUSB) DAP2Reply(data []byte) {
	u.dap2Replies = append(u.dap2Replies, append([]byte(nil), data...))
}

func (u *fakeUSB) DAP2SWOIsBusy() bool { return u.swoBusy }

func (u *fakeUSB) DAP2StreamSWO(data []byte) {
	u.swoStreamed = append(u.swoStreamed, append([]byte(nil), data...))
}

func (u *fakeUSB) SerialReturn(data []byte) {
	u.serialBack = append(u.serialBack, append([]byte(nil), data...))
}

func (u *fakeUSB) SerialLineCoding() LineCoding { return u.lineCoding }
