// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

// Pin is one GPIO line as seen by the protocol engines. Implementations
// wrap memory-mapped pin registers (or a simulation) behind this safe
// interface; the engines never touch raw registers.
type Pin interface {
	SetHigh()
	SetLow()
	SetBool(high bool)
	IsHigh() bool

	// Mode switching between plain input, plain output and the
	// peripheral alternate function (SPI shift register).
	SetModeInput()
	SetModeOutput()
	SetModeAlternate()
}

// Pins groups the probe's target-facing lines. SWCLK/SWDIOOut double as
// the SPI1 clock/MOSI pins in SWD mode; TCK/TDI/TDO double as the SPI2
// pins in JTAG mode. SWDIOIn is the SPI1 MISO pin, which is wired to the
// same physical SWDIO line and used to sample it while the target drives
// the bus.
type Pins struct {
	SWCLK    Pin // spi1 clk
	SWDIOOut Pin // spi1 mosi
	SWDIOIn  Pin // spi1 miso
	TMS      Pin // shared with SWDIOOut on hs-probe style wiring
	TCK      Pin // spi2 clk
	TDI      Pin // spi2 mosi
	TDO      Pin // spi2 miso
	NRESET   Pin // open-drain output, always driveable

	LedRed   Pin
	LedGreen Pin
	LedBlue  Pin
	TVccEn   Pin
	T5vEn    Pin
}

// HighImpedanceMode releases every target-facing line. Used when
// disconnected or suspended so the probe never drives an unattended bus.
func (p *Pins) HighImpedanceMode() {
	p.NRESET.SetHigh()
	p.NRESET.SetModeOutput()
	p.SWCLK.SetModeInput()
	p.SWDIOOut.SetModeInput()
	p.SWDIOIn.SetModeInput()
	p.TCK.SetModeInput()
	p.TDI.SetModeInput()
	p.TDO.SetModeInput()
}

// SWDMode hands SWCLK/SWDIO to the SWD shift register and floats the
// JTAG-only lines.
func (p *Pins) SWDMode() {
	p.NRESET.SetModeOutput()
	p.TCK.SetModeInput()
	p.TDI.SetModeInput()
	p.TDO.SetModeInput()
	p.SWCLK.SetModeAlternate()
	p.SWDIOIn.SetModeAlternate()
	p.SWDIOOut.SetModeAlternate()
}

// JTAGMode puts TMS/TCK/TDI into GPIO output and TDO into input; the JTAG
// engine flips TCK/TDI/TDO to alternate mode itself around batched runs.
func (p *Pins) JTAGMode() {
	p.NRESET.SetModeOutput()
	p.SWCLK.SetModeInput()
	p.SWDIOIn.SetModeInput()
	p.TMS.SetModeOutput()
	p.TCK.SetModeOutput()
	p.TDI.SetModeOutput()
	p.TDO.SetModeInput()
}

// SWDRx releases SWDIO so the target can drive the bus.
func (p *Pins) SWDRx() {
	p.SWDIOOut.SetModeInput()
}

// SWDTx connects SWDIO to the shift register, probe drives the bus.
func (p *Pins) SWDTx() {
	p.SWDIOOut.SetModeAlternate()
}

// SWDTxDirect connects SWDIO as a plain GPIO output for manual driving.
func (p *Pins) SWDTxDirect() {
	p.SWDIOOut.SetModeOutput()
}

// SWDClkDirect swaps SWCLK to a plain output for manual clocking.
func (p *Pins) SWDClkDirect() {
	p.SWCLK.SetModeOutput()
}

// SWDClkSPI returns SWCLK to shift-register control.
func (p *Pins) SWDClkSPI() {
	p.SWCLK.SetModeAlternate()
}

// ShiftRegister abstracts the SPI peripheral the electrical engines shift
// bits through. Bit order is LSB first throughout. All operations are
// synchronous: they return once the bits have been clocked, bounded by the
// fixed transfer sizes.
type ShiftRegister interface {
	// Peripheral setup for the two electrical modes.
	SetupSWD()
	SetupJTAG()
	Disable()

	// Clocking control.
	BaseClock() uint32
	SetPrescaler(p Prescaler)

	// Small fixed-width transmits and receives.
	Tx4(data uint8)
	Tx8(data uint8)
	Tx16(data uint16)
	Rx4() uint8
	Rx5() uint8

	// SWDWriteDataPhase clocks 32 data bits, the parity bit and the
	// trailing idle bits of an SWD write transaction.
	SWDWriteDataPhase(data uint32, parity uint8)

	// SWDReadDataPhase clocks out the 32 data bits and parity bit of an
	// SWD read, handling the trailing turnaround so the probe ends the
	// phase driving the bus low.
	SWDReadDataPhase() (data uint32, parity uint8)

	// JTAGExchange shifts len(tx) bytes through TDI while capturing TDO
	// into rx (DMA batched on hardware). rx must be at least as long
	// as tx.
	JTAGExchange(tx []byte, rx []byte)

	// WaitBusy blocks until the current shift completes; Drain empties
	// the receive FIFO.
	WaitBusy()
	Drain()
}

// DelayTimer provides cycle-counted busy-wait timing for bit-banged
// transfers and host-requested delays.
type DelayTimer interface {
	// DelayMicros busy-waits approximately us microseconds.
	DelayMicros(us uint32)

	// DelayTicks busy-waits n timer ticks.
	DelayTicks(n uint32)

	// DelayTicksFromLast waits until ticks have elapsed since the
	// instant last, returning the new reference instant. Using the
	// previous edge as the reference keeps the bit-bang clock period
	// stable regardless of per-bit software overhead.
	DelayTicksFromLast(ticks uint32, last uint32) uint32

	// Current returns the current timer count.
	Current() uint32

	// CalcPeriodTicks converts a frequency to a full period in ticks.
	CalcPeriodTicks(frequency uint32) uint32
}

// TraceUART is the SWO capture UART: reception runs via DMA into a ring
// buffer which Read drains. Overflow is not detected; trace capture is
// best effort.
type TraceUART interface {
	Start()
	Stop()
	IsActive() bool
	BufferLen() int
	SetBaud(baud uint32) uint32
	BytesAvailable() int
	Read(rx []byte) int
}

// SerialUART is the virtual-COM-port UART for target serial passthrough.
type SerialUART interface {
	Start()
	Stop()
	SetConfig(config VcpConfig)
	Read(rx []byte) int
	Write(tx []byte)
	IsTxIdle() bool
	BytesAvailable() int
}

// HostRequestKind tags one inbound USB event.
type HostRequestKind int

const (
	// RequestSuspend signals the device left the Configured USB state.
	RequestSuspend HostRequestKind = iota
	// RequestDAP1 carries a CMSIS-DAP v1 report (64 byte HID).
	RequestDAP1
	// RequestDAP2 carries a CMSIS-DAP v2 packet (512 byte bulk).
	RequestDAP2
	// RequestVCP carries serial passthrough data for the target.
	RequestVCP
)

// HostRequest is one event returned from polling the USB transport.
type HostRequest struct {
	Kind HostRequestKind
	Data []byte
}

// USBPort is the USB device stack as seen by the event loop. All calls
// are non-blocking.
type USBPort interface {
	// Interrupt drains pending USB events, returning at most one new
	// request. vcpTxIdle tells the stack whether serial passthrough
	// data can currently be accepted.
	Interrupt(vcpTxIdle bool) (HostRequest, bool)

	// Reply paths. The v1 and v2 paths are strictly separate: v1
	// responses go to the HID interrupt endpoint, v2 responses to the
	// bulk endpoint.
	DAP1Reply(data []byte)
	DAP2Reply(data []byte)

	// SWO streaming over the dedicated DAPv2 trace endpoint.
	DAP2SWOIsBusy() bool
	DAP2StreamSWO(data []byte)

	// CDC-ACM serial passthrough.
	SerialReturn(data []byte)
	SerialLineCoding() LineCoding
}
