// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"github.com/boljen/go-bitmap"
)

// DAP is the CMSIS-DAP command processor. It parses inbound command
// packets, drives the SWD or JTAG engine, and frames the response. All
// processing is synchronous within one ProcessCommand call; session
// configuration (mode, retry counts, match mask, SWO transport) persists
// across calls until changed by the host.
type DAP struct {
	swd   *SWD
	jtag  *JTAG
	uart  TraceUART
	pins  *Pins
	delay DelayTimer

	mode         DAPMode
	swoStreaming bool
	matchRetries int
	capabilities bitmap.Bitmap
}

func NewDAP(swd *SWD, jtag *JTAG, uart TraceUART, pins *Pins, delay DelayTimer) *DAP {
	caps := bitmap.New(8)
	caps.Set(capSWDSupported, true)
	caps.Set(capJTAGSupported, true)
	caps.Set(capSWOUartSupported, true)
	caps.Set(capSWOManchester, false)
	caps.Set(capAtomicCommands, false)
	caps.Set(capTestDomainTimer, false)
	caps.Set(capSWOStreamingSupported, true)

	return &DAP{
		swd:          swd,
		jtag:         jtag,
		uart:         uart,
		pins:         pins,
		delay:        delay,
		mode:         DAPModeUnset,
		matchRetries: 5,
		capabilities: caps,
	}
}

// Mode returns the currently connected electrical mode.
func (d *DAP) Mode() DAPMode {
	return d.mode
}

// ProcessCommand handles one CMSIS-DAP request from report, writing the
// response into rbuf. Returns the number of response bytes written; 0
// means no response is sent (empty input or TransferAbort).
func (d *DAP) ProcessCommand(report []byte, rbuf []byte, version DAPVersion) int {
	req, ok := newRequest(report)
	if !ok {
		return 0
	}

	resp := newResponseWriter(req.Command, rbuf)

	switch req.Command {
	case CmdInfo:
		d.processInfo(&req, resp, version)
	case CmdHostStatus:
		d.processHostStatus(&req, resp)
	case CmdConnect:
		d.processConnect(&req, resp)
	case CmdDisconnect:
		d.processDisconnect(&req, resp)
	case CmdWriteABORT:
		d.processWriteABORT(&req, resp)
	case CmdDelay:
		d.processDelay(&req, resp)
	case CmdResetTarget:
		d.processResetTarget(&req, resp)
	case CmdSWJPins:
		d.processSWJPins(&req, resp)
	case CmdSWJClock:
		d.processSWJClock(&req, resp)
	case CmdSWJSequence:
		d.processSWJSequence(&req, resp)
	case CmdSWDConfigure:
		d.processSWDConfigure(&req, resp)
	case CmdSWOTransport:
		d.processSWOTransport(&req, resp)
	case CmdSWOMode:
		d.processSWOMode(&req, resp)
	case CmdSWOBaudrate:
		d.processSWOBaudrate(&req, resp)
	case CmdSWOControl:
		d.processSWOControl(&req, resp)
	case CmdSWOStatus:
		d.processSWOStatus(&req, resp)
	case CmdSWOExtendedStatus:
		d.processSWOExtendedStatus(&req, resp)
	case CmdSWOData:
		d.processSWOData(&req, resp)
	case CmdJTAGSequence:
		d.processJTAGSequence(&req, resp)
	case CmdTransferConfigure:
		d.processTransferConfigure(&req, resp)
	case CmdTransfer:
		d.processTransfer(&req, resp)
	case CmdTransferBlock:
		d.processTransferBlock(&req, resp)
	case CmdTransferAbort:
		// All processing is synchronous, so there is never an in-flight
		// transfer to abort and no response is sent.
		return 0
	case CmdUnimplemented:
		// Header only; the echoed opcode tells the host we don't
		// implement this command.
	}

	return resp.BytesWritten()
}

// Suspend shuts both electrical engines down and forgets the connected
// mode. Called when the USB host suspends or deconfigures the device; the
// host must issue a fresh DAP_Connect afterwards.
func (d *DAP) Suspend() {
	d.mode = DAPModeUnset
	d.swd.Disable()
	d.jtag.Disable()
	d.uart.Stop()
	d.swoStreaming = false
}

// IsSWOStreaming returns true while trace capture is running and the host
// selected the streaming endpoint transport.
func (d *DAP) IsSWOStreaming() bool {
	return d.uart.IsActive() && d.swoStreaming
}

// ReadSWO drains buffered trace bytes, returning the number written.
func (d *DAP) ReadSWO(buf []byte) int {
	return d.uart.Read(buf)
}

func (d *DAP) processInfo(req *Request, resp *ResponseWriter, version DAPVersion) {
	switch req.NextU8() {
	// Zero-length strings for VendorID, ProductID and SerialNumber tell
	// the host to read them from the USB descriptors instead.
	case infoVendorID, infoProductID, infoSerialNumber:
		resp.WriteU8(0)
	case infoFirmwareVersion:
		resp.WriteU8(uint8(len(FirmwareVersion)))
		resp.WriteSlice([]byte(FirmwareVersion))
	// Zero-length strings for TargetVendor and TargetName indicate an
	// unknown target device.
	case infoTargetVendor, infoTargetName:
		resp.WriteU8(0)
	case infoCapabilities:
		resp.WriteU8(1)
		resp.WriteU8(d.capabilities.Data(false)[0])
	case infoSWOTraceBufferSize:
		resp.WriteU8(4)
		resp.WriteU32(uint32(d.uart.BufferLen()))
	case infoMaxPacketCount:
		resp.WriteU8(1)
		// Maximum of one packet at a time
		resp.WriteU8(1)
	case infoMaxPacketSize:
		resp.WriteU8(2)
		switch version {
		case DAPVersion1:
			resp.WriteU16(DAP1PacketSize)
		case DAPVersion2:
			resp.WriteU16(DAP2PacketSize)
		}
	default:
		resp.WriteU8(0)
	}
}

func (d *DAP) processHostStatus(req *Request, resp *ResponseWriter) {
	statusType := req.NextU8()
	statusStatus := req.NextU8()

	// Use HostStatus to set our LEDs when the host is connected to the
	// target.
	if statusType == hostStatusConnect {
		switch statusStatus {
		case 0:
			d.pins.LedRed.SetLow()
			d.pins.LedGreen.SetHigh()
		case 1:
			d.pins.LedRed.SetHigh()
			d.pins.LedGreen.SetLow()
		}
	}
	resp.WriteU8(0)
}

func (d *DAP) processConnect(req *Request, resp *ResponseWriter) {
	port := req.NextU8()
	switch port {
	case connectPortDefault, connectPortSWD:
		d.pins.SWDMode()
		d.swd.Enable()
		d.mode = DAPModeSWD
		logger.Debug("connected in SWD mode")
		resp.WriteU8(connectRespSWD)
	case connectPortJTAG:
		d.pins.JTAGMode()
		d.jtag.Enable()
		d.mode = DAPModeJTAG
		logger.Debug("connected in JTAG mode")
		resp.WriteU8(connectRespJTAG)
	default:
		logger.Debugf("rejected connect request for port %d", port)
		resp.WriteU8(connectRespFailed)
	}
}

func (d *DAP) processDisconnect(req *Request, resp *ResponseWriter) {
	d.pins.HighImpedanceMode()
	d.mode = DAPModeUnset
	d.swd.Disable()
	d.jtag.Disable()
	resp.WriteOK()
}

func (d *DAP) processWriteABORT(req *Request, resp *ResponseWriter) {
	if d.mode == DAPModeUnset {
		resp.WriteErr()
		return
	}

	_ = req.NextU8() // DAP index, ignored
	word := req.NextU32()

	// ABORT is debug-port register 0.
	if err := d.swd.WriteDP(0x00, word); err != nil {
		resp.WriteErr()
	} else {
		resp.WriteOK()
	}
}

func (d *DAP) processDelay(req *Request, resp *ResponseWriter) {
	delay := uint32(req.NextU16())
	d.delay.DelayMicros(delay)
	resp.WriteOK()
}

func (d *DAP) processResetTarget(req *Request, resp *ResponseWriter) {
	resp.WriteOK()
	// No device specific reset sequence is implemented
	resp.WriteU8(0)
}

func (d *DAP) processSWJPins(req *Request, resp *ResponseWriter) {
	output := req.NextU8()
	mask := req.NextU8()
	wait := req.NextU32()

	switch d.mode {
	case DAPModeSWD:
		// In SWD mode the SWDIO/SWCLK pins sit in shift-register
		// alternate mode between transfers, so swap them to plain
		// output to drive them manually. The next transfer command
		// returns them to shift-register control.
		if mask&(1<<swjPinSWDIO) != 0 {
			d.pins.SWDIOOut.SetModeOutput()
			d.pins.SWDIOOut.SetBool(output&(1<<swjPinSWDIO) != 0)
		}
		if mask&(1<<swjPinSWCLK) != 0 {
			d.pins.SWCLK.SetModeOutput()
			d.pins.SWCLK.SetBool(output&(1<<swjPinSWCLK) != 0)
		}
	case DAPModeJTAG:
		// In JTAG mode TMS/TCK/TDI are already GPIO outputs between
		// transfers. TDO is an input and is ignored, matching the
		// DAPLink implementation.
		if mask&(1<<swjPinSWDIO) != 0 {
			d.pins.TMS.SetBool(output&(1<<swjPinSWDIO) != 0)
		}
		if mask&(1<<swjPinSWCLK) != 0 {
			d.pins.TCK.SetBool(output&(1<<swjPinSWCLK) != 0)
		}
		if mask&(1<<swjPinTDI) != 0 {
			d.pins.TDI.SetBool(output&(1<<swjPinTDI) != 0)
		}
	case DAPModeUnset:
		// When not in any mode, ignore the JTAG/SWD pins entirely.
	}

	// nRESET is always settable: it is a dedicated open-drain output
	// regardless of mode.
	if mask&(1<<swjPinNRESET) != 0 {
		d.pins.NRESET.SetBool(output&(1<<swjPinNRESET) != 0)
	}

	d.delay.DelayMicros(wait)

	// Read and return pin state. nTRST is not wired and reads as 1.
	state := pinBit(d.pins.SWCLK, swjPinSWCLK) |
		pinBit(d.pins.SWDIOIn, swjPinSWDIO) |
		pinBit(d.pins.TDI, swjPinTDI) |
		pinBit(d.pins.TDO, swjPinTDO) |
		1<<swjPinNTRST |
		pinBit(d.pins.NRESET, swjPinNRESET)
	resp.WriteU8(state)
}

func (d *DAP) processSWJClock(req *Request, resp *ResponseWriter) {
	clock := req.NextU32()

	// Both engines track the requested rate even though only one is
	// active; JTAG always succeeds (bit-bang fallback), so the response
	// reflects the SWD result.
	d.jtag.SetClock(clock)
	if d.swd.SetClock(clock) {
		resp.WriteOK()
	} else {
		resp.WriteErr()
	}
}

func (d *DAP) processSWJSequence(req *Request, resp *ResponseWriter) {
	nbits := int(req.NextU8())
	if nbits == 0 {
		// CMSIS-DAP says 0 means 256 bits
		nbits = 256
	}

	payload := req.Rest()
	nbytes := bytesForBits(nbits)
	if nbytes > len(payload) {
		resp.WriteErr()
		return
	}
	seq := payload[:nbytes]

	switch d.mode {
	case DAPModeSWD:
		d.swd.TxSequence(seq)
	case DAPModeJTAG:
		d.jtag.TMSSequence(seq, nbits)
	default:
		resp.WriteErr()
		return
	}

	resp.WriteOK()
}

func (d *DAP) processSWDConfigure(req *Request, resp *ResponseWriter) {
	config := req.NextU8()
	clkPeriod := config & 0b011
	alwaysData := config&0b100 != 0

	// Only the default turnaround period without a forced data phase is
	// implemented.
	if clkPeriod == 0 && !alwaysData {
		resp.WriteOK()
	} else {
		resp.WriteErr()
	}
}

func (d *DAP) processSWOTransport(req *Request, resp *ResponseWriter) {
	switch req.NextU8() {
	case swoTransportNone, swoTransportDAPCommand:
		d.swoStreaming = false
		resp.WriteOK()
	case swoTransportUSBEndpoint:
		d.swoStreaming = true
		resp.WriteOK()
	default:
		resp.WriteErr()
	}
}

func (d *DAP) processSWOMode(req *Request, resp *ResponseWriter) {
	switch req.NextU8() {
	case swoModeOff, swoModeUART:
		resp.WriteOK()
	default:
		resp.WriteErr()
	}
}

func (d *DAP) processSWOBaudrate(req *Request, resp *ResponseWriter) {
	target := req.NextU32()
	actual := d.uart.SetBaud(target)
	logger.Debugf("SWO baudrate requested %d, set %d", target, actual)
	resp.WriteU32(actual)
}

func (d *DAP) processSWOControl(req *Request, resp *ResponseWriter) {
	switch req.NextU8() {
	case swoControlStop:
		d.uart.Stop()
		resp.WriteOK()
	case swoControlStart:
		d.uart.Start()
		resp.WriteOK()
	default:
		resp.WriteErr()
	}
}

func (d *DAP) processSWOStatus(req *Request, resp *ResponseWriter) {
	// Trace status:
	// Bit 0: trace capture active
	// Bit 6: trace stream error (always written as 0)
	// Bit 7: trace buffer overflow (always written as 0)
	resp.WriteU8(boolByte(d.uart.IsActive()))
	// Trace count: remaining bytes in buffer
	resp.WriteU32(uint32(d.uart.BytesAvailable()))
}

func (d *DAP) processSWOExtendedStatus(req *Request, resp *ResponseWriter) {
	resp.WriteU8(boolByte(d.uart.IsActive()))
	resp.WriteU32(uint32(d.uart.BytesAvailable()))
	// Index: sequence number of next trace. Always written as 0.
	resp.WriteU32(0)
	// TD_TimeStamp: test domain timer value for trace sequence
	resp.WriteU32(0)
}

func (d *DAP) processSWOData(req *Request, resp *ResponseWriter) {
	resp.WriteU8(boolByte(d.uart.IsActive()))

	// Reserve the 2-byte length field and backfill it once we know how
	// much trace data was actually available.
	resp.Skip(2)

	buf := resp.Remaining()
	n := int(req.NextU16())
	if len(buf) > n {
		buf = buf[:n]
	}

	length := d.uart.Read(buf)
	resp.Skip(length)

	resp.WriteU16At(2, uint16(length))
}

func (d *DAP) processJTAGSequence(req *Request, resp *ResponseWriter) {
	if d.mode != DAPModeJTAG {
		resp.WriteErr()
		return
	}

	// The JTAG engine cannot fail mid-sequence: malformed input yields
	// 0 captured bytes, so acknowledge success up front.
	resp.WriteOK()

	size := d.jtag.Sequences(req.Rest(), resp.Remaining())
	resp.Skip(size)
}

func (d *DAP) processTransferConfigure(req *Request, resp *ResponseWriter) {
	// Variable idle cycles are not supported.
	_ = req.NextU8()

	d.swd.SetWaitRetries(int(req.NextU16()))
	d.matchRetries = int(req.NextU16())

	resp.WriteOK()
}

func (d *DAP) processTransfer(req *Request, resp *ResponseWriter) {
	_ = req.NextU8() // DAP index, ignored
	ntransfers := int(req.NextU8())
	matchMask := uint32(0xFFFFFFFF)

	// Ensure the SWD pins are back under shift-register control in case
	// SWJ_Pins forced them to plain outputs.
	d.pins.SWDClkSPI()
	d.pins.SWDTx()

	// Reserve two bytes for the transfer count and status, updated as we
	// process.
	resp.WriteU16(0)

	for idx := 0; idx < ntransfers; idx++ {
		// Record how many transfers we executed in the response.
		resp.WriteU8At(1, uint8(idx+1))

		treq := req.NextU8()
		apndp := apndpFromBool(treq&transferAPnDP != 0)
		rnw := treq&transferRnW != 0
		a := (treq & transferAddrMask) >> 2
		vmatch := treq&transferValueMatch != 0
		mmask := treq&transferMatchMask != 0

		if rnw {
			var readValue uint32
			var ok bool

			if apndp == PortAP {
				// Reads from the AP are posted: issue the read, then
				// read RDBUFF for the data. This costs an extra
				// transfer per AP read but avoids keeping a posted
				// read open across commands.
				if _, ok = d.checkedRead(PortAP, a, resp, 2); !ok {
					break
				}
				if readValue, ok = d.checkedRead(PortDP, dpRegRDBUFF, resp, 2); !ok {
					break
				}
			} else {
				// Reads from the DP are not posted.
				if readValue, ok = d.checkedRead(PortDP, a, resp, 2); !ok {
					break
				}
			}

			if vmatch {
				// Re-reading the same register, so posting doesn't
				// matter and the returned value is used directly.
				target := req.NextU32()
				matchTries := 0
				for readValue&matchMask != target {
					matchTries++
					if matchTries > d.matchRetries {
						break
					}

					var v uint32
					if v, ok = d.checkedRead(apndp, a, resp, 2); !ok {
						break
					}
					readValue = v
				}

				// If the correct value never appeared, set the value
				// mismatch flag and quit early.
				if readValue&matchMask != target {
					resp.WriteU8At(1, resp.ReadU8At(1)|transferMismatch)
					break
				}
			} else {
				resp.WriteU32(readValue)
			}
		} else {
			// Writes with the match-mask flag only update the mask and
			// consume no register write.
			if mmask {
				matchMask = req.NextU32()
				continue
			}

			writeValue := req.NextU32()
			if !d.checkedWrite(apndp, a, writeValue, resp, 2) {
				break
			}
		}
	}
}

func (d *DAP) processTransferBlock(req *Request, resp *ResponseWriter) {
	_ = req.NextU8() // DAP index, ignored
	ntransfers := int(req.NextU16())
	treq := req.NextU8()
	apndp := apndpFromBool(treq&transferAPnDP != 0)
	rnw := treq&transferRnW != 0
	a := (treq & transferAddrMask) >> 2

	// Ensure the SWD pins are back under shift-register control in case
	// SWJ_Pins forced them to plain outputs.
	d.pins.SWDClkSPI()
	d.pins.SWDTx()

	// Reserve three bytes for the 16-bit transfer count and status.
	resp.WriteU16(0)
	resp.WriteU8(0)

	// Track how many transfers executed so the host knows where an
	// error happened.
	transfers := 0

	// When reading an AP register, post the first read early; the loop
	// then reads the AP register N-1 times (each returning the
	// previously posted result) and drains the final result from
	// RDBUFF, pipelining the whole block with only one extra access.
	if rnw && apndp == PortAP {
		if _, ok := d.checkedRead(PortAP, a, resp, 3); !ok {
			resp.WriteU16At(1, 1)
			return
		}
	}

	for idx := 0; idx < ntransfers; idx++ {
		transfers = idx
		if rnw {
			var readValue uint32
			var ok bool

			if apndp == PortAP {
				if idx < ntransfers-1 {
					readValue, ok = d.checkedRead(PortAP, a, resp, 3)
				} else {
					readValue, ok = d.checkedRead(PortDP, dpRegRDBUFF, resp, 3)
				}
			} else {
				readValue, ok = d.checkedRead(PortDP, a, resp, 3)
			}
			if !ok {
				break
			}

			resp.WriteU32(readValue)
		} else {
			writeValue := req.NextU32()
			if !d.checkedWrite(apndp, a, writeValue, resp, 3) {
				break
			}
		}
	}

	resp.WriteU16At(1, uint16(transfers+1))
}

// checkedRead performs an SWD register read and records the per-transfer
// ACK status at byte statusAt of the response. Returns false when the
// batch must stop.
func (d *DAP) checkedRead(apndp APnDP, a uint8, resp *ResponseWriter, statusAt int) (uint32, bool) {
	value, err := d.swd.Read(apndp, a)
	return value, checkTransferResult(err, resp, statusAt)
}

// checkedWrite performs an SWD register write and records the per-transfer
// ACK status at byte statusAt of the response.
func (d *DAP) checkedWrite(apndp APnDP, a uint8, value uint32, resp *ResponseWriter, statusAt int) bool {
	err := d.swd.Write(apndp, a, value)
	return checkTransferResult(err, resp, statusAt)
}

// checkTransferResult maps an SWD result onto the transfer status byte:
// ok→1, wait→2, fault→4, anything else→(1<<3)|7.
func checkTransferResult(err error, resp *ResponseWriter, statusAt int) bool {
	if err == nil {
		resp.WriteU8At(statusAt, transferAckOk)
		return true
	}

	switch swdErrorCode(err) {
	case ErrorAckWait:
		resp.WriteU8At(statusAt, transferAckWait)
	case ErrorAckFault:
		resp.WriteU8At(statusAt, transferAckFault)
	default:
		resp.WriteU8At(statusAt, transferError)
	}
	return false
}

func apndpFromBool(ap bool) APnDP {
	if ap {
		return PortAP
	}
	return PortDP
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func pinBit(p Pin, pos uint) uint8 {
	if p.IsHigh() {
		return 1 << pos
	}
	return 0
}
