// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

// Packet sizes for the two CMSIS-DAP protocol transports. DAPv1 runs over
// a 64 byte HID interrupt endpoint, DAPv2 over bulk endpoints of up to
// 512 bytes.
const (
	DAP1PacketSize = 64
	DAP2PacketSize = 512
	VCPPacketSize  = 512
)

// DAPVersion selects which protocol transport a request arrived on.
type DAPVersion int

const (
	DAPVersion1 DAPVersion = 1
	DAPVersion2 DAPVersion = 2
)

// Command is the one-byte CMSIS-DAP opcode at the start of each request.
type Command uint8

const (
	// General commands
	CmdInfo        Command = 0x00
	CmdHostStatus  Command = 0x01
	CmdConnect     Command = 0x02
	CmdDisconnect  Command = 0x03
	CmdWriteABORT  Command = 0x08
	CmdDelay       Command = 0x09
	CmdResetTarget Command = 0x0A

	// Common SWD/JTAG commands
	CmdSWJPins     Command = 0x10
	CmdSWJClock    Command = 0x11
	CmdSWJSequence Command = 0x12

	// SWD commands
	CmdSWDConfigure Command = 0x13

	// SWO commands
	CmdSWOTransport      Command = 0x17
	CmdSWOMode           Command = 0x18
	CmdSWOBaudrate       Command = 0x19
	CmdSWOControl        Command = 0x1A
	CmdSWOStatus         Command = 0x1B
	CmdSWOExtendedStatus Command = 0x1E
	CmdSWOData           Command = 0x1C

	// JTAG commands
	CmdJTAGSequence Command = 0x14

	// Transfer commands
	CmdTransferConfigure Command = 0x04
	CmdTransfer          Command = 0x05
	CmdTransferBlock     Command = 0x06
	CmdTransferAbort     Command = 0x07

	// Catch-all for opcodes we do not implement
	CmdUnimplemented Command = 0xFF
)

// commandFromByte maps an opcode byte onto a known Command, falling back
// to CmdUnimplemented on unknown discriminants.
func commandFromByte(b uint8) Command {
	switch Command(b) {
	case CmdInfo, CmdHostStatus, CmdConnect, CmdDisconnect, CmdWriteABORT,
		CmdDelay, CmdResetTarget, CmdSWJPins, CmdSWJClock, CmdSWJSequence,
		CmdSWDConfigure, CmdSWOTransport, CmdSWOMode, CmdSWOBaudrate,
		CmdSWOControl, CmdSWOStatus, CmdSWOExtendedStatus, CmdSWOData,
		CmdJTAGSequence, CmdTransferConfigure, CmdTransfer,
		CmdTransferBlock, CmdTransferAbort:
		return Command(b)
	default:
		return CmdUnimplemented
	}
}

// Response status bytes
const (
	dapOk    uint8 = 0x00
	dapError uint8 = 0xFF
)

// DAP_Info sub-identifiers
const (
	infoVendorID           uint8 = 0x01
	infoProductID          uint8 = 0x02
	infoSerialNumber       uint8 = 0x03
	infoFirmwareVersion    uint8 = 0x04
	infoTargetVendor       uint8 = 0x05
	infoTargetName         uint8 = 0x06
	infoCapabilities       uint8 = 0xF0
	infoTestDomainTimer    uint8 = 0xF1
	infoSWOTraceBufferSize uint8 = 0xFD
	infoMaxPacketCount     uint8 = 0xFE
	infoMaxPacketSize      uint8 = 0xFF
)

// Capability bit positions reported for DAP_Info Capabilities
const (
	capSWDSupported          = 0
	capJTAGSupported         = 1
	capSWOUartSupported      = 2
	capSWOManchester         = 3
	capAtomicCommands        = 4
	capTestDomainTimer       = 5
	capSWOStreamingSupported = 6
)

// DAP_HostStatus status types
const (
	hostStatusConnect uint8 = 0
	hostStatusRunning uint8 = 1
)

// DAP_Connect port selection and response codes
const (
	connectPortDefault uint8 = 0
	connectPortSWD     uint8 = 1
	connectPortJTAG    uint8 = 2

	connectRespFailed uint8 = 0
	connectRespSWD    uint8 = 1
	connectRespJTAG   uint8 = 2
)

// DAP_SWO_Transport selections
const (
	swoTransportNone        uint8 = 0
	swoTransportDAPCommand  uint8 = 1
	swoTransportUSBEndpoint uint8 = 2
)

// DAP_SWO_Mode selections
const (
	swoModeOff  uint8 = 0
	swoModeUART uint8 = 1
)

// DAP_SWO_Control selections
const (
	swoControlStop  uint8 = 0
	swoControlStart uint8 = 1
)

// Bit positions within the SWJ_Pins output/input bytes
const (
	swjPinSWCLK  = 0
	swjPinSWDIO  = 1
	swjPinTDI    = 2
	swjPinTDO    = 3
	swjPinNTRST  = 5
	swjPinNRESET = 7
)

// Transfer request byte bits (DAP_Transfer / DAP_TransferBlock)
const (
	transferAPnDP      uint8 = 1 << 0
	transferRnW        uint8 = 1 << 1
	transferAddrMask   uint8 = 3 << 2
	transferValueMatch uint8 = 1 << 4
	transferMatchMask  uint8 = 1 << 5
	transferTimestamp  uint8 = 1 << 7
)

// Per-transfer response status values written into the Transfer and
// TransferBlock status byte.
const (
	transferAckOk    uint8 = 1
	transferAckWait  uint8 = 2
	transferAckFault uint8 = 4
	transferError    uint8 = (1 << 3) | 7
	transferMismatch uint8 = 1 << 4
)

// RDBUFF is debug-port register 3; reading it retrieves the result of a
// posted access-port read.
const dpRegRDBUFF uint8 = 3

// DAPMode selects which electrical engine is live.
type DAPMode int

const (
	DAPModeUnset DAPMode = iota
	DAPModeSWD
	DAPModeJTAG
)

func (m DAPMode) String() string {
	switch m {
	case DAPModeSWD:
		return "SWD"
	case DAPModeJTAG:
		return "JTAG"
	default:
		return "unset"
	}
}
