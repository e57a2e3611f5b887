// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"fmt"
)

// SWDErrorCode classifies an SWD transaction failure.
type SWDErrorCode int

const (
	ErrorBadParity SWDErrorCode = iota
	ErrorAckWait
	ErrorAckFault
	ErrorAckProtocol
	ErrorAckUnknown
)

// SWDError is returned by the SWD engine for protocol-level failures.
// It is surfaced to the host as a status byte in Transfer responses and
// is never fatal.
type SWDError struct {
	errorString string
	Code        SWDErrorCode
	Ack         uint8
}

func (e *SWDError) Error() string {
	return e.errorString
}

func newSWDError(msg string, code SWDErrorCode) error {
	return &SWDError{errorString: msg, Code: code}
}

var (
	errBadParity   = newSWDError("SWD read data parity mismatch", ErrorBadParity)
	errAckWait     = newSWDError("SWD ACK WAIT", ErrorAckWait)
	errAckFault    = newSWDError("SWD ACK FAULT", ErrorAckFault)
	errAckProtocol = newSWDError("SWD ACK protocol error", ErrorAckProtocol)
)

// SWD ACK values, 3 bits transmitted by the target LSB first.
const (
	ackOK       uint8 = 0b001
	ackWAIT     uint8 = 0b010
	ackFAULT    uint8 = 0b100
	ackPROTOCOL uint8 = 0b111
)

// checkAck converts a raw 3-bit ACK into nil or a typed SWDError.
func checkAck(ack uint8) error {
	switch ack {
	case ackOK:
		return nil
	case ackWAIT:
		return errAckWait
	case ackFAULT:
		return errAckFault
	case ackPROTOCOL:
		return errAckProtocol
	default:
		return &SWDError{
			errorString: fmt.Sprintf("unknown SWD ACK value 0b%03b", ack),
			Code:        ErrorAckUnknown,
			Ack:         ack,
		}
	}
}

// swdErrorCode extracts the SWDErrorCode from an error returned by the
// SWD engine. Non-SWD errors map to ErrorAckUnknown.
func swdErrorCode(err error) SWDErrorCode {
	if swdErr, ok := err.(*SWDError); ok {
		return swdErr.Code
	}
	return ErrorAckUnknown
}
