// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

// StopBits per the CDC-ACM line coding encoding.
type StopBits uint8

const (
	StopBitsOne StopBits = iota
	StopBitsOnePointFive
	StopBitsTwo
)

// Parity per the CDC-ACM line coding encoding.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

// LineCoding is the host-reported serial configuration from the CDC-ACM
// interface.
type LineCoding struct {
	StopBits StopBits
	DataBits uint8
	Parity   Parity
	DataRate uint32
}

// VcpConfig is the UART configuration applied to the serial passthrough.
// It is compared against the host line coding each poll cycle; a change
// triggers stop, reconfigure, start.
type VcpConfig struct {
	StopBits StopBits
	DataBits uint8
	Parity   Parity
	DataRate uint32
}

// DefaultVcpConfig matches the reset state of the passthrough UART.
func DefaultVcpConfig() VcpConfig {
	return VcpConfig{
		StopBits: StopBitsOne,
		DataBits: 8,
		Parity:   ParityNone,
		DataRate: 8000,
	}
}

func vcpConfigFromLineCoding(coding LineCoding) VcpConfig {
	return VcpConfig{
		StopBits: coding.StopBits,
		DataBits: coding.DataBits,
		Parity:   coding.Parity,
		DataRate: coding.DataRate,
	}
}
