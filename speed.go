// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

// Prescaler divides the shift register base clock down to the bus clock.
type Prescaler uint32

const (
	PrescalerDiv2   Prescaler = 0b000
	PrescalerDiv4   Prescaler = 0b001
	PrescalerDiv8   Prescaler = 0b010
	PrescalerDiv16  Prescaler = 0b011
	PrescalerDiv32  Prescaler = 0b100
	PrescalerDiv64  Prescaler = 0b101
	PrescalerDiv128 Prescaler = 0b110
	PrescalerDiv256 Prescaler = 0b111
)

type prescalerMap struct {
	divisor   uint32
	prescaler Prescaler
}

var prescalerTable = [...]prescalerMap{
	{2, PrescalerDiv2},
	{4, PrescalerDiv4},
	{8, PrescalerDiv8},
	{16, PrescalerDiv16},
	{32, PrescalerDiv32},
	{64, PrescalerDiv64},
	{128, PrescalerDiv128},
	{256, PrescalerDiv256},
}

// matchPrescaler picks the smallest divisor whose resulting clock does not
// exceed maxFrequency. The requested frequency is never exceeded; when even
// the largest divisor is too fast (or the base clock is unknown) no
// prescaler is returned.
func matchPrescaler(baseClock uint32, maxFrequency uint32) (Prescaler, bool) {
	if baseClock == 0 || maxFrequency == 0 {
		return 0, false
	}

	for _, entry := range prescalerTable {
		if baseClock/entry.divisor <= maxFrequency {
			return entry.prescaler, true
		}
	}

	return 0, false
}
