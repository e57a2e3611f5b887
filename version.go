// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

// FirmwareVersion is reported by DAP_Info; hosts display it alongside the
// USB descriptor strings.
const FirmwareVersion = "godap-1.2.0"
