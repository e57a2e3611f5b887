// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Command daptest is a host-side smoke test for a running probe. It opens
// the CMSIS-DAP v2 bulk interface, queries the firmware, connects in SWD
// mode and reads the debug port ID register.
package main

import (
	"encoding/binary"
	"flag"
	"time"

	"github.com/bbnote/godap"
	"github.com/google/gousb"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	vid = flag.Uint("vid", 0x1209, "USB vendor id of the probe")
	pid = flag.Uint("pid", 0xda42, "USB product id of the probe")
)

// probe wraps the DAPv2 bulk endpoint pair.
type probe struct {
	out *gousb.OutEndpoint
	in  *gousb.InEndpoint
}

// command sends one CMSIS-DAP packet and reads back the response.
func (p *probe) command(req []byte) ([]byte, error) {
	if _, err := p.out.Write(req); err != nil {
		return nil, errors.Annotate(err, "bulk out")
	}

	resp := make([]byte, godap.DAP2PacketSize)
	n, err := p.in.Read(resp)
	if err != nil {
		return nil, errors.Annotate(err, "bulk in")
	}
	if n < 1 || resp[0] != req[0] {
		return nil, errors.Errorf("response header mismatch (got % x)", resp[:n])
	}
	return resp[:n], nil
}

func main() {
	flag.Parse()

	log.SetFormatter(&prefixed.TextFormatter{FullTimestamp: true})
	log.Info("Starting usb dap test-software...")

	ctx := gousb.NewContext()
	defer ctx.Close()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(*vid), gousb.ID(*pid))
	if err != nil {
		log.Panic(errors.Annotate(err, "open device"))
	}
	if dev == nil {
		log.Fatalf("Could not find any probe with %04x:%04x on your computer", *vid, *pid)
	}
	defer dev.Close()

	log.Info("Found probe on your computer! :)")

	if err := dev.SetAutoDetach(true); err != nil {
		log.Error(errors.Annotate(err, "auto detach"))
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		log.Panic(errors.Annotate(err, "claim interface"))
	}
	defer done()

	out, err := intf.OutEndpoint(1)
	if err != nil {
		log.Panic(errors.Annotate(err, "out endpoint"))
	}
	in, err := intf.InEndpoint(2)
	if err != nil {
		log.Panic(errors.Annotate(err, "in endpoint"))
	}

	p := &probe{out: out, in: in}

	// Firmware version string.
	resp, err := p.command([]byte{byte(godap.CmdInfo), 0x04})
	if err != nil {
		log.Panic(err)
	}
	if len(resp) >= 2 {
		strlen := int(resp[1])
		log.Infof("Firmware version: %s", string(resp[2:2+strlen]))
	}

	// Capability byte.
	resp, err = p.command([]byte{byte(godap.CmdInfo), 0xF0})
	if err != nil {
		log.Panic(err)
	}
	log.Infof("Capabilities: %08b", resp[2])

	// Connect in SWD mode, slow clock first.
	resp, err = p.command([]byte{byte(godap.CmdConnect), 0x01})
	if err != nil {
		log.Panic(err)
	}
	if resp[1] != 0x01 {
		log.Fatal("Probe refused SWD connection")
	}
	log.Info("Connected in SWD mode")

	clock := []byte{byte(godap.CmdSWJClock), 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(clock[1:], 1000000)
	if _, err = p.command(clock); err != nil {
		log.Error(err)
	}

	// Read DPIDR: one transfer, DP read of register 0.
	resp, err = p.command([]byte{byte(godap.CmdTransfer), 0x00, 0x01, 0x02})
	if err != nil {
		log.Panic(err)
	}
	if len(resp) >= 7 && resp[2] == 0x01 {
		log.Infof("Got id code: %08x", binary.LittleEndian.Uint32(resp[3:7]))
	} else {
		log.Errorf("DPIDR read failed, status %02x", resp[2])
	}

	time.Sleep(100 * time.Millisecond)

	if _, err = p.command([]byte{byte(godap.CmdDisconnect)}); err != nil {
		log.Error(err)
	}
	log.Info("Disconnected")
}
