// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

// App ties the USB transport to the DAP command processor and the serial
// passthrough. One Poll call services at most one inbound USB request and
// then pumps the SWO and VCP streams; the firmware main loop calls Poll
// forever.
type App struct {
	usb    USBPort
	dap    *DAP
	serial SerialUART
	pins   *Pins

	vcpConfig VcpConfig

	// Response and streaming buffers, sized to the largest packet each
	// path can carry. Kept in the struct so Poll never allocates.
	dap1Buf [DAP1PacketSize]byte
	dap2Buf [DAP2PacketSize]byte
	swoBuf  [DAP2PacketSize]byte
	vcpBuf  [VCPPacketSize]byte
}

func NewApp(usb USBPort, dap *DAP, serial SerialUART, pins *Pins) *App {
	return &App{
		usb:       usb,
		dap:       dap,
		serial:    serial,
		pins:      pins,
		vcpConfig: DefaultVcpConfig(),
	}
}

// Start brings the probe into its idle powered state: all target lines
// released, target power rails off, serial passthrough running at the
// default configuration.
func (a *App) Start() {
	a.pins.HighImpedanceMode()
	a.pins.LedRed.SetHigh()
	a.pins.LedGreen.SetHigh()
	a.pins.LedBlue.SetLow()
	a.pins.TVccEn.SetLow()
	a.pins.T5vEn.SetLow()

	a.serial.SetConfig(a.vcpConfig)
	a.serial.Start()

	logger.Info("probe started")
}

// Poll services one iteration of the event loop.
func (a *App) Poll() {
	if req, ok := a.usb.Interrupt(a.serial.IsTxIdle()); ok {
		a.handleRequest(req)
	}

	a.pollSWO()
	a.pollVCP()
}

// handleRequest dispatches one inbound USB event. DAPv1 and DAPv2 replies
// take strictly separate paths: a v1 request is answered on the HID
// interrupt endpoint and a v2 request on the bulk endpoint, never the
// other way around.
func (a *App) handleRequest(req HostRequest) {
	switch req.Kind {
	case RequestDAP1:
		// v1 responses are a fixed-size report; ProcessCommand never
		// writes past the 64 byte buffer for a v1 request.
		n := a.dap.ProcessCommand(req.Data, a.dap1Buf[:], DAPVersion1)
		if n > 0 {
			a.usb.DAP1Reply(a.dap1Buf[:n])
		}
	case RequestDAP2:
		n := a.dap.ProcessCommand(req.Data, a.dap2Buf[:], DAPVersion2)
		if n > 0 {
			a.usb.DAP2Reply(a.dap2Buf[:n])
		}
	case RequestVCP:
		a.serial.Write(req.Data)
	case RequestSuspend:
		a.suspend()
	}
}

// pollSWO streams buffered trace data to the dedicated DAPv2 trace
// endpoint whenever streaming is enabled and the endpoint is free.
func (a *App) pollSWO() {
	if !a.dap.IsSWOStreaming() || a.usb.DAP2SWOIsBusy() {
		return
	}
	if n := a.dap.ReadSWO(a.swoBuf[:]); n > 0 {
		a.usb.DAP2StreamSWO(a.swoBuf[:n])
	}
}

// pollVCP applies host line-coding changes to the passthrough UART and
// forwards received target data back to the host.
func (a *App) pollVCP() {
	config := vcpConfigFromLineCoding(a.usb.SerialLineCoding())
	if config != a.vcpConfig {
		logger.Infof("VCP reconfigured to %d baud, %d data bits", config.DataRate, config.DataBits)
		a.serial.Stop()
		a.serial.SetConfig(config)
		a.serial.Start()
		a.vcpConfig = config
	}

	if n := a.serial.Read(a.vcpBuf[:]); n > 0 {
		a.usb.SerialReturn(a.vcpBuf[:n])
	}
}

// suspend releases every target-facing line and powers the target rails
// down. The USB stack reports the suspend again if it persists, so this
// must be idempotent.
func (a *App) suspend() {
	logger.Info("host suspended, releasing target")

	a.pins.HighImpedanceMode()
	a.pins.LedRed.SetHigh()
	a.pins.LedGreen.SetHigh()
	a.pins.LedBlue.SetHigh()
	a.pins.TVccEn.SetLow()
	a.pins.T5vEn.SetLow()

	a.dap.Suspend()
}
