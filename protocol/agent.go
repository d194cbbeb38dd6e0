package protocol

import "goclk/core"

// Agent is the device side of the control console. It owns a Transport,
// decodes the console commands, runs them against the governor, and answers
// in-band: MsgStatus and MsgEvents for queries, MsgError (CodeOK included)
// for control commands. Drive it from the main loop by feeding wire input
// to Receive.
type Agent struct {
	transport *Transport
	gov       *core.Governor
	mon       *core.Monitor
}

// NewAgent returns an agent answering console requests for the given
// governor and monitor, writing frames to output.
func NewAgent(output OutputBuffer, gov *core.Governor, mon *core.Monitor) *Agent {
	a := &Agent{gov: gov, mon: mon}
	a.transport = NewTransport(output, a.handle)
	return a
}

// Transport exposes the underlying transport for flush/reset wiring.
func (a *Agent) Transport() *Transport {
	return a.transport
}

// Receive consumes buffered wire bytes, dispatching any complete frames.
func (a *Agent) Receive(input InputBuffer) {
	a.transport.Receive(input)
}

// handle runs one decoded command. Argument decode failures and unknown
// ids return an error so the rest of the frame is not misparsed; governor
// errors are reported in-band only, the link stays healthy.
func (a *Agent) handle(cmdID uint16, data *[]byte) error {
	switch cmdID {
	case MsgGetStatus:
		a.sendStatus()
		return nil

	case MsgSetMode:
		mode, param, err := DecodeSetMode(data)
		if err != nil {
			a.sendError(CodeBadRequest)
			return err
		}
		a.sendResult(a.gov.SetMode(mode, param))
		return nil

	case MsgSetLevel:
		level, err := DecodeSetLevel(data)
		if err != nil {
			a.sendError(CodeBadRequest)
			return err
		}
		a.sendResult(a.gov.SetFixedLevel(level))
		return nil

	case MsgAdjust:
		delta, err := DecodeAdjust(data)
		if err != nil {
			a.sendError(CodeBadRequest)
			return err
		}
		a.sendResult(a.gov.AdjustLevel(int(delta)))
		return nil

	case MsgGetEvents:
		a.sendEvents()
		return nil
	}

	a.sendError(CodeUnknownCommand)
	return ErrUnknownCommand
}

func (a *Agent) sendStatus() {
	st := a.mon.Status()
	a.transport.SendMessage(MsgStatus, func(output OutputBuffer) {
		EncodeStatus(output, Status{
			Tick:         st.UptimeMs,
			FreqHz:       st.FreqHz,
			Level:        st.Level,
			Mode:         st.Mode,
			Load:         st.Load,
			CoarseLoad:   st.CoarseLoad,
			SwitchCount:  st.SwitchCount,
			ActiveTimers: uint8(st.ActiveTimers),
			Dropped:      st.DroppedDispatches,
		})
	})
}

func (a *Agent) sendEvents() {
	events := a.gov.SwitchEvents()
	a.transport.SendMessage(MsgEvents, func(output OutputBuffer) {
		EncodeEvents(output, events)
	})
}

func (a *Agent) sendResult(err error) {
	a.sendError(ErrorCode(err))
}

func (a *Agent) sendError(code uint32) {
	a.transport.SendMessage(MsgError, func(output OutputBuffer) {
		EncodeVLQUint(output, code)
	})
}
