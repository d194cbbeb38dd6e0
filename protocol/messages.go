package protocol

import (
	"errors"

	"goclk/core"
)

// Message identifiers. Host-to-device commands sit below 0x40; device
// responses and reports at or above it.
const (
	MsgGetStatus uint16 = 1
	MsgSetMode   uint16 = 2
	MsgSetLevel  uint16 = 3
	MsgAdjust    uint16 = 4
	MsgGetEvents uint16 = 5

	MsgStatus uint16 = 0x40
	MsgEvents uint16 = 0x41
	MsgError  uint16 = 0x4F
)

// Wire codes for governor errors carried in MsgError and event records.
const (
	CodeOK uint32 = iota
	CodeNotInitialized
	CodeInvalidFrequency
	CodePllLockTimeout
	CodeSwitchTooFast
	CodeOscillatorNotFound
	CodeModeConflict
	CodeUnknownCommand
	CodeBadRequest
)

// Errors a host sees for device-reported failure codes with no core
// equivalent.
var (
	ErrUnknownCommand = errors.New("device rejected unknown command")
	ErrBadRequest     = errors.New("device rejected malformed request")
)

// ErrorCode maps a governor error to its wire code.
func ErrorCode(err error) uint32 {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, core.ErrNotInitialized):
		return CodeNotInitialized
	case errors.Is(err, core.ErrInvalidFrequency):
		return CodeInvalidFrequency
	case errors.Is(err, core.ErrPllLockTimeout):
		return CodePllLockTimeout
	case errors.Is(err, core.ErrSwitchTooFast):
		return CodeSwitchTooFast
	case errors.Is(err, core.ErrOscillatorNotFound):
		return CodeOscillatorNotFound
	case errors.Is(err, core.ErrModeConflict):
		return CodeModeConflict
	}
	return CodeBadRequest
}

// CodeToError maps a wire code back to the matching error, nil for CodeOK.
func CodeToError(code uint32) error {
	switch code {
	case CodeOK:
		return nil
	case CodeNotInitialized:
		return core.ErrNotInitialized
	case CodeInvalidFrequency:
		return core.ErrInvalidFrequency
	case CodePllLockTimeout:
		return core.ErrPllLockTimeout
	case CodeSwitchTooFast:
		return core.ErrSwitchTooFast
	case CodeOscillatorNotFound:
		return core.ErrOscillatorNotFound
	case CodeModeConflict:
		return core.ErrModeConflict
	case CodeUnknownCommand:
		return ErrUnknownCommand
	}
	return ErrBadRequest
}

// Status is the device state report carried by MsgStatus. Fields are
// encoded as VLQ integers in declaration order.
type Status struct {
	Tick         uint32
	FreqHz       uint32
	Level        core.FreqLevel
	Mode         core.Mode
	Load         uint8
	CoarseLoad   uint8
	SwitchCount  uint32
	ActiveTimers uint8
	Dropped      uint32
}

// EncodeStatus writes st's fields after the MsgStatus id.
func EncodeStatus(output OutputBuffer, st Status) {
	EncodeVLQUint(output, st.Tick)
	EncodeVLQUint(output, st.FreqHz)
	EncodeVLQUint(output, uint32(st.Level))
	EncodeVLQUint(output, uint32(st.Mode))
	EncodeVLQUint(output, uint32(st.Load))
	EncodeVLQUint(output, uint32(st.CoarseLoad))
	EncodeVLQUint(output, st.SwitchCount)
	EncodeVLQUint(output, uint32(st.ActiveTimers))
	EncodeVLQUint(output, st.Dropped)
}

// DecodeStatus reads a Status payload, advancing *data.
func DecodeStatus(data *[]byte) (Status, error) {
	var st Status
	var err error
	next := func() uint32 {
		if err != nil {
			return 0
		}
		var v uint32
		v, err = DecodeVLQUint(data)
		return v
	}
	st.Tick = next()
	st.FreqHz = next()
	st.Level = core.FreqLevel(next())
	st.Mode = core.Mode(next())
	st.Load = uint8(next())
	st.CoarseLoad = uint8(next())
	st.SwitchCount = next()
	st.ActiveTimers = uint8(next())
	st.Dropped = next()
	if err != nil {
		return Status{}, err
	}
	return st, nil
}

// Event is one switch attempt from the device's post-mortem ring.
type Event struct {
	Tick uint32
	From core.FreqLevel
	To   core.FreqLevel
	Code uint32
}

// EncodeEvents writes a count followed by the event records.
func EncodeEvents(output OutputBuffer, events []core.SwitchEvent) {
	EncodeVLQUint(output, uint32(len(events)))
	for _, e := range events {
		EncodeVLQUint(output, e.Tick)
		EncodeVLQUint(output, uint32(e.From))
		EncodeVLQUint(output, uint32(e.To))
		EncodeVLQUint(output, ErrorCode(e.Err))
	}
}

// DecodeEvents reads an event list payload, advancing *data.
func DecodeEvents(data *[]byte) ([]Event, error) {
	count, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if count > 64 {
		return nil, ErrBadRequest
	}
	events := make([]Event, 0, count)
	for i := uint32(0); i < count; i++ {
		var e Event
		if e.Tick, err = DecodeVLQUint(data); err != nil {
			return nil, err
		}
		var v uint32
		if v, err = DecodeVLQUint(data); err != nil {
			return nil, err
		}
		e.From = core.FreqLevel(v)
		if v, err = DecodeVLQUint(data); err != nil {
			return nil, err
		}
		e.To = core.FreqLevel(v)
		if e.Code, err = DecodeVLQUint(data); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// EncodeSetMode writes the SetMode arguments.
func EncodeSetMode(output OutputBuffer, mode core.Mode, param core.FreqLevel) {
	EncodeVLQUint(output, uint32(mode))
	EncodeVLQUint(output, uint32(param))
}

// DecodeSetMode reads the SetMode arguments, advancing *data.
func DecodeSetMode(data *[]byte) (core.Mode, core.FreqLevel, error) {
	m, err := DecodeVLQUint(data)
	if err != nil {
		return 0, 0, err
	}
	p, err := DecodeVLQUint(data)
	if err != nil {
		return 0, 0, err
	}
	return core.Mode(m), core.FreqLevel(p), nil
}

// EncodeSetLevel writes the SetLevel argument.
func EncodeSetLevel(output OutputBuffer, level core.FreqLevel) {
	EncodeVLQUint(output, uint32(level))
}

// DecodeSetLevel reads the SetLevel argument, advancing *data.
func DecodeSetLevel(data *[]byte) (core.FreqLevel, error) {
	v, err := DecodeVLQUint(data)
	return core.FreqLevel(v), err
}

// EncodeAdjust writes the signed level delta.
func EncodeAdjust(output OutputBuffer, delta int32) {
	EncodeVLQInt(output, delta)
}

// DecodeAdjust reads the signed level delta, advancing *data.
func DecodeAdjust(data *[]byte) (int32, error) {
	return DecodeVLQInt(data)
}
