package protocol

import "sync/atomic"

// CommandHandler consumes one decoded command. data points at the
// remaining payload and must be advanced past the command's arguments.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the device side of the framed link. It validates incoming
// frames, acknowledges them by sequence number, resynchronizes after
// garbage, and encodes outgoing frames into the shared output buffer.
type Transport struct {
	isSynchronized uint32 // atomic bool
	nextSequence   uint32 // atomic; expected sequence byte from the host
	output         OutputBuffer
	handler        CommandHandler
	resetCallback  func() // called when a host restart is detected
	flushCallback  func() // called to push an ACK to the wire immediately
}

// NewTransport returns a transport writing frames to output and feeding
// decoded commands to handler.
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		isSynchronized: 1,
		nextSequence:   MessageSeqBase,
		output:         output,
		handler:        handler,
	}
}

// Receive consumes buffered wire bytes: parses complete frames, dispatches
// their commands and acknowledges them. Partial frames stay in the input
// for the next call; anything unparseable drops the link to hunting for
// the next sync byte.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.getSynchronized() {
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}

			if syncPos >= 0 {
				// Skip the garbage and the sync byte, then tell the host
				// which sequence we expect next.
				data = data[syncPos+1:]
				t.setSynchronized(true)
				t.encodeAckNak()
			} else {
				data = nil
			}
			continue
		}

		// Skip extra sync bytes between frames.
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			t.setSynchronized(false)
			continue
		}

		seq := data[MessagePositionSeq]
		if seq&^uint8(MessageSeqMask) != MessageSeqBase {
			t.setSynchronized(false)
			continue
		}

		if len(data) < msgLen {
			break
		}

		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			t.setSynchronized(false)
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			t.setSynchronized(false)
			continue
		}

		frame := data[MessageHeaderSize : msgLen-MessageTrailerSize]
		data = data[msgLen:]

		// A sequence back at the base after we advanced means the host
		// restarted; follow it.
		expectedSeq := uint8(atomic.LoadUint32(&t.nextSequence))
		if seq == MessageSeqBase && expectedSeq != MessageSeqBase {
			atomic.StoreUint32(&t.nextSequence, MessageSeqBase)
			expectedSeq = MessageSeqBase
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}

		if seq == expectedSeq {
			nextSeq := ((seq + 1) & MessageSeqMask) | MessageSeqBase
			atomic.StoreUint32(&t.nextSequence, uint32(nextSeq))
			_ = t.parseFrame(frame)
		}
		// Acknowledge either way: on a sequence mismatch the ACK carries
		// the sequence we still expect, acting as a NAK.
		t.encodeAckNak()
	}

	consumed := input.Available() - len(data)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

// parseFrame dispatches the commands packed in one frame. A handler panic
// must not take the firmware down: it desynchronizes the link instead and
// recovery runs through the sync hunt.
func (t *Transport) parseFrame(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.setSynchronized(false)
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.setSynchronized(false)
			return err
		}

		if t.handler != nil {
			if err := t.handler(uint16(cmdID), &frame); err != nil {
				// Handler errors are answered in-band (MsgError); they do
				// not desynchronize the link.
				return err
			}
		}
	}
	return nil
}

// encodeAckNak emits an empty frame carrying the expected sequence. The
// flush callback pushes it to the wire immediately: the host serializes on
// ACKs and must not see a response overtake one.
func (t *Transport) encodeAckNak() {
	ns := uint8(atomic.LoadUint32(&t.nextSequence))
	crc := CRC16([]byte{MessageLengthMin, ns})

	t.output.Output([]byte{
		MessageLengthMin,
		ns,
		uint8(crc >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})

	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame wraps the payload written by frameData in a complete frame:
// header with patched length, CRC and sync trailer.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	cursor := t.output.CurPosition()

	// Responses carry the same sequence as the ACK for the frame that
	// caused them.
	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	t.output.Output([]byte{0, seq})

	frameData(t.output)

	changed := len(t.output.DataSince(cursor))
	t.output.Update(cursor, uint8(changed+MessageTrailerSize))

	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output([]byte{
		uint8(crc >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})
}

// SendMessage encodes a message id plus arguments as one frame.
func (t *Transport) SendMessage(msgID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(msgID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the transport to its initial state (fresh connection).
func (t *Transport) Reset() {
	atomic.StoreUint32(&t.isSynchronized, 1)
	atomic.StoreUint32(&t.nextSequence, MessageSeqBase)

	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback registers a callback for detected host restarts.
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback registers the immediate-flush hook used for ACKs.
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

func (t *Transport) getSynchronized() bool {
	return atomic.LoadUint32(&t.isSynchronized) != 0
}

func (t *Transport) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&t.isSynchronized, 1)
	} else {
		atomic.StoreUint32(&t.isSynchronized, 0)
	}
}
