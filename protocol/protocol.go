// Package protocol implements the framed serial protocol between a goclk
// device and its host: sync-delimited frames carrying VLQ-encoded governor
// commands and status reports, with CRC16 integrity and sequence-numbered
// acknowledgement.
package protocol

// Version identifies the protocol revision the host tooling speaks.
const Version = "0.1.0"

// Frame layout constants. A frame is
//
//	[len][seq][payload...][crc hi][crc lo][sync]
//
// with len counting the whole frame and the CRC computed over len..payload.
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64

	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E

	// MessageSeqBase occupies the high bits of every sequence byte; the
	// low bits count frames modulo 16.
	MessageSeqMask = 0x0F
	MessageSeqBase = 0x10

	// MessageMax sizes the output scratch on the device; it holds several
	// frames between flushes.
	MessageMax = 512
)
