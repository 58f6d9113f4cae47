// Package enip implements the EtherNet/IP encapsulation layer: the 24-byte
// header, the Common Packet Format and the SendRRData command payload.
package enip

import (
	"errors"
	"fmt"

	"github.com/tturner/enipcore/internal/cip/codec"
)

// Port is the registered EtherNet/IP TCP port (0xAF12).
const Port = 44818

// HeaderSize is the fixed size of the encapsulation header.
const HeaderSize = 24

// Command is an encapsulation command code.
type Command uint16

// Encapsulation commands.
const (
	CommandNOP               Command = 0x0000
	CommandListServices      Command = 0x0004
	CommandListIdentity      Command = 0x0063
	CommandListInterfaces    Command = 0x0064
	CommandRegisterSession   Command = 0x0065
	CommandUnregisterSession Command = 0x0066
	CommandSendRRData        Command = 0x006F
	CommandSendUnitData      Command = 0x0070
	CommandIndicateStatus    Command = 0x0072
	CommandCancel            Command = 0x0073
)

func (c Command) String() string {
	switch c {
	case CommandNOP:
		return "NOP"
	case CommandListServices:
		return "ListServices"
	case CommandListIdentity:
		return "ListIdentity"
	case CommandListInterfaces:
		return "ListInterfaces"
	case CommandRegisterSession:
		return "RegisterSession"
	case CommandUnregisterSession:
		return "UnRegisterSession"
	case CommandSendRRData:
		return "SendRRData"
	case CommandSendUnitData:
		return "SendUnitData"
	case CommandIndicateStatus:
		return "IndicateStatus"
	case CommandCancel:
		return "Cancel"
	default:
		return fmt.Sprintf("Command(0x%04X)", uint16(c))
	}
}

// Known reports whether c is a defined encapsulation command.
func (c Command) Known() bool {
	switch c {
	case CommandNOP, CommandListServices, CommandListIdentity, CommandListInterfaces,
		CommandRegisterSession, CommandUnregisterSession, CommandSendRRData,
		CommandSendUnitData, CommandIndicateStatus, CommandCancel:
		return true
	default:
		return false
	}
}

// Status is the encapsulation status carried in the header. Values are
// defined as 16-bit even though the field is 32 bits wide.
type Status uint32

// Encapsulation status codes.
const (
	StatusSuccess                     Status = 0x0000
	StatusInvalidCommand              Status = 0x0001
	StatusInsufficientMemory          Status = 0x0002
	StatusIncorrectData               Status = 0x0003
	StatusInvalidSessionHandle        Status = 0x0064
	StatusInvalidLength               Status = 0x0065
	StatusUnsupportedProtocolRevision Status = 0x0069
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusInvalidCommand:
		return "Invalid or unsupported command"
	case StatusInsufficientMemory:
		return "Insufficient memory"
	case StatusIncorrectData:
		return "Incorrect data"
	case StatusInvalidSessionHandle:
		return "Invalid session handle"
	case StatusInvalidLength:
		return "Invalid length"
	case StatusUnsupportedProtocolRevision:
		return "Unsupported protocol revision"
	default:
		return fmt.Sprintf("Status(0x%04X)", uint32(s))
	}
}

// ErrFormat reports a malformed or undersized buffer.
var ErrFormat = codec.ErrFormat

// ErrTruncatedFrame is returned when a buffer holds fewer payload bytes than
// the header declares.
var ErrTruncatedFrame = errors.New("truncated encapsulation frame")

// Header is the encapsulation header. Field order on the wire is fixed.
type Header struct {
	Command       Command
	Length        uint16
	SessionHandle uint32
	Status        Status
	SenderContext uint64
	Options       uint32
}

// Encode serializes the header into a new 24-byte slice.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	offset := 0
	_ = h.EncodeTo(buf, &offset)
	return buf
}

// EncodeTo writes the header into buf at offset.
func (h Header) EncodeTo(buf []byte, offset *int) error {
	if len(buf)-*offset < HeaderSize {
		return fmt.Errorf("%w: header needs %d bytes at offset %d of %d", codec.ErrBufferTooSmall, HeaderSize, *offset, len(buf))
	}
	_ = codec.PutUint16(buf, offset, uint16(h.Command))
	_ = codec.PutUint16(buf, offset, h.Length)
	_ = codec.PutUint32(buf, offset, h.SessionHandle)
	_ = codec.PutUint32(buf, offset, uint32(h.Status))
	_ = codec.PutUint64(buf, offset, h.SenderContext)
	return codec.PutUint32(buf, offset, h.Options)
}

// DecodeHeader reads a header at offset and returns the offset after it.
func DecodeHeader(buf []byte, offset int) (Header, int, error) {
	if offset < 0 || len(buf)-offset < HeaderSize {
		return Header{}, offset, fmt.Errorf("%w: header needs %d bytes, %d available", ErrFormat, HeaderSize, codec.Remaining(buf, offset))
	}
	var h Header
	cmd, _ := codec.GetUint16(buf, &offset)
	h.Command = Command(cmd)
	h.Length, _ = codec.GetUint16(buf, &offset)
	h.SessionHandle, _ = codec.GetUint32(buf, &offset)
	status, _ := codec.GetUint32(buf, &offset)
	h.Status = Status(status)
	h.SenderContext, _ = codec.GetUint64(buf, &offset)
	h.Options, _ = codec.GetUint32(buf, &offset)
	return h, offset, nil
}

// DecodeFrame splits a complete frame into header and payload. Bytes past
// the declared length are ignored.
func DecodeFrame(buf []byte) (Header, []byte, error) {
	h, offset, err := DecodeHeader(buf, 0)
	if err != nil {
		return Header{}, nil, err
	}
	end := offset + int(h.Length)
	if end > len(buf) {
		return h, nil, fmt.Errorf("%w: %w: header declares %d payload bytes, %d present", ErrFormat, ErrTruncatedFrame, h.Length, len(buf)-offset)
	}
	return h, append([]byte(nil), buf[offset:end]...), nil
}

// EncodeFrame serializes header and payload, setting Length from the payload.
func EncodeFrame(h Header, payload []byte) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds 65535", ErrFormat, len(payload))
	}
	h.Length = uint16(len(payload))
	buf := make([]byte, HeaderSize+len(payload))
	offset := 0
	if err := h.EncodeTo(buf, &offset); err != nil {
		return nil, err
	}
	copy(buf[offset:], payload)
	return buf, nil
}

// RegisterSessionData is the RegisterSession command-specific data.
type RegisterSessionData struct {
	ProtocolVersion uint16
	OptionsFlags    uint16
}

// DefaultRegisterSessionData requests protocol version 1 with no options.
var DefaultRegisterSessionData = RegisterSessionData{ProtocolVersion: 1}

// Encode serializes version and options flags.
func (d RegisterSessionData) Encode() []byte {
	out := codec.AppendUint16(nil, d.ProtocolVersion)
	return codec.AppendUint16(out, d.OptionsFlags)
}

// DecodeRegisterSessionData reads version and options flags.
func DecodeRegisterSessionData(buf []byte) (RegisterSessionData, error) {
	var d RegisterSessionData
	offset := 0
	var err error
	if d.ProtocolVersion, err = codec.GetUint16(buf, &offset); err != nil {
		return d, fmt.Errorf("%w: protocol version: %v", ErrFormat, err)
	}
	if d.OptionsFlags, err = codec.GetUint16(buf, &offset); err != nil {
		return d, fmt.Errorf("%w: options flags: %v", ErrFormat, err)
	}
	return d, nil
}

// BuildRegisterSession builds a RegisterSession request (28 bytes).
func BuildRegisterSession(senderContext uint64) []byte {
	frame, _ := EncodeFrame(Header{
		Command:       CommandRegisterSession,
		SenderContext: senderContext,
	}, DefaultRegisterSessionData.Encode())
	return frame
}

// BuildUnregisterSession builds an UnRegisterSession request. It has no payload
// and the target sends no reply.
func BuildUnregisterSession(sessionHandle uint32, senderContext uint64) []byte {
	frame, _ := EncodeFrame(Header{
		Command:       CommandUnregisterSession,
		SessionHandle: sessionHandle,
		SenderContext: senderContext,
	}, nil)
	return frame
}

// BuildSendRRData builds a SendRRData request carrying rr.
func BuildSendRRData(sessionHandle uint32, senderContext uint64, rr SendRRData) ([]byte, error) {
	payload, err := rr.Encode()
	if err != nil {
		return nil, err
	}
	return EncodeFrame(Header{
		Command:       CommandSendRRData,
		SessionHandle: sessionHandle,
		SenderContext: senderContext,
	}, payload)
}

// BuildListIdentity builds a ListIdentity request.
func BuildListIdentity(senderContext uint64) []byte {
	frame, _ := EncodeFrame(Header{Command: CommandListIdentity, SenderContext: senderContext}, nil)
	return frame
}

// BuildNOP builds a NOP frame. Targets do not reply to NOP.
func BuildNOP(data []byte) ([]byte, error) {
	return EncodeFrame(Header{Command: CommandNOP}, data)
}
