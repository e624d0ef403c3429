// Package wire defines the byte-level message layouts exchanged between the
// simulation client, the relay and the controller.
//
// Every message is one header byte followed by a header-specific payload.
// Multi-byte numeric fields are fixed-width little-endian regardless of the
// host byte order. The package is stateless: all functions are pure.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/smanolloff/qwop-gym/types"
)

// Layout sizes in bytes.
const (
	// HeaderSize is the size of the leading header byte.
	HeaderSize = 1
	// CommandFlagsSize is the size of a flags-only command payload.
	CommandFlagsSize = 1
	// CommandStatsSize is the size of the optional command stats block.
	CommandStatsSize = 2 + 4 + 4
	// CommandPayloadSize is the size of a command payload carrying stats.
	CommandPayloadSize = CommandFlagsSize + CommandStatsSize
	// BodyPartSize is the size of one encoded body part sample.
	BodyPartSize = 5 * 4
	// ObservationPayloadSize is the OBS payload size: flags, time, distance, parts.
	ObservationPayloadSize = 1 + 4 + 4 + types.NumBodyParts*BodyPartSize
	// ObservationMessageSize is the full OBS message size including the header.
	ObservationMessageSize = HeaderSize + ObservationPayloadSize
	// ReloadPayloadSize is the size of the RLD seed.
	ReloadPayloadSize = 4
)

// ByteOrder is the byte order of every multi-byte field on the wire.
var ByteOrder = binary.LittleEndian

// Message is one framed protocol message. Treat it as immutable once built.
type Message struct {
	Header  types.Header
	Payload []byte
}

// Bytes returns the message as sent on the wire.
func (m Message) Bytes() []byte {
	buf := make([]byte, HeaderSize+len(m.Payload))
	buf[0] = byte(m.Header)
	copy(buf[HeaderSize:], m.Payload)
	return buf
}

// Parse splits raw bytes into header and payload.
// The payload aliases data.
func Parse(data []byte) (Message, error) {
	if len(data) < HeaderSize {
		return Message{}, &DecodeError{Kind: DecodeErrorEmpty, Msg: "empty message"}
	}
	h := types.Header(data[0])
	if !h.Valid() {
		return Message{}, &DecodeError{
			Kind: DecodeErrorUnknownHeader,
			Msg:  fmt.Sprintf("unknown header %d", data[0]),
		}
	}
	return Message{Header: h, Payload: data[HeaderSize:]}, nil
}

func expect(m Message, h types.Header) error {
	if m.Header != h {
		return &DecodeError{
			Kind: DecodeErrorWrongHeader,
			Msg:  fmt.Sprintf("expected %s message, got %s", h, m.Header),
		}
	}
	return nil
}

// HostByteOrder reports the native byte order detected at runtime.
// Encoding never depends on it; it is exposed for diagnostics.
func HostByteOrder() binary.ByteOrder {
	var probe uint16 = 0x0102
	if *(*byte)(unsafe.Pointer(&probe)) == 0x02 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// --- Registration ---

// EncodeRegistration builds a REG message announcing role.
func EncodeRegistration(role types.Role) Message {
	return Message{Header: types.HeaderREG, Payload: []byte{byte(role)}}
}

// DecodeRegistration extracts the role from a REG message.
func DecodeRegistration(m Message) (types.Role, error) {
	if err := expect(m, types.HeaderREG); err != nil {
		return 0, err
	}
	if len(m.Payload) < 1 {
		return 0, truncated("registration", len(m.Payload), 1)
	}
	role := types.Role(m.Payload[0])
	if !role.Valid() {
		return role, &DecodeError{
			Kind: DecodeErrorInvalidValue,
			Msg:  fmt.Sprintf("unknown role %d", m.Payload[0]),
		}
	}
	return role, nil
}

// EncodeAck builds an ACK message.
func EncodeAck() Message {
	return Message{Header: types.HeaderACK}
}

// EncodeReject builds a REJ message.
func EncodeReject() Message {
	return Message{Header: types.HeaderREJ}
}

// --- Command ---

// EncodeCommand builds a CMD message. The stats block is appended only when
// cmd.Stats is non-nil.
func EncodeCommand(cmd types.Command) Message {
	if cmd.Stats == nil {
		return Message{Header: types.HeaderCMD, Payload: []byte{byte(cmd.Flags)}}
	}
	payload := make([]byte, CommandPayloadSize)
	payload[0] = byte(cmd.Flags)
	ByteOrder.PutUint16(payload[1:3], cmd.Stats.Step)
	ByteOrder.PutUint32(payload[3:7], math.Float32bits(cmd.Stats.Reward))
	ByteOrder.PutUint32(payload[7:11], math.Float32bits(cmd.Stats.TotalReward))
	return Message{Header: types.HeaderCMD, Payload: payload}
}

// DecodeCommand parses a CMD payload.
// One byte is a flags-only command; eleven or more bytes carry stats.
// Anything in between is a truncated stats block.
func DecodeCommand(payload []byte) (types.Command, error) {
	switch {
	case len(payload) < CommandFlagsSize:
		return types.Command{}, truncated("command", len(payload), CommandFlagsSize)
	case len(payload) == CommandFlagsSize:
		return types.Command{Flags: types.CommandFlags(payload[0])}, nil
	case len(payload) < CommandPayloadSize:
		return types.Command{}, truncated("command stats", len(payload), CommandPayloadSize)
	}
	return types.Command{
		Flags: types.CommandFlags(payload[0]),
		Stats: &types.CommandStats{
			Step:        ByteOrder.Uint16(payload[1:3]),
			Reward:      math.Float32frombits(ByteOrder.Uint32(payload[3:7])),
			TotalReward: math.Float32frombits(ByteOrder.Uint32(payload[7:11])),
		},
	}, nil
}

// --- Observation ---

// EncodeObservation builds an OBS message of exactly ObservationMessageSize bytes.
func EncodeObservation(f types.ObservationFrame) Message {
	payload := make([]byte, ObservationPayloadSize)
	payload[0] = byte(f.Flags)
	ByteOrder.PutUint32(payload[1:5], math.Float32bits(f.Time))
	ByteOrder.PutUint32(payload[5:9], math.Float32bits(f.Distance))
	off := 9
	for _, part := range f.Parts {
		for _, v := range part.Values() {
			ByteOrder.PutUint32(payload[off:off+4], math.Float32bits(v))
			off += 4
		}
	}
	return Message{Header: types.HeaderOBS, Payload: payload}
}

// DecodeObservation parses an OBS payload.
func DecodeObservation(payload []byte) (types.ObservationFrame, error) {
	if len(payload) < ObservationPayloadSize {
		return types.ObservationFrame{}, truncated("observation", len(payload), ObservationPayloadSize)
	}
	f32 := func(off int) float32 {
		return math.Float32frombits(ByteOrder.Uint32(payload[off : off+4]))
	}
	f := types.ObservationFrame{
		Flags:    types.ObsFlags(payload[0]),
		Time:     f32(1),
		Distance: f32(5),
	}
	off := 9
	for i := range f.Parts {
		f.Parts[i] = types.BodyPartSample{
			X:     f32(off),
			Y:     f32(off + 4),
			Angle: f32(off + 8),
			VX:    f32(off + 12),
			VY:    f32(off + 16),
		}
		off += BodyPartSize
	}
	return f, nil
}

// --- Image ---

// EncodeImage builds an IMG message: format tag followed by encoded bytes.
func EncodeImage(format types.ImageFormat, data []byte) Message {
	payload := make([]byte, 1+len(data))
	payload[0] = byte(format)
	copy(payload[1:], data)
	return Message{Header: types.HeaderIMG, Payload: payload}
}

// DecodeImage parses an IMG payload. The returned bytes alias payload.
func DecodeImage(payload []byte) (types.ImageFormat, []byte, error) {
	if len(payload) < 1 {
		return 0, nil, truncated("image", len(payload), 1)
	}
	format := types.ImageFormat(payload[0])
	if !format.Valid() {
		return format, nil, &DecodeError{
			Kind: DecodeErrorInvalidValue,
			Msg:  fmt.Sprintf("unknown image format %d", payload[0]),
		}
	}
	return format, payload[1:], nil
}

// --- Text (LOG, ERR) ---

// EncodeText builds a LOG or ERR message carrying UTF-8 text.
// The header byte occupies the slot of the one-byte text prefix.
func EncodeText(h types.Header, text string) Message {
	return Message{Header: h, Payload: []byte(text)}
}

// EncodeLog builds a LOG message.
func EncodeLog(text string) Message {
	return EncodeText(types.HeaderLOG, text)
}

// EncodeError builds an ERR message.
func EncodeError(text string) Message {
	return EncodeText(types.HeaderERR, text)
}

// DecodeText returns the text of a LOG or ERR payload.
func DecodeText(payload []byte) string {
	return string(payload)
}

// --- Reload ---

// EncodeReload builds an RLD message carrying seed.
func EncodeReload(seed uint32) Message {
	payload := make([]byte, ReloadPayloadSize)
	ByteOrder.PutUint32(payload, seed)
	return Message{Header: types.HeaderRLD, Payload: payload}
}

// DecodeReload extracts the seed from an RLD payload.
func DecodeReload(payload []byte) (uint32, error) {
	if len(payload) < ReloadPayloadSize {
		return 0, truncated("reload", len(payload), ReloadPayloadSize)
	}
	return ByteOrder.Uint32(payload[:ReloadPayloadSize]), nil
}
