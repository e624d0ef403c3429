package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/smanolloff/qwop-gym/types"
)

func TestCommand_RoundTripAllFlags(t *testing.T) {
	for i := 0; i < 256; i++ {
		flags := types.CommandFlags(i)
		msg := EncodeCommand(types.Command{Flags: flags})
		if msg.Header != types.HeaderCMD {
			t.Fatalf("Header = %v, want CMD", msg.Header)
		}
		got, err := DecodeCommand(msg.Payload)
		if err != nil {
			t.Fatalf("DecodeCommand(%#x) failed: %v", i, err)
		}
		if got.Flags != flags {
			t.Errorf("Flags = %#x, want %#x", got.Flags, flags)
		}
		if got.Stats != nil {
			t.Errorf("Stats = %+v, want nil", got.Stats)
		}
	}
}

func TestCommand_Stats(t *testing.T) {
	cmd := types.Command{
		Flags: types.CmdStep | types.CmdKeyW,
		Stats: &types.CommandStats{Step: 513, Reward: 0.25, TotalReward: -3.5},
	}
	msg := EncodeCommand(cmd)
	if len(msg.Payload) != CommandPayloadSize {
		t.Fatalf("len(Payload) = %d, want %d", len(msg.Payload), CommandPayloadSize)
	}
	if got := binary.LittleEndian.Uint16(msg.Payload[1:3]); got != 513 {
		t.Errorf("raw step = %d, want 513", got)
	}

	got, err := DecodeCommand(msg.Payload)
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if got.Stats == nil {
		t.Fatal("Stats = nil, want non-nil")
	}
	if *got.Stats != *cmd.Stats {
		t.Errorf("Stats = %+v, want %+v", *got.Stats, *cmd.Stats)
	}
}

func TestDecodeCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"partial stats", []byte{0x01, 0x02, 0x03}},
		{"one short of stats", make([]byte, CommandPayloadSize-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand(tt.payload)
			if err == nil {
				t.Fatal("expected error")
			}
			kind, ok := DecodeErrorKindOf(err)
			if !ok {
				t.Fatalf("error %v is not a DecodeError", err)
			}
			if kind != DecodeErrorTruncated {
				t.Errorf("Kind = %v, want truncated", kind)
			}
		})
	}
}

func TestObservation_Layout(t *testing.T) {
	var f types.ObservationFrame
	f.Flags = types.ObsEnded | types.ObsSuccess
	f.Time = 12.5
	f.Distance = 101
	for i := range f.Parts {
		base := float32(i * 10)
		f.Parts[i] = types.BodyPartSample{X: base, Y: base + 1, Angle: base + 2, VX: base + 3, VY: base + 4}
	}

	raw := EncodeObservation(f).Bytes()
	if len(raw) != ObservationMessageSize {
		t.Fatalf("len = %d, want %d", len(raw), ObservationMessageSize)
	}
	if ObservationMessageSize != 250 {
		t.Errorf("ObservationMessageSize = %d, want 250", ObservationMessageSize)
	}
	if raw[0] != byte(types.HeaderOBS) || raw[1] != 0x06 {
		t.Errorf("header/flags = %#x/%#x, want 0x04/0x06", raw[0], raw[1])
	}
	// distance at message offset 6, rightThigh.vy at the last four bytes.
	if got := math.Float32frombits(binary.LittleEndian.Uint32(raw[6:10])); got != 101 {
		t.Errorf("distance = %v, want 101", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(raw[246:250])); got != 114 {
		t.Errorf("rightThigh.vy = %v, want 114", got)
	}

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got, err := DecodeObservation(msg.Payload)
	if err != nil {
		t.Fatalf("DecodeObservation failed: %v", err)
	}
	if got != f {
		t.Errorf("decoded frame = %+v, want %+v", got, f)
	}
}

func TestDecodeObservation_Truncated(t *testing.T) {
	_, err := DecodeObservation(make([]byte, ObservationPayloadSize-1))
	if !IsDecodeError(err) {
		t.Errorf("err = %v, want DecodeError", err)
	}
}

func TestParse(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Error("Parse(nil) expected error")
	}
	_, err := Parse([]byte{42})
	if kind, _ := DecodeErrorKindOf(err); kind != DecodeErrorUnknownHeader {
		t.Errorf("Kind = %v, want unknown_header", kind)
	}
	msg, err := Parse([]byte{byte(types.HeaderACK)})
	if err != nil {
		t.Fatalf("Parse(ACK) failed: %v", err)
	}
	if msg.Header != types.HeaderACK || len(msg.Payload) != 0 {
		t.Errorf("msg = %+v, want empty ACK", msg)
	}
}

func TestRegistration(t *testing.T) {
	msg := EncodeRegistration(types.RoleController)
	if !bytes.Equal(msg.Bytes(), []byte{0, 1}) {
		t.Errorf("Bytes() = %v, want [0 1]", msg.Bytes())
	}
	role, err := DecodeRegistration(msg)
	if err != nil || role != types.RoleController {
		t.Errorf("DecodeRegistration = %v, %v; want controller", role, err)
	}
	if _, err := DecodeRegistration(Message{Header: types.HeaderREG, Payload: []byte{7}}); err == nil {
		t.Error("expected error for role 7")
	}
	if _, err := DecodeRegistration(EncodeAck()); err == nil {
		t.Error("expected error for ACK message")
	}
}

func TestText(t *testing.T) {
	raw := EncodeError("boom").Bytes()
	if !bytes.Equal(raw, []byte{7, 'b', 'o', 'o', 'm'}) {
		t.Errorf("Bytes() = %v", raw)
	}
	msg, _ := Parse(EncodeLog("héllo").Bytes())
	if got := DecodeText(msg.Payload); got != "héllo" {
		t.Errorf("DecodeText = %q, want %q", got, "héllo")
	}
}

func TestImage(t *testing.T) {
	msg := EncodeImage(types.ImagePNG, []byte{0x89, 'P', 'N', 'G'})
	raw := msg.Bytes()
	if raw[0] != byte(types.HeaderIMG) || raw[1] != byte(types.ImagePNG) {
		t.Errorf("prefix = %v, want [5 1]", raw[:2])
	}
	format, data, err := DecodeImage(msg.Payload)
	if err != nil {
		t.Fatalf("DecodeImage failed: %v", err)
	}
	if format != types.ImagePNG || len(data) != 4 {
		t.Errorf("DecodeImage = %v, %d bytes", format, len(data))
	}
	if _, _, err := DecodeImage([]byte{9}); err == nil {
		t.Error("expected error for format 9")
	}
}

func TestReload(t *testing.T) {
	msg := EncodeReload(0xdeadbeef)
	if !bytes.Equal(msg.Payload, []byte{0xef, 0xbe, 0xad, 0xde}) {
		t.Errorf("Payload = %x, want little-endian seed", msg.Payload)
	}
	seed, err := DecodeReload(msg.Payload)
	if err != nil || seed != 0xdeadbeef {
		t.Errorf("DecodeReload = %#x, %v", seed, err)
	}
	if _, err := DecodeReload([]byte{1, 2}); err == nil {
		t.Error("expected error for short payload")
	}
}

func TestHostByteOrder(t *testing.T) {
	order := HostByteOrder()
	if order != binary.LittleEndian && order != binary.BigEndian {
		t.Errorf("HostByteOrder() = %v", order)
	}
}
