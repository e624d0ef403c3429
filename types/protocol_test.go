package types //nolint:revive // types is a valid package name

import (
	"strconv"
	"strings"
	"testing"
)

func TestHeader_String(t *testing.T) {
	tests := []struct {
		h    Header
		want string
	}{
		{HeaderREG, "REG"},
		{HeaderOBS, "OBS"},
		{HeaderRLD, "RLD"},
		{Header(9), "Header(9)"},
	}
	for _, tt := range tests {
		if got := tt.h.String(); got != tt.want {
			t.Errorf("Header(%d).String() = %q, want %q", uint8(tt.h), got, tt.want)
		}
	}
	if Header(9).Valid() {
		t.Error("Header(9).Valid() = true, want false")
	}
}

func TestKey_Flag(t *testing.T) {
	want := map[Key]CommandFlags{KeyQ: 0x02, KeyW: 0x04, KeyO: 0x08, KeyP: 0x10}
	for k, f := range want {
		if got := k.Flag(); got != f {
			t.Errorf("%s.Flag() = %#x, want %#x", k, got, f)
		}
	}
}

func TestKeyStateFromFlags(t *testing.T) {
	ks := KeyStateFromFlags(CmdStep | CmdKeyQ | CmdKeyP)
	want := KeyState{true, false, false, true}
	if ks != want {
		t.Errorf("KeyStateFromFlags = %v, want %v", ks, want)
	}
	if got := ks.Flags(); got != CmdKeyQ|CmdKeyP {
		t.Errorf("Flags() = %#x, want %#x", got, CmdKeyQ|CmdKeyP)
	}
}

func TestCommandFlags_String(t *testing.T) {
	if got := (CmdStep | CmdKeyW | CmdDraw).String(); got != "STP|W|DRW" {
		t.Errorf("String() = %q, want %q", got, "STP|W|DRW")
	}
	if got := CommandFlags(0).String(); got != "NONE" {
		t.Errorf("String() = %q, want NONE", got)
	}
}

func TestParseImageFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    ImageFormat
		wantErr bool
	}{
		{"jpeg", ImageJPEG, false},
		{"JPG", ImageJPEG, false},
		{"png", ImagePNG, false},
		{"gif", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseImageFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseImageFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseImageFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestObservationFrame_Flags(t *testing.T) {
	f := ObservationFrame{Flags: ObsEnded | ObsSuccess}
	if !f.Ended() || !f.Success() {
		t.Errorf("Ended/Success = %v/%v, want true/true", f.Ended(), f.Success())
	}
	if PartRightThigh.String() != "rightThigh" {
		t.Errorf("PartRightThigh = %q", PartRightThigh.String())
	}
	if BodyParts[5] != PartLeftForearm {
		t.Errorf("BodyParts[5] = %v, want leftForearm", BodyParts[5])
	}
}

func TestVersion_IsSemver(t *testing.T) {
	core, _, _ := strings.Cut(Version, "-")
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		t.Fatalf("Version %q does not have three components", Version)
	}
	for _, p := range parts {
		if _, err := strconv.ParseUint(p, 10, 32); err != nil {
			t.Errorf("Version %q component %q is not numeric", Version, p)
		}
	}
	if ProtocolVersion < 1 {
		t.Errorf("ProtocolVersion = %d, want >= 1", ProtocolVersion)
	}
}
