// Package types defines the protocol enumerations and value types shared by
// the simulation client, the relay and the controller.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// Header is the leading byte of every wire message.
type Header uint8

// Header values. The set is closed.
const (
	// HeaderREG is a registration request (either direction). Payload: role (uint8).
	HeaderREG Header = 0
	// HeaderACK acknowledges a registration or a reload. Empty payload.
	HeaderACK Header = 1
	// HeaderREJ rejects a registration. Empty payload.
	HeaderREJ Header = 2
	// HeaderCMD is a controller command. Payload: flags (uint8) + optional stats.
	HeaderCMD Header = 3
	// HeaderOBS is an observation reply. Payload: flags, time, distance, 60 floats.
	HeaderOBS Header = 4
	// HeaderIMG is an image reply. Payload: format (uint8) + encoded image.
	HeaderIMG Header = 5
	// HeaderLOG carries a UTF-8 log line from the simulation client.
	HeaderLOG Header = 6
	// HeaderERR carries a UTF-8 error report in place of a reply.
	HeaderERR Header = 7
	// HeaderRLD asks the relay to restart the simulation. Payload: seed (uint32).
	HeaderRLD Header = 8
)

var headerNames = [...]string{"REG", "ACK", "REJ", "CMD", "OBS", "IMG", "LOG", "ERR", "RLD"}

// Valid reports whether h is one of the defined headers.
func (h Header) Valid() bool {
	return int(h) < len(headerNames)
}

// String returns the three-letter mnemonic of the header.
func (h Header) String() string {
	if !h.Valid() {
		return fmt.Sprintf("Header(%d)", uint8(h))
	}
	return headerNames[h]
}

// Role identifies the peer kind carried in a registration request.
type Role uint8

// Registration roles.
const (
	// RoleClient is the simulation client (the side that executes commands).
	RoleClient Role = 0
	// RoleController is the side that issues commands and consumes observations.
	RoleController Role = 1
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleController
}

// String returns the role name used in logs.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleController:
		return "controller"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// CommandFlags is the bit mask carried by a CMD message.
type CommandFlags uint8

// Command flag bits.
const (
	CmdStep  CommandFlags = 1 << 0 // advance the simulation
	CmdKeyQ  CommandFlags = 1 << 1
	CmdKeyW  CommandFlags = 1 << 2
	CmdKeyO  CommandFlags = 1 << 3
	CmdKeyP  CommandFlags = 1 << 4
	CmdReset CommandFlags = 1 << 5 // release all keys and restart the episode
	CmdImage CommandFlags = 1 << 6 // reply with an image instead of an observation
	CmdDraw  CommandFlags = 1 << 7 // render the current frame
)

// Has reports whether every bit of f is set.
func (c CommandFlags) Has(f CommandFlags) bool {
	return c&f == f
}

// String lists the set bits, e.g. "STP|Q|P".
func (c CommandFlags) String() string {
	if c == 0 {
		return "NONE"
	}
	names := []struct {
		flag CommandFlags
		name string
	}{
		{CmdStep, "STP"}, {CmdKeyQ, "Q"}, {CmdKeyW, "W"}, {CmdKeyO, "O"},
		{CmdKeyP, "P"}, {CmdReset, "RST"}, {CmdImage, "IMG"}, {CmdDraw, "DRW"},
	}
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if c.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Key is one of the four virtual keys.
type Key int

// Virtual keys, in flag-bit order.
const (
	KeyQ Key = iota
	KeyW
	KeyO
	KeyP
)

// Keys lists all virtual keys in flag-bit order.
var Keys = [4]Key{KeyQ, KeyW, KeyO, KeyP}

// Flag returns the command bit that presses k.
func (k Key) Flag() CommandFlags {
	return CmdKeyQ << CommandFlags(k)
}

// String returns the key letter.
func (k Key) String() string {
	switch k {
	case KeyQ:
		return "Q"
	case KeyW:
		return "W"
	case KeyO:
		return "O"
	case KeyP:
		return "P"
	default:
		return fmt.Sprintf("Key(%d)", int(k))
	}
}

// KeyState holds the pressed state of each key, indexed by Key.
type KeyState [4]bool

// KeyStateFromFlags derives the key state a command prescribes.
// Absent bits mean released; there is no "unchanged" outcome.
func KeyStateFromFlags(c CommandFlags) KeyState {
	var ks KeyState
	for _, k := range Keys {
		ks[k] = c.Has(k.Flag())
	}
	return ks
}

// Flags converts the key state back into command bits.
func (ks KeyState) Flags() CommandFlags {
	var c CommandFlags
	for _, k := range Keys {
		if ks[k] {
			c |= k.Flag()
		}
	}
	return c
}

// ObsFlags is the flags byte of an observation.
type ObsFlags uint8

// Observation flag bits.
const (
	ObsPass    ObsFlags = 1 << 0 // reserved: consumer should not act on this observation
	ObsEnded   ObsFlags = 1 << 1 // episode has ended
	ObsSuccess ObsFlags = 1 << 2 // episode ended successfully
)

// Has reports whether every bit of f is set.
func (o ObsFlags) Has(f ObsFlags) bool {
	return o&f == f
}

// ImageFormat tags the encoding of an IMG payload.
type ImageFormat uint8

// Image formats.
const (
	ImageJPEG ImageFormat = 0
	ImagePNG  ImageFormat = 1
)

// Valid reports whether f is a known image format.
func (f ImageFormat) Valid() bool {
	return f == ImageJPEG || f == ImagePNG
}

// String returns the lowercase format name.
func (f ImageFormat) String() string {
	switch f {
	case ImageJPEG:
		return "jpeg"
	case ImagePNG:
		return "png"
	default:
		return fmt.Sprintf("ImageFormat(%d)", uint8(f))
	}
}

// ContentType returns the MIME type of the format.
func (f ImageFormat) ContentType() string {
	if f == ImagePNG {
		return "image/png"
	}
	return "image/jpeg"
}

// ParseImageFormat parses "jpeg", "jpg" or "png".
func ParseImageFormat(s string) (ImageFormat, error) {
	switch strings.ToLower(s) {
	case "jpeg", "jpg", "":
		return ImageJPEG, nil
	case "png":
		return ImagePNG, nil
	default:
		return 0, fmt.Errorf("invalid image format: %q (must be jpeg or png)", s)
	}
}

// ConnectionState is the lifecycle state of a simulation client connection.
type ConnectionState int32

// Connection states.
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateRegistered
)

// String returns the state name used in logs.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRegistered:
		return "registered"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int32(s))
	}
}
