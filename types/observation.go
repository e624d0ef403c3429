package types

import "fmt"

// BodyPart names one of the twelve tracked ragdoll segments.
type BodyPart int

// Body parts in wire order.
const (
	PartTorso BodyPart = iota
	PartHead
	PartLeftArm
	PartLeftCalf
	PartLeftFoot
	PartLeftForearm
	PartLeftThigh
	PartRightArm
	PartRightCalf
	PartRightFoot
	PartRightForearm
	PartRightThigh
)

// NumBodyParts is the number of tracked segments.
const NumBodyParts = 12

// BodyParts lists the segments in the fixed order observations encode them.
var BodyParts = [NumBodyParts]BodyPart{
	PartTorso, PartHead,
	PartLeftArm, PartLeftCalf, PartLeftFoot, PartLeftForearm, PartLeftThigh,
	PartRightArm, PartRightCalf, PartRightFoot, PartRightForearm, PartRightThigh,
}

var bodyPartNames = [NumBodyParts]string{
	"torso", "head",
	"leftArm", "leftCalf", "leftFoot", "leftForearm", "leftThigh",
	"rightArm", "rightCalf", "rightFoot", "rightForearm", "rightThigh",
}

// String returns the camel-case segment name.
func (p BodyPart) String() string {
	if p < 0 || int(p) >= NumBodyParts {
		return fmt.Sprintf("BodyPart(%d)", int(p))
	}
	return bodyPartNames[p]
}

// BodyPartSample is the kinematic state of one segment.
type BodyPartSample struct {
	X     float32 `json:"x" msgpack:"x"`
	Y     float32 `json:"y" msgpack:"y"`
	Angle float32 `json:"angle" msgpack:"angle"`
	VX    float32 `json:"vx" msgpack:"vx"`
	VY    float32 `json:"vy" msgpack:"vy"`
}

// Values returns the sample as (x, y, angle, vx, vy).
func (s BodyPartSample) Values() [5]float32 {
	return [5]float32{s.X, s.Y, s.Angle, s.VX, s.VY}
}

// ObservationFrame is the decoded content of an OBS message.
type ObservationFrame struct {
	Flags    ObsFlags                     `json:"flags" msgpack:"flags"`
	Time     float32                      `json:"time" msgpack:"time"`
	Distance float32                      `json:"distance" msgpack:"distance"`
	Parts    [NumBodyParts]BodyPartSample `json:"parts" msgpack:"parts"`
}

// Ended reports whether the episode ended.
func (f ObservationFrame) Ended() bool {
	return f.Flags.Has(ObsEnded)
}

// Success reports whether the episode ended successfully.
func (f ObservationFrame) Success() bool {
	return f.Flags.Has(ObsSuccess)
}

// Part returns the sample of segment p.
func (f ObservationFrame) Part(p BodyPart) BodyPartSample {
	return f.Parts[p]
}

// Command is the decoded content of a CMD message.
type Command struct {
	Flags CommandFlags
	// Stats is nil when the controller sent a flags-only command.
	Stats *CommandStats
}

// CommandStats is the optional diagnostic block of a command.
type CommandStats struct {
	Step        uint16  `json:"step"`
	Reward      float32 `json:"reward"`
	TotalReward float32 `json:"total_reward"`
}
