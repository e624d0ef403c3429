package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("client", "sess-001")

	c.IncRegistration()
	c.IncRejection()
	c.IncRejection()
	c.IncReload()
	c.IncCommand()
	c.IncCommand()
	c.IncCommand()
	c.AddSteps(3)
	c.AddSteps(2)
	c.IncObservation()
	c.IncImage()
	c.IncDecodeError()
	c.IncDispatchError()
	c.IncForwarded()
	c.IncRecordWriteSuccess()
	c.IncRecordWriteFailure()

	s := c.Snapshot()

	if s.Registrations != 1 {
		t.Errorf("Registrations = %d, want 1", s.Registrations)
	}
	if s.Rejections != 2 {
		t.Errorf("Rejections = %d, want 2", s.Rejections)
	}
	if s.Reloads != 1 {
		t.Errorf("Reloads = %d, want 1", s.Reloads)
	}
	if s.Commands != 3 {
		t.Errorf("Commands = %d, want 3", s.Commands)
	}
	if s.Steps != 5 {
		t.Errorf("Steps = %d, want 5", s.Steps)
	}
	if s.Observations != 1 || s.Images != 1 {
		t.Errorf("Observations/Images = %d/%d, want 1/1", s.Observations, s.Images)
	}
	if s.DecodeErrors != 1 || s.DispatchErrors != 1 {
		t.Errorf("DecodeErrors/DispatchErrors = %d/%d, want 1/1", s.DecodeErrors, s.DispatchErrors)
	}
	if s.Forwarded != 1 {
		t.Errorf("Forwarded = %d, want 1", s.Forwarded)
	}
	if s.RecordWriteSuccess != 1 || s.RecordWriteFailure != 1 {
		t.Errorf("RecordWrite = %d/%d, want 1/1", s.RecordWriteSuccess, s.RecordWriteFailure)
	}
}

func TestCollector_Dimensions(t *testing.T) {
	s := NewCollector("relay", "sess-xyz").Snapshot()
	if s.Role != "relay" {
		t.Errorf("Role = %q, want %q", s.Role, "relay")
	}
	if s.SessionID != "sess-xyz" {
		t.Errorf("SessionID = %q, want %q", s.SessionID, "sess-xyz")
	}
}

func TestCollector_ProtocolViolations(t *testing.T) {
	c := NewCollector("relay", "")
	c.IncProtocolViolation("OBS")
	c.IncProtocolViolation("OBS")
	c.IncProtocolViolation("ACK")

	s := c.Snapshot()
	if s.ProtocolViolations != 3 {
		t.Errorf("ProtocolViolations = %d, want 3", s.ProtocolViolations)
	}
	if s.ViolationsByHeader["OBS"] != 2 {
		t.Errorf("ViolationsByHeader[OBS] = %d, want 2", s.ViolationsByHeader["OBS"])
	}

	// Mutating the snapshot must not affect the collector.
	s.ViolationsByHeader["OBS"] = 99
	if got := c.Snapshot().ViolationsByHeader["OBS"]; got != 2 {
		t.Errorf("collector mutated through snapshot: got %d, want 2", got)
	}
}

func TestCollector_NilReceiver(t *testing.T) {
	var c *Collector

	// Must not panic.
	c.IncRegistration()
	c.IncRejection()
	c.IncReload()
	c.IncCommand()
	c.AddSteps(4)
	c.IncObservation()
	c.IncImage()
	c.IncDecodeError()
	c.IncDispatchError()
	c.IncForwarded()
	c.IncProtocolViolation("REG")
	c.IncRecordWriteSuccess()
	c.IncRecordWriteFailure()

	if s := c.Snapshot(); s.Commands != 0 {
		t.Errorf("nil Snapshot().Commands = %d, want 0", s.Commands)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("client", "")
	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range perGoroutine {
				c.IncCommand()
				c.AddSteps(1)
				c.IncProtocolViolation("LOG")
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * perGoroutine)
	if s.Commands != want {
		t.Errorf("Commands = %d, want %d", s.Commands, want)
	}
	if s.Steps != want {
		t.Errorf("Steps = %d, want %d", s.Steps, want)
	}
	if s.ViolationsByHeader["LOG"] != want {
		t.Errorf("ViolationsByHeader[LOG] = %d, want %d", s.ViolationsByHeader["LOG"], want)
	}
}
