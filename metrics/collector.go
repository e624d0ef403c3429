// Package metrics provides protocol counters for a simulation client or relay.
//
// The Collector is a leaf package with no internal dependencies. All
// increment methods are nil-receiver safe so callers may run without one.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Handshake
	Registrations int64 `json:"registrations"`
	Rejections    int64 `json:"rejections"`
	Reloads       int64 `json:"reloads"`

	// Dispatch
	Commands       int64 `json:"commands"`
	Steps          int64 `json:"steps"`
	Observations   int64 `json:"observations"`
	Images         int64 `json:"images"`
	DecodeErrors   int64 `json:"decode_errors"`
	DispatchErrors int64 `json:"dispatch_errors"`

	// Relay
	Forwarded          int64            `json:"forwarded"`
	ProtocolViolations int64            `json:"protocol_violations"`
	ViolationsByHeader map[string]int64 `json:"violations_by_header,omitempty"`

	// Recording (per write call, not per record)
	RecordWriteSuccess int64 `json:"record_write_success"`
	RecordWriteFailure int64 `json:"record_write_failure"`

	// Dimensions (informational, set at construction)
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

// Collector accumulates counters for one process role.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	registrations int64
	rejections    int64
	reloads       int64

	commands       int64
	steps          int64
	observations   int64
	images         int64
	decodeErrors   int64
	dispatchErrors int64

	forwarded          int64
	protocolViolations int64
	violationsByHeader map[string]int64

	recordWriteSuccess int64
	recordWriteFailure int64

	role      string
	sessionID string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(role, sessionID string) *Collector {
	return &Collector{
		violationsByHeader: make(map[string]int64),
		role:               role,
		sessionID:          sessionID,
	}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Handshake ---

// IncRegistration records an acknowledged registration.
func (c *Collector) IncRegistration() {
	if c == nil {
		return
	}
	c.add(&c.registrations, 1)
}

// IncRejection records a rejected registration.
func (c *Collector) IncRejection() {
	if c == nil {
		return
	}
	c.add(&c.rejections, 1)
}

// IncReload records a simulation reload.
func (c *Collector) IncReload() {
	if c == nil {
		return
	}
	c.add(&c.reloads, 1)
}

// --- Dispatch ---

// IncCommand records one inbound command, whatever its outcome.
func (c *Collector) IncCommand() {
	if c == nil {
		return
	}
	c.add(&c.commands, 1)
}

// AddSteps records n simulation timesteps.
func (c *Collector) AddSteps(n int) {
	if c == nil {
		return
	}
	c.add(&c.steps, int64(n))
}

// IncObservation records an OBS reply.
func (c *Collector) IncObservation() {
	if c == nil {
		return
	}
	c.add(&c.observations, 1)
}

// IncImage records an IMG reply.
func (c *Collector) IncImage() {
	if c == nil {
		return
	}
	c.add(&c.images, 1)
}

// IncDecodeError records a malformed command payload.
func (c *Collector) IncDecodeError() {
	if c == nil {
		return
	}
	c.add(&c.decodeErrors, 1)
}

// IncDispatchError records a failure while applying a command.
func (c *Collector) IncDispatchError() {
	if c == nil {
		return
	}
	c.add(&c.dispatchErrors, 1)
}

// --- Relay ---

// IncForwarded records a message relayed to the other peer.
func (c *Collector) IncForwarded() {
	if c == nil {
		return
	}
	c.add(&c.forwarded, 1)
}

// IncProtocolViolation records an unexpected message, keyed by its header name.
func (c *Collector) IncProtocolViolation(header string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.protocolViolations++
	c.violationsByHeader[header]++
	c.mu.Unlock()
}

// --- Recording ---

// IncRecordWriteSuccess records a successful dataset write call.
func (c *Collector) IncRecordWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.recordWriteSuccess, 1)
}

// IncRecordWriteFailure records a failed dataset write call.
func (c *Collector) IncRecordWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.recordWriteFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
// The Collector can continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byHeader := make(map[string]int64, len(c.violationsByHeader))
	for k, v := range c.violationsByHeader {
		byHeader[k] = v
	}

	return Snapshot{
		Registrations: c.registrations,
		Rejections:    c.rejections,
		Reloads:       c.reloads,

		Commands:       c.commands,
		Steps:          c.steps,
		Observations:   c.observations,
		Images:         c.images,
		DecodeErrors:   c.decodeErrors,
		DispatchErrors: c.dispatchErrors,

		Forwarded:          c.forwarded,
		ProtocolViolations: c.protocolViolations,
		ViolationsByHeader: byHeader,

		RecordWriteSuccess: c.recordWriteSuccess,
		RecordWriteFailure: c.recordWriteFailure,

		Role:      c.role,
		SessionID: c.sessionID,
	}
}
