package recording

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Trace frame limits.
const (
	// LengthPrefixSize is the size of the big-endian frame length prefix.
	LengthPrefixSize = 4
	// MaxTraceFrameSize bounds a single frame payload (1 MiB).
	MaxTraceFrameSize = 1 << 20
)

// TraceStep is one frame of an episode trace sidecar.
type TraceStep struct {
	Step        int       `msgpack:"step"`
	Action      int       `msgpack:"action"`
	Keys        uint8     `msgpack:"keys"`
	Reward      float32   `msgpack:"reward"`
	TotalReward float32   `msgpack:"total_reward"`
	Time        float32   `msgpack:"time"`
	Distance    float32   `msgpack:"distance"`
	Terminated  bool      `msgpack:"terminated"`
	Observation []float32 `msgpack:"obs,omitempty"`
}

// TraceErrorKind classifies trace decoding errors.
type TraceErrorKind int

const (
	// TraceErrorPartial is a truncated frame.
	TraceErrorPartial TraceErrorKind = iota
	// TraceErrorTooLarge is a frame over MaxTraceFrameSize.
	TraceErrorTooLarge
	// TraceErrorDecode is a msgpack decoding failure.
	TraceErrorDecode
)

// TraceError is a trace framing or decoding error.
type TraceError struct {
	Kind TraceErrorKind
	Msg  string
	Err  error
}

func (e *TraceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *TraceError) Unwrap() error {
	return e.Err
}

// IsTraceError reports whether err is a *TraceError.
func IsTraceError(err error) bool {
	var te *TraceError
	return errors.As(err, &te)
}

// TraceEncoder writes length-prefixed msgpack frames.
type TraceEncoder struct {
	w *bufio.Writer
}

// NewTraceEncoder creates an encoder writing to w.
func NewTraceEncoder(w io.Writer) *TraceEncoder {
	return &TraceEncoder{w: bufio.NewWriter(w)}
}

// Encode writes one frame.
func (e *TraceEncoder) Encode(step TraceStep) error {
	payload, err := msgpack.Marshal(&step)
	if err != nil {
		return fmt.Errorf("encode trace step %d: %w", step.Step, err)
	}
	if len(payload) > MaxTraceFrameSize {
		return &TraceError{
			Kind: TraceErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxTraceFrameSize),
		}
	}
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := e.w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = e.w.Write(payload)
	return err
}

// Flush writes any buffered frames.
func (e *TraceEncoder) Flush() error {
	return e.w.Flush()
}

// TraceDecoder reads frames written by TraceEncoder.
type TraceDecoder struct {
	r io.Reader
}

// NewTraceDecoder creates a decoder reading from r.
func NewTraceDecoder(r io.Reader) *TraceDecoder {
	return &TraceDecoder{r: r}
}

// Next returns the next step. io.EOF means the trace ended cleanly.
func (d *TraceDecoder) Next() (TraceStep, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.r, prefix[:]); err != nil {
		if err == io.EOF {
			return TraceStep{}, io.EOF
		}
		return TraceStep{}, &TraceError{Kind: TraceErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxTraceFrameSize {
		return TraceStep{}, &TraceError{
			Kind: TraceErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", size, MaxTraceFrameSize),
		}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return TraceStep{}, &TraceError{Kind: TraceErrorPartial, Msg: "failed to read payload", Err: err}
	}

	var step TraceStep
	if err := msgpack.Unmarshal(payload, &step); err != nil {
		return TraceStep{}, &TraceError{Kind: TraceErrorDecode, Msg: "failed to decode trace step", Err: err}
	}
	return step, nil
}

// All drains the decoder.
func (d *TraceDecoder) All() ([]TraceStep, error) {
	var steps []TraceStep
	for {
		step, err := d.Next()
		if err == io.EOF {
			return steps, nil
		}
		if err != nil {
			return steps, err
		}
		steps = append(steps, step)
	}
}
