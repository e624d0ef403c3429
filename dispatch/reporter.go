package dispatch

import (
	"errors"
	"strings"

	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/wire"
)

// FormatError renders err as the text of an ERR message. Recovered panics
// include their goroutine stack.
func FormatError(err error) string {
	var b strings.Builder
	b.WriteString(err.Error())
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) && len(dispatchErr.Stack) > 0 {
		b.WriteByte('\n')
		b.Write(dispatchErr.Stack)
	}
	return b.String()
}

// ErrorReporter converts dispatch failures into ERR messages.
type ErrorReporter struct {
	logger *log.Logger
}

// NewErrorReporter creates a reporter logging through logger.
func NewErrorReporter(logger *log.Logger) *ErrorReporter {
	if logger == nil {
		logger = log.Nop()
	}
	return &ErrorReporter{logger: logger}
}

// Report logs err and returns the ERR message that replaces the reply.
func (r *ErrorReporter) Report(err error) wire.Message {
	fields := map[string]any{"error": err.Error()}
	if stage, ok := StageOf(err); ok {
		fields["stage"] = string(stage)
	}
	if kind, ok := wire.DecodeErrorKindOf(err); ok {
		fields["decode_error"] = kind.String()
		r.logger.Warn("malformed command", fields)
	} else {
		r.logger.Error("command failed", fields)
	}
	return wire.EncodeError(FormatError(err))
}

// Reply returns the message to send for res, reporting failures.
func (r *ErrorReporter) Reply(res Result) wire.Message {
	if res.Err != nil {
		return r.Report(res.Err)
	}
	return res.Reply
}
