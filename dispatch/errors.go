package dispatch

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Stage names the dispatch step that failed.
type Stage string

// Dispatch stages in application order.
const (
	StageDecode  Stage = "decode"
	StageReset   Stage = "reset"
	StageKeys    Stage = "keys"
	StageStep    Stage = "step"
	StageDraw    Stage = "draw"
	StageImage   Stage = "image"
	StageObserve Stage = "observe"
)

// DispatchError reports a failure while applying one command.
// Mutations applied by earlier stages remain in effect.
type DispatchError struct {
	Stage Stage
	Err   error
	// Stack is set when the failure was a recovered panic.
	Stack []byte
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of a wrapped *DispatchError.
func StageOf(err error) (Stage, bool) {
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		return dispatchErr.Stage, true
	}
	return "", false
}

// PanicError is the error recorded for a recovered panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// guard runs fn, converting a returned error or a panic into a *DispatchError.
func guard(stage Stage, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DispatchError{Stage: stage, Err: &PanicError{Value: r}, Stack: debug.Stack()}
		}
	}()
	if err := fn(); err != nil {
		return &DispatchError{Stage: stage, Err: err}
	}
	return nil
}
