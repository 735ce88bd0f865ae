package executor

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/classbench/internal/imaging"
	"github.com/Brownie44l1/classbench/internal/model"
)

// Kind names a message crossing the executor boundary.
type Kind string

const (
	KindLoad     Kind = "LOAD"
	KindRun      Kind = "RUN"
	KindLoadDone Kind = "LOAD_DONE"
	KindRunDone  Kind = "RUN_DONE"
	KindError    Kind = "ERROR"
)

// Request is sent to the executor. Model is set for LOAD, Pixels for RUN.
type Request struct {
	ID     string
	Kind   Kind
	Model  model.Descriptor
	Pixels imaging.Grid
}

// Response echoes the request id and the model it concerns so that callers
// sharing one executor can correlate replies.
type Response struct {
	ID            string
	Kind          Kind
	Model         string
	Probabilities []float64
	ElapsedMS     float64
	Error         *ErrorPayload
}

// Code classifies an ERROR response.
type Code string

const (
	CodeModelLoad Code = "model_load"
	CodeNotLoaded Code = "not_loaded"
	CodeExecution Code = "execution"
	CodeContract  Code = "contract"
)

type ErrorPayload struct {
	Code    Code
	Message string
}

var (
	ErrModelLoad = errors.New("model load failed")
	ErrNotLoaded = errors.New("no model loaded")
	ErrExecution = errors.New("inference failed")
	// ErrContract reports input that violates the model tensor contract.
	ErrContract = errors.New("tensor contract violated")
	// ErrClosed is returned once the executor has shut down.
	ErrClosed = errors.New("executor closed")
)

// ModelLoadError wraps the cause of a failed LOAD.
type ModelLoadError struct {
	Model string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrModelLoad, e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

func (e *ModelLoadError) Is(target error) bool { return target == ErrModelLoad }

// Err converts an ERROR response back into a typed error. It returns nil for
// any other response kind.
func (r Response) Err() error {
	if r.Kind != KindError {
		return nil
	}
	p := r.Error
	if p == nil {
		p = &ErrorPayload{Code: CodeExecution, Message: "unspecified error"}
	}
	switch p.Code {
	case CodeModelLoad:
		return &ModelLoadError{Model: r.Model, Err: errors.New(p.Message)}
	case CodeNotLoaded:
		return fmt.Errorf("%w: %s", ErrNotLoaded, p.Message)
	case CodeContract:
		return fmt.Errorf("%w: %s", ErrContract, p.Message)
	default:
		return fmt.Errorf("%w: %s", ErrExecution, p.Message)
	}
}

func errorResponse(req Request, model string, code Code, err error) Response {
	return Response{
		ID:    req.ID,
		Kind:  KindError,
		Model: model,
		Error: &ErrorPayload{Code: code, Message: err.Error()},
	}
}

// IsSystemic reports whether err means the executor cannot serve further
// requests for the current model, as opposed to a failure of one input.
func IsSystemic(err error) bool {
	return errors.Is(err, ErrModelLoad) ||
		errors.Is(err, ErrNotLoaded) ||
		errors.Is(err, ErrContract) ||
		errors.Is(err, ErrClosed)
}
