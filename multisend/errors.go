package multisend

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched with errors.Is against a *DecodeError
var (
	ErrNotExecTransaction = errors.New("not an execTransaction call")
	ErrABIDecode          = errors.New("abi decode error")
	ErrInvalidInput       = errors.New("invalid call data")
)

// ErrorKind classifies a fatal decode failure
type ErrorKind int

const (
	// KindNotProxyExecutionCall means the outer selector is not execTransaction
	KindNotProxyExecutionCall ErrorKind = iota + 1

	// KindAbiDecode means the head/tail parameter encoding is malformed
	KindAbiDecode

	// KindInvalidInput means the input could not be turned into bytes
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotProxyExecutionCall:
		return "NotProxyExecutionCall"
	case KindAbiDecode:
		return "AbiDecodeError"
	case KindInvalidInput:
		return "InvalidInput"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotProxyExecutionCall:
		return ErrNotExecTransaction
	case KindAbiDecode:
		return ErrABIDecode
	case KindInvalidInput:
		return ErrInvalidInput
	default:
		return nil
	}
}

// DecodeError is returned for every fatal decode failure. It carries the
// observed selector and the byte offset so callers can aggregate failures
// without re-parsing the input.
type DecodeError struct {
	Kind     ErrorKind
	Selector Selector
	Offset   int
	Cause    error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case KindNotProxyExecutionCall:
		return fmt.Sprintf("%s: selector %s", ErrNotExecTransaction, e.Selector)
	case KindAbiDecode:
		return fmt.Sprintf("%s at offset %d: %v", ErrABIDecode, e.Offset, e.Cause)
	default:
		if e.Cause == nil {
			return e.Kind.sentinel().Error()
		}
		return fmt.Sprintf("%s: %v", e.Kind.sentinel(), e.Cause)
	}
}

// Is matches the sentinel of the error's kind
func (e *DecodeError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

func abiDecodeError(offset int, cause error) *DecodeError {
	return &DecodeError{Kind: KindAbiDecode, Offset: offset, Cause: cause}
}

// DiagnosticKind classifies a non-fatal decode outcome
type DiagnosticKind int

const (
	// DiagInnerCallNotBatch means the inner call data is not a multiSend call
	DiagInnerCallNotBatch DiagnosticKind = iota + 1

	// DiagTruncatedRecord means the packed list ended inside a record
	DiagTruncatedRecord

	// DiagUnknownOperation means a record carries an operation other than CALL or DELEGATECALL
	DiagUnknownOperation
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagInnerCallNotBatch:
		return "InnerCallNotBatch"
	case DiagTruncatedRecord:
		return "TruncatedRecord"
	case DiagUnknownOperation:
		return "UnknownOperation"
	default:
		return fmt.Sprintf("DiagnosticKind(%d)", int(k))
	}
}

// Diagnostic is a non-fatal note produced while decoding
type Diagnostic struct {
	Kind     DiagnosticKind
	Selector Selector
	Offset   int
	Message  string
}

func (d Diagnostic) String() string {
	switch d.Kind {
	case DiagInnerCallNotBatch:
		return fmt.Sprintf("nested call is not a multiSend, actual selector: %s", d.Selector)
	default:
		return fmt.Sprintf("%s at offset %d: %s", d.Kind, d.Offset, d.Message)
	}
}

// Diagnostics is the ordered list of notes for one decode
type Diagnostics []Diagnostic

// Has reports whether any diagnostic of the given kind is present
func (ds Diagnostics) Has(kind DiagnosticKind) bool {
	_, ok := ds.First(kind)
	return ok
}

// First returns the first diagnostic of the given kind
func (ds Diagnostics) First(kind DiagnosticKind) (Diagnostic, bool) {
	for _, d := range ds {
		if d.Kind == kind {
			return d, true
		}
	}
	return Diagnostic{}, false
}

// Count returns the number of diagnostics of the given kind
func (ds Diagnostics) Count(kind DiagnosticKind) int {
	n := 0
	for _, d := range ds {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

func (ds Diagnostics) String() string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = d.String()
	}
	return strings.Join(parts, "; ")
}
