package pdb

import (
	"errors"
	"fmt"
)

// Status is the first return value of every procedure call.
type Status int32

const (
	ExecutionError Status = iota
	CallingError
	PassThrough
	Success
	Cancel
)

func (s Status) String() string {
	switch s {
	case ExecutionError:
		return "execution-error"
	case CallingError:
		return "calling-error"
	case PassThrough:
		return "pass-through"
	case Success:
		return "success"
	case Cancel:
		return "cancel"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// ProcType classifies a procedure.
type ProcType int32

const (
	Internal ProcType = iota
	PlugIn
	Extension
	Temporary
)

func (t ProcType) String() string {
	switch t {
	case Internal:
		return "Internal PICMAN procedure"
	case PlugIn:
		return "PICMAN Plug-In"
	case Extension:
		return "PICMAN Extension"
	case Temporary:
		return "Temporary Procedure"
	}
	return fmt.Sprintf("proc-type(%d)", int32(t))
}

// ErrorCode classifies a PDB error.
type ErrorCode int

const (
	ErrFailed ErrorCode = iota
	ErrCancelled
	ErrProcedureNotFound
	ErrInvalidArgument
	ErrInvalidReturnValue
	ErrInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrFailed:
		return "failed"
	case ErrCancelled:
		return "cancelled"
	case ErrProcedureNotFound:
		return "procedure-not-found"
	case ErrInvalidArgument:
		return "invalid-argument"
	case ErrInvalidReturnValue:
		return "invalid-return-value"
	case ErrInternal:
		return "internal-error"
	}
	return fmt.Sprintf("error-code(%d)", int(c))
}

// Error is an error raised by the PDB itself, as opposed to one a callee
// reports. PDB errors map to CallingError, except ErrCancelled which maps
// to Cancel.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return e.Message }

// Errorf builds a PDB error.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err is a PDB error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// StatusForError returns the status a failed call reports for err.
func StatusForError(err error) Status {
	var e *Error
	if errors.As(err, &e) {
		if e.Code == ErrCancelled {
			return Cancel
		}
		return CallingError
	}
	return ExecutionError
}

// StatusOf returns the status carried by a return value array, or
// ExecutionError when the array is malformed.
func StatusOf(vals ValueArray) Status {
	if len(vals) == 0 || vals[0].Type != ValueStatus {
		return ExecutionError
	}
	return Status(vals[0].Int)
}

// MessageOf returns the diagnostic string a failed call carries as its
// second return value, if any.
func MessageOf(vals ValueArray) string {
	if len(vals) > 1 && vals[1].Type == ValueString {
		return vals[1].Str
	}
	return ""
}

// StatusValues returns a return array holding only a status.
func StatusValues(s Status) ValueArray {
	return ValueArray{StatusValue(s)}
}

// ReturnValues builds the return array of a call. On success it holds the
// status followed by the zero value of every declared return value; on
// failure the status derived from err and, when err is set, its message.
// proc may be nil.
func ReturnValues(proc *Procedure, success bool, err error) ValueArray {
	if success {
		vals := ValueArray{StatusValue(Success)}
		if proc != nil {
			for _, spec := range proc.Values {
				vals = append(vals, Zero(spec.Type))
			}
		}
		return vals
	}
	if err == nil {
		return StatusValues(ExecutionError)
	}
	return ValueArray{StatusValue(StatusForError(err)), String(err.Error())}
}
