package pdb

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FocuswithJustin/picman/internal/logging"
)

// ParamSpec describes one argument or return value.
type ParamSpec struct {
	Type ValueType
	Name string
	Desc string
	// NoneOK allows -1 for object id types.
	NoneOK bool
	// HasRange enables the Min/Max check for numeric types.
	HasRange bool
	Min, Max float64
}

// Context is the caller's user state (active colors, brush, paint mode).
// The PDB threads it through calls and never looks inside.
type Context interface {
	Name() string
}

// Progress receives progress reports for a call. Cancelled is closed when
// the user asks to abort.
type Progress interface {
	Start(message string, cancellable bool)
	SetText(message string)
	SetValue(fraction float64)
	Pulse()
	End()
	IsActive() bool
	Cancelled() <-chan struct{}
}

// Caller bundles the state a procedure runs against.
type Caller struct {
	Context  Context
	Progress Progress
	// Display is the display a user-triggered run was started from, -1 if none.
	Display int32
}

// MarshalFunc implements an internal procedure. The returned array starts
// with a status. Returning a nil array with an error lets the PDB build the
// failure return values.
type MarshalFunc func(ctx context.Context, caller Caller, proc *Procedure, args ValueArray) (ValueArray, error)

// Executor runs procedures whose body lives outside the host process.
type Executor interface {
	Execute(ctx context.Context, caller Caller, proc *Procedure, args ValueArray) (ValueArray, error)
	ExecuteAsync(ctx context.Context, caller Caller, proc *Procedure, args ValueArray)
}

// Procedure is a callable registered in the PDB.
type Procedure struct {
	Name         string
	OriginalName string
	Type         ProcType

	Blurb     string
	Help      string
	Author    string
	Copyright string
	Date      string
	// Deprecated names the replacement procedure, or "NONE" when there is
	// none. Empty means not deprecated.
	Deprecated string

	Args   []ParamSpec
	Values []ParamSpec

	// Marshal is set for internal procedures.
	Marshal MarshalFunc
	// Executor is set for plug-in, extension and temporary procedures.
	Executor Executor
}

// CanonicalizeIdentifier turns a procedure name into its canonical form:
// underscores become dashes.
func CanonicalizeIdentifier(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// NewProcedure creates a procedure with a canonical name.
func NewProcedure(name string, procType ProcType) *Procedure {
	return &Procedure{
		Name:         CanonicalizeIdentifier(name),
		OriginalName: name,
		Type:         procType,
	}
}

// AddArgument appends an argument descriptor.
func (p *Procedure) AddArgument(spec ParamSpec) *Procedure {
	p.Args = append(p.Args, spec)
	return p
}

// AddReturnValue appends a return value descriptor.
func (p *Procedure) AddReturnValue(spec ParamSpec) *Procedure {
	p.Values = append(p.Values, spec)
	return p
}

// Success builds a successful return array from the given values.
func (p *Procedure) Success(values ...Value) ValueArray {
	return append(ValueArray{StatusValue(Success)}, values...)
}

// Execute validates args, runs the procedure and normalizes the result. The
// returned array is always well formed; err carries the diagnostic of a
// failed call.
func (p *Procedure) Execute(ctx context.Context, caller Caller, args ValueArray) (ValueArray, error) {
	start := time.Now()
	vals, err := p.execute(ctx, caller, args)
	logging.ProcedureCall(ctx, p.Name, StatusOf(vals).String(), time.Since(start))
	return vals, err
}

func (p *Procedure) execute(ctx context.Context, caller Caller, args ValueArray) (ValueArray, error) {
	args, err := p.ValidateArgs(args)
	if err != nil {
		return ReturnValues(p, false, err), err
	}

	var vals ValueArray
	switch {
	case p.Executor != nil:
		vals, err = p.Executor.Execute(ctx, caller, p, args)
	case p.Marshal != nil:
		vals, err = p.Marshal(ctx, caller, p, args)
	default:
		err = Errorf(ErrInternal, "Procedure '%s' has no implementation", p.Name)
	}

	if len(vals) == 0 {
		if err == nil {
			err = Errorf(ErrInvalidReturnValue, "Procedure '%s' returned no return values", p.Name)
		}
		return ReturnValues(p, false, err), err
	}

	switch StatusOf(vals) {
	case CallingError, ExecutionError:
		if err == nil {
			if msg := MessageOf(vals); msg != "" {
				err = Errorf(ErrFailed, "%s", msg)
			}
		}
	case Success:
		if verr := p.ValidateReturnValues(vals); verr != nil {
			return ReturnValues(p, false, verr), verr
		}
	}
	return vals, err
}

// ExecuteAsync starts the procedure without waiting for its return values.
// Internal procedures have no asynchronous form and run to completion.
func (p *Procedure) ExecuteAsync(ctx context.Context, caller Caller, args ValueArray) {
	args, err := p.ValidateArgs(args)
	if err != nil {
		logging.WarnContext(ctx, "async call rejected", "procedure", p.Name, "error", err)
		return
	}
	if p.Executor != nil {
		p.Executor.ExecuteAsync(ctx, caller, p, args)
		return
	}
	if _, err := p.execute(ctx, caller, args); err != nil {
		logging.WarnContext(ctx, "async call failed", "procedure", p.Name, "error", err)
	}
}

// ValidateArgs checks args against the declared arguments, coercing values
// whose storage class matches (INT32 to boolean, for instance). Surplus
// arguments are dropped.
func (p *Procedure) ValidateArgs(args ValueArray) (ValueArray, error) {
	if len(args) < len(p.Args) {
		return nil, Errorf(ErrInvalidArgument,
			"Procedure '%s' has been called with %d arguments, but it takes %d.",
			p.Name, len(args), len(p.Args))
	}
	out := make(ValueArray, len(p.Args))
	for i, spec := range p.Args {
		v, ok := args[i].Convert(spec.Type)
		if !ok {
			return nil, Errorf(ErrInvalidArgument,
				"Procedure '%s' has been called with a wrong type for argument #%d. Expected %s, got %s.",
				p.Name, i+1, spec.Type, args[i].Type)
		}
		if err := spec.check(v); err != nil {
			return nil, Errorf(ErrInvalidArgument, "Procedure '%s' has been called with %s for argument '%s' (#%d).",
				p.Name, err.Error(), spec.Name, i+1)
		}
		out[i] = v
	}
	return out, nil
}

// ValidateReturnValues checks a successful return array against the
// declared return values. Missing trailing values are tolerated.
func (p *Procedure) ValidateReturnValues(vals ValueArray) error {
	for i, spec := range p.Values {
		if i+1 >= len(vals) {
			break
		}
		v, ok := vals[i+1].Convert(spec.Type)
		if !ok {
			return Errorf(ErrInvalidReturnValue,
				"Procedure '%s' returned a wrong value type for return value '%s' (#%d). Expected %s, got %s.",
				p.Name, spec.Name, i+1, spec.Type, vals[i+1].Type)
		}
		if err := spec.check(v); err != nil {
			return Errorf(ErrInvalidReturnValue, "Procedure '%s' returned %s for return value '%s' (#%d).",
				p.Name, err.Error(), spec.Name, i+1)
		}
		vals[i+1] = v
	}
	return nil
}

func (s ParamSpec) check(v Value) error {
	switch {
	case s.Type.IsObjectID():
		if v.Int < 0 && !s.NoneOK {
			return fmt.Errorf("an invalid ID")
		}
	case s.Type == ValueString:
		if !utf8.ValidString(v.Str) {
			return fmt.Errorf("an invalid UTF-8 string")
		}
	case s.Type == ValueInt8:
		if v.Int < 0 || v.Int > 255 {
			return fmt.Errorf("value '%d' which is out of range", v.Int)
		}
	case s.Type == ValueInt16:
		if v.Int < -32768 || v.Int > 32767 {
			return fmt.Errorf("value '%d' which is out of range", v.Int)
		}
	}
	if s.HasRange {
		var n float64
		switch s.Type {
		case ValueFloat:
			n = v.Float
		case ValueInt32, ValueInt16, ValueInt8, ValueEnum:
			n = float64(v.Int)
		default:
			return nil
		}
		if n < s.Min || n > s.Max {
			return fmt.Errorf("value '%g' which is out of range", n)
		}
	}
	return nil
}
