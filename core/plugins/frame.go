package plugins

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/picman/core/errors"
	"github.com/FocuswithJustin/picman/core/pdb"
)

// signal is a one-shot broadcast. Firing it twice is harmless.
type signal struct {
	once sync.Once
	ch   chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

func (s *signal) fire() {
	s.once.Do(func() { close(s.ch) })
}

// C is closed once the signal fired.
func (s *signal) C() <-chan struct{} { return s.ch }

func (s *signal) fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// ErrorHandler decides who deals with a failed PDB call made by a plug-in.
type ErrorHandler int32

const (
	// ErrorHandlerInternal logs failures on the host.
	ErrorHandlerInternal ErrorHandler = iota
	// ErrorHandlerPlugIn leaves failures to the plug-in.
	ErrorHandlerPlugIn
)

type undoEntry struct {
	image Image
	id    int32
	depth int
}

type shadowEntry struct {
	drawable Drawable
	id       int32
}

// Frame is the state of one procedure call in flight inside a plug-in:
// the caller's context and progress, the return values once they arrive,
// and the resources to repair when the call is torn down.
//
// A Frame is reference counted. When the last reference goes away the
// cleanup runs, exactly once.
type Frame struct {
	ID        string
	Caller    pdb.Caller
	Procedure *Procedure

	owner *PlugIn
	refs  atomic.Int32
	done  *signal

	mu              sync.Mutex
	errorHandler    ErrorHandler
	vals            pdb.ValueArray
	got             bool
	contexts        []pdb.Context
	undo            []undoEntry
	shadows         []shadowEntry
	progressStarted bool

	cleanupOnce sync.Once
}

// newFrame creates a frame holding one reference.
func newFrame(owner *PlugIn, caller pdb.Caller, proc *Procedure) *Frame {
	f := &Frame{
		ID:        uuid.NewString(),
		Caller:    caller,
		Procedure: proc,
		owner:     owner,
		done:      newSignal(),
	}
	f.refs.Store(1)
	return f
}

// Ref takes a reference.
func (f *Frame) Ref() *Frame {
	f.refs.Add(1)
	return f
}

// Unref drops a reference and runs the cleanup when it was the last one.
func (f *Frame) Unref() {
	n := f.refs.Add(-1)
	if n == 0 {
		f.cleanupOnce.Do(f.cleanup)
	}
	if n < 0 {
		panic("plugins: frame released more often than referenced")
	}
}

// Refs returns the current reference count.
func (f *Frame) Refs() int32 { return f.refs.Load() }

// Done is closed when return values arrived or the plug-in went away.
func (f *Frame) Done() <-chan struct{} { return f.done.C() }

// finish stores the return values and wakes waiters. The first result
// wins; nil means the plug-in closed without answering.
func (f *Frame) finish(vals pdb.ValueArray) {
	f.mu.Lock()
	if !f.got && vals != nil {
		f.vals = vals
		f.got = true
	}
	f.mu.Unlock()
	f.done.fire()
}

// answer turns the parameters of a return message into a frame result.
// An empty return still counts as an answer.
func answer(params pdb.ValueArray) pdb.ValueArray {
	if params == nil {
		return pdb.ValueArray{}
	}
	return params
}

// cancel stores a synthetic Cancel result.
func (f *Frame) cancel() {
	f.finish(pdb.StatusValues(pdb.Cancel))
}

// returnValues builds the result a waiting caller sees. A plug-in that
// closed without answering yields an execution error, an answer without
// any value a calling error. A short successful answer is padded with
// zero values.
func (f *Frame) returnValues() (pdb.ValueArray, error) {
	f.mu.Lock()
	vals, got := f.vals, f.got
	f.mu.Unlock()

	var prog string
	if f.owner != nil {
		prog = f.owner.prog
	}
	if !got {
		err := errors.NewPlugIn(prog, "plug-in closed before returning values", errors.ErrPlugInClosed)
		return pdb.ReturnValues(nil, false, err), err
	}
	if len(vals) == 0 {
		var name string
		if f.Procedure != nil {
			name = f.Procedure.Name
		}
		err := pdb.Errorf(pdb.ErrInvalidReturnValue, "Procedure '%s' returned no return values", name)
		return pdb.ReturnValues(nil, false, err), err
	}

	out := append(pdb.ValueArray(nil), vals...)
	if pdb.StatusOf(out) == pdb.Success && f.Procedure != nil {
		for i := len(out) - 1; i < len(f.Procedure.Values); i++ {
			out = append(out, pdb.Zero(f.Procedure.Values[i].Type))
		}
	}
	return out, nil
}

// ErrorHandler returns the frame's error policy.
func (f *Frame) ErrorHandler() ErrorHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errorHandler
}

// SetErrorHandler changes the frame's error policy.
func (f *Frame) SetErrorHandler(h ErrorHandler) {
	f.mu.Lock()
	f.errorHandler = h
	f.mu.Unlock()
}

// Context returns the innermost pushed context, or the caller's.
func (f *Frame) Context() pdb.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := len(f.contexts); n > 0 {
		return f.contexts[n-1]
	}
	return f.Caller.Context
}

// PushContext makes ctx the current context of the frame.
func (f *Frame) PushContext(ctx pdb.Context) {
	f.mu.Lock()
	f.contexts = append(f.contexts, ctx)
	f.mu.Unlock()
}

// PopContext drops the current context. It fails when nothing was pushed.
func (f *Frame) PopContext() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.contexts) == 0 {
		return false
	}
	f.contexts = f.contexts[:len(f.contexts)-1]
	return true
}

// caller returns the caller with the current context applied.
func (f *Frame) caller() pdb.Caller {
	c := f.Caller
	c.Context = f.Context()
	return c
}
