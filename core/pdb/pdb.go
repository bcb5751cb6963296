// Package pdb implements the procedure database: a name-keyed registry of
// callable procedures with override chains, pass-through dispatch and a
// table of deprecated-name aliases.
package pdb

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/FocuswithJustin/picman/internal/logging"
)

// CompatMode controls how deprecated procedures are treated.
type CompatMode int

const (
	// CompatOff drops deprecated procedures and skips the alias table.
	CompatOff CompatMode = iota
	// CompatOn keeps deprecated procedures callable.
	CompatOn
	// CompatWarn keeps them callable and logs every use.
	CompatWarn
)

// ParseCompatMode maps "off", "on" and "warn" to a CompatMode.
func ParseCompatMode(s string) (CompatMode, error) {
	switch s {
	case "off":
		return CompatOff, nil
	case "on", "":
		return CompatOn, nil
	case "warn":
		return CompatWarn, nil
	}
	return CompatOn, fmt.Errorf("unknown compat mode %q", s)
}

func (m CompatMode) String() string {
	switch m {
	case CompatOff:
		return "off"
	case CompatWarn:
		return "warn"
	}
	return "on"
}

// EventKind enumerates PDB notifications.
type EventKind int

const (
	EventRegistered EventKind = iota
	EventUnregistered
)

func (k EventKind) String() string {
	if k == EventRegistered {
		return "registered"
	}
	return "unregistered"
}

// Event is delivered to observers after the registry changed.
type Event struct {
	Kind      EventKind
	Procedure *Procedure
}

// Observer receives PDB events. It runs on the goroutine that changed the
// registry and must not block.
type Observer func(Event)

// PDB is the procedure database.
type PDB struct {
	mu         sync.RWMutex
	procedures map[string][]*Procedure
	compat     map[string]string
	compatMode CompatMode

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int

	tempID atomic.Int64
}

// New creates an empty PDB.
func New(mode CompatMode) *PDB {
	return &PDB{
		procedures: make(map[string][]*Procedure),
		compat:     make(map[string]string),
		compatMode: mode,
		observers:  make(map[int]Observer),
	}
}

// CompatMode returns the deprecated-procedure policy.
func (p *PDB) CompatMode() CompatMode { return p.compatMode }

// Subscribe registers an observer and returns a function that removes it.
func (p *PDB) Subscribe(fn Observer) func() {
	p.obsMu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.obsMu.Unlock()
	return func() {
		p.obsMu.Lock()
		delete(p.observers, id)
		p.obsMu.Unlock()
	}
}

func (p *PDB) emit(ev Event) {
	p.obsMu.Lock()
	ids := make([]int, 0, len(p.observers))
	for id := range p.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Observer, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.observers[id])
	}
	p.obsMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Register prepends proc to the list stored under its name, so it is tried
// before earlier registrations. Deprecated procedures are skipped when
// compat mode is off.
func (p *PDB) Register(proc *Procedure) {
	if proc.Deprecated != "" && p.compatMode == CompatOff {
		return
	}
	p.mu.Lock()
	p.procedures[proc.Name] = append([]*Procedure{proc}, p.procedures[proc.Name]...)
	p.mu.Unlock()
	p.emit(Event{Kind: EventRegistered, Procedure: proc})
}

// Unregister removes proc from its name's list.
func (p *PDB) Unregister(proc *Procedure) {
	p.mu.Lock()
	list, ok := p.procedures[proc.Name]
	if !ok {
		p.mu.Unlock()
		return
	}
	idx := -1
	for i, candidate := range list {
		if candidate == proc {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return
	}
	rest := append(append([]*Procedure(nil), list[:idx]...), list[idx+1:]...)
	delete(p.procedures, proc.Name)
	if len(rest) > 0 {
		p.procedures[rest[0].Name] = rest
	}
	p.mu.Unlock()
	p.emit(Event{Kind: EventUnregistered, Procedure: proc})
}

// Lookup returns the most recently registered procedure for name, or nil.
func (p *PDB) Lookup(name string) *Procedure {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if list := p.procedures[name]; len(list) > 0 {
		return list[0]
	}
	return nil
}

// Candidates returns every procedure registered under name, newest first.
func (p *PDB) Candidates(name string) []*Procedure {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*Procedure(nil), p.procedures[name]...)
}

// RegisterCompatName records a one-way alias from a deprecated name.
func (p *PDB) RegisterCompatName(oldName, newName string) {
	p.mu.Lock()
	p.compat[oldName] = newName
	p.mu.Unlock()
}

// LookupCompatName returns the current name for a deprecated one. Lookup
// never consults this table on its own.
func (p *PDB) LookupCompatName(oldName string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.compat[oldName]
	return n, ok
}

// ExecuteByName runs the procedure registered under name. When a candidate
// answers PassThrough and an older registration exists, the older one is
// tried next with the same arguments.
func (p *PDB) ExecuteByName(ctx context.Context, caller Caller, name string, args ValueArray) (ValueArray, error) {
	candidates := p.Candidates(name)
	if len(candidates) == 0 {
		err := Errorf(ErrProcedureNotFound, "Procedure '%s' not found", name)
		return ReturnValues(nil, false, err), err
	}

	var (
		vals ValueArray
		err  error
	)
	for i, proc := range candidates {
		vals, err = proc.Execute(ctx, caller, args)
		if StatusOf(vals) != PassThrough || i+1 == len(candidates) {
			break
		}
	}
	return vals, err
}

// Run is ExecuteByName with variadic arguments.
func (p *PDB) Run(ctx context.Context, caller Caller, name string, args ...Value) (ValueArray, error) {
	return p.ExecuteByName(ctx, caller, name, ValueArray(args))
}

// ProcInfo returns the procedure for name, resolving deprecated aliases when
// name itself is unknown.
func (p *PDB) ProcInfo(name string) (*Procedure, error) {
	if proc := p.Lookup(name); proc != nil {
		return proc, nil
	}
	if p.compatMode != CompatOff {
		if newName, ok := p.LookupCompatName(name); ok {
			if proc := p.Lookup(newName); proc != nil {
				return proc, nil
			}
		}
	}
	return nil, Errorf(ErrProcedureNotFound, "Procedure '%s' not found", name)
}

// Exists reports whether name (or its alias) resolves to a procedure.
func (p *PDB) Exists(name string) bool {
	_, err := p.ProcInfo(name)
	return err == nil
}

// TempName returns a fresh name for a temporary procedure.
func (p *PDB) TempName() string {
	return fmt.Sprintf("temp-procedure-number-%d", p.tempID.Add(1))
}

// Names returns every registered name, sorted.
func (p *PDB) Names() []string {
	p.mu.RLock()
	names := make([]string, 0, len(p.procedures))
	for name := range p.procedures {
		names = append(names, name)
	}
	p.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Query holds regular expressions matched against procedure metadata. An
// empty field matches everything.
type Query struct {
	Name, Blurb, Help, Author, Copyright, Date, ProcType string
}

// Query returns the sorted names of procedures whose metadata matches q.
// Deprecated aliases match by name and report their own name.
func (p *PDB) Query(q Query) ([]string, error) {
	fields := []string{q.Name, q.Blurb, q.Help, q.Author, q.Copyright, q.Date, q.ProcType}
	res := make([]*regexp.Regexp, len(fields))
	for i, f := range fields {
		if f == "" {
			f = ".*"
		}
		re, err := regexp.Compile(f)
		if err != nil {
			return nil, Errorf(ErrInvalidArgument, "invalid query pattern %q: %v", f, err)
		}
		res[i] = re
	}

	match := func(name string, proc *Procedure) bool {
		values := []string{name, proc.Blurb, proc.Help, proc.Author, proc.Copyright, proc.Date, proc.Type.String()}
		for i, v := range values {
			if !res[i].MatchString(v) {
				return false
			}
		}
		return true
	}

	p.mu.RLock()
	var names []string
	for name, list := range p.procedures {
		if len(list) > 0 && match(name, list[0]) {
			names = append(names, name)
		}
	}
	if p.compatMode != CompatOff {
		for oldName, newName := range p.compat {
			if list := p.procedures[newName]; len(list) > 0 && match(oldName, list[0]) {
				names = append(names, oldName)
			}
		}
	}
	p.mu.RUnlock()

	sort.Strings(names)
	return names, nil
}

func (p *PDB) warnDeprecated(ctx context.Context, caller, name, replacement string) {
	if p.compatMode != CompatWarn {
		return
	}
	logging.WarnContext(ctx, "deprecated procedure called",
		"caller", caller, "procedure", name, "replacement", replacement)
}

// Resolve finds the procedure a caller meant by name. Deprecated aliases are
// followed when compat mode allows it, with a warning in warn mode.
func (p *PDB) Resolve(ctx context.Context, caller, name string) (string, *Procedure) {
	if proc := p.Lookup(name); proc != nil {
		if proc.Deprecated != "" {
			p.warnDeprecated(ctx, caller, name, proc.Deprecated)
		}
		return name, proc
	}
	if p.compatMode == CompatOff {
		return name, nil
	}
	newName, ok := p.LookupCompatName(name)
	if !ok {
		return name, nil
	}
	proc := p.Lookup(newName)
	if proc != nil {
		p.warnDeprecated(ctx, caller, name, newName)
	}
	return newName, proc
}
