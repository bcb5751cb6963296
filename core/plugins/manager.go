// Package plugins runs plug-in executables as child processes and makes
// the procedures they provide callable through the procedure database.
//
// A Manager discovers plug-in binaries, asks each one which procedures it
// provides (or reads the answer from the pluginrc cache), registers them
// and starts a process whenever one of them is called. Each process talks
// to the host over a pair of pipes using the messages of core/protocol.
package plugins

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/FocuswithJustin/picman/core/environ"
	"github.com/FocuswithJustin/picman/core/interp"
	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/protocol"
	"github.com/FocuswithJustin/picman/core/wire"
	"github.com/FocuswithJustin/picman/internal/logging"
)

// EventKind enumerates Manager notifications.
type EventKind int

const (
	EventPlugInOpened EventKind = iota
	EventPlugInClosed
	EventHistoryChanged
	EventMenuBranchAdded
)

func (k EventKind) String() string {
	switch k {
	case EventPlugInOpened:
		return "plug-in-opened"
	case EventPlugInClosed:
		return "plug-in-closed"
	case EventHistoryChanged:
		return "history-changed"
	case EventMenuBranchAdded:
		return "menu-branch-added"
	}
	return "unknown"
}

// Event is delivered to observers after the Manager's state changed.
type Event struct {
	Kind   EventKind
	PlugIn *PlugIn
	Branch *MenuBranch
}

// Observer receives Manager events. It must not block.
type Observer func(Event)

// MenuBranch is a submenu a plug-in asked for.
type MenuBranch struct {
	Prog      string
	MenuPath  string
	MenuLabel string
}

type domain struct {
	prog string
	name string
	path string
}

// Option configures a Manager.
type Option func(*Manager)

// WithImageStore connects plug-ins to the image model. Without one every
// tile request and image cleanup finds nothing.
func WithImageStore(s ImageStore) Option {
	return func(m *Manager) { m.images = s }
}

// WithHistoryStore persists the recently used procedures.
func WithHistoryStore(s HistoryStore) Option {
	return func(m *Manager) { m.store = s }
}

// Manager owns every plug-in definition, the procedures they provide and
// the processes currently running.
type Manager struct {
	cfg      Config
	pdb      *pdb.PDB
	interp   *interp.DB
	environ  *environ.Table
	registry *wire.Registry
	images   ImageStore
	store    HistoryStore
	shm      *sharedMemory

	mu            sync.Mutex
	defs          []*Def
	writeRC       bool
	procedures    []*Procedure
	loadProcs     []*Procedure
	saveProcs     []*Procedure
	exportProcs   []*Procedure
	open          []*PlugIn
	stack         []*PlugIn
	history       []*Procedure
	localeDomains []domain
	helpDomains   []domain
	menuBranches  []*MenuBranch

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// NewManager creates a Manager that registers procedures in db. The
// host-side procedures plug-ins rely on are registered right away.
func NewManager(cfg Config, db *pdb.PDB, opts ...Option) *Manager {
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = wire.DefaultBufferSize
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 10
	}
	m := &Manager{
		cfg:       cfg,
		pdb:       db,
		interp:    interp.New(),
		environ:   environ.New(),
		registry:  protocol.NewRegistry(),
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(m)
	}
	registerInternalProcs(m)
	pdb.RegisterCompatProcs(db)
	return m
}

// PDB returns the procedure database.
func (m *Manager) PDB() *pdb.PDB { return m.pdb }

// Config returns the settings the Manager was created with.
func (m *Manager) Config() Config { return m.cfg }

// Environ returns the environment table plug-ins run with.
func (m *Manager) Environ() *environ.Table { return m.environ }

// Interpreters returns the interpreter database.
func (m *Manager) Interpreters() *interp.DB { return m.interp }

// Initialize loads the interpreter and environment tables and sets up the
// shared memory segment for tile transfer.
func (m *Manager) Initialize(ctx context.Context) error {
	db, err := interp.Load(m.cfg.InterpreterPath)
	if err != nil {
		return err
	}
	m.interp = db

	env := environ.New()
	if err := env.Load(m.cfg.EnvironPath); err != nil {
		return err
	}
	if ext := db.Extensions(); ext != "" {
		pathext := ext
		if cur := os.Getenv("PATHEXT"); cur != "" {
			pathext = cur + string(os.PathListSeparator) + ext
		}
		env.Set("PATHEXT", pathext)
	}
	m.environ = env

	if m.cfg.UseShm {
		shm, err := newSharedMemory(m.cfg.TileWidth * m.cfg.TileHeight * 16)
		if err != nil {
			logging.WarnContext(ctx, "shared memory unavailable, tiles travel through the pipe", "error", err)
		} else {
			m.shm = shm
		}
	}
	return nil
}

// Exit kills every running plug-in and releases the Manager's resources.
func (m *Manager) Exit(ctx context.Context) error {
	for _, p := range m.OpenPlugIns() {
		p.Close(true)
	}
	if m.shm != nil {
		if err := m.shm.Close(); err != nil {
			logging.WarnContext(ctx, "releasing shared memory", "error", err)
		}
		m.shm = nil
	}
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

func (m *Manager) sharedMemory() *sharedMemory { return m.shm }

// Subscribe registers an observer and returns a function that removes it.
func (m *Manager) Subscribe(fn Observer) func() {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.obsMu.Unlock()
	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

func (m *Manager) emit(ev Event) {
	m.obsMu.Lock()
	ids := make([]int, 0, len(m.observers))
	for id := range m.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Observer, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.observers[id])
	}
	m.obsMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// AddProcedure adds a plug-in procedure. A procedure with the same name
// replaces the earlier one in place, and the earlier one is dropped from
// every list that referenced it.
func (m *Manager) AddProcedure(proc *Procedure) {
	m.mu.Lock()
	for i, old := range m.procedures {
		if old.Name != proc.Name {
			continue
		}
		m.procedures[i] = proc
		logging.Warn("Removing duplicate PDB procedure",
			"procedure", proc.Name, "prog", old.Prog, "replacement", proc.Prog)
		for _, def := range m.defs {
			def.RemoveProcedure(old)
		}
		m.loadProcs = removeProcedure(m.loadProcs, old)
		m.saveProcs = removeProcedure(m.saveProcs, old)
		m.exportProcs = removeProcedure(m.exportProcs, old)
		changed := m.historyRemoveLocked(old)
		m.mu.Unlock()
		if changed {
			m.emit(Event{Kind: EventHistoryChanged})
		}
		return
	}
	m.procedures = append([]*Procedure{proc}, m.procedures...)
	m.mu.Unlock()
}

// AddTempProc registers a temporary procedure in the PDB.
func (m *Manager) AddTempProc(proc *Procedure) {
	proc.Executor = &procExecutor{m: m, proc: proc}
	m.pdb.Register(proc.Procedure)
	m.mu.Lock()
	m.procedures = append([]*Procedure{proc}, m.procedures...)
	m.mu.Unlock()
}

// RemoveTempProc unregisters a temporary procedure.
func (m *Manager) RemoveTempProc(proc *Procedure) {
	m.mu.Lock()
	m.procedures = removeProcedure(m.procedures, proc)
	changed := m.historyRemoveLocked(proc)
	m.mu.Unlock()
	m.pdb.Unregister(proc.Procedure)
	if changed {
		m.emit(Event{Kind: EventHistoryChanged})
	}
}

// Procedures returns every plug-in procedure, most recently added first.
func (m *Manager) Procedures() []*Procedure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Procedure(nil), m.procedures...)
}

// FindProcedure returns the plug-in procedure named name.
func (m *Manager) FindProcedure(name string) *Procedure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return FindProcedure(m.procedures, pdb.CanonicalizeIdentifier(name))
}

// LoadProcs returns the registered file load handlers.
func (m *Manager) LoadProcs() []*Procedure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Procedure(nil), m.loadProcs...)
}

// SaveProcs returns the handlers for the native and compressed formats.
func (m *Manager) SaveProcs() []*Procedure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Procedure(nil), m.saveProcs...)
}

// ExportProcs returns the save handlers for every other format.
func (m *Manager) ExportProcs() []*Procedure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Procedure(nil), m.exportProcs...)
}

// Defs returns the plug-in definitions known after restore.
func (m *Manager) Defs() []*Def {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Def(nil), m.defs...)
}

// OpenPlugIns returns the running processes.
func (m *Manager) OpenPlugIns() []*PlugIn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*PlugIn(nil), m.open...)
}

func (m *Manager) addOpenPlugIn(p *PlugIn) {
	m.mu.Lock()
	m.open = append(m.open, p)
	m.mu.Unlock()
	m.emit(Event{Kind: EventPlugInOpened, PlugIn: p})
}

func (m *Manager) removeOpenPlugIn(p *PlugIn) {
	m.mu.Lock()
	found := false
	for i, o := range m.open {
		if o == p {
			m.open = append(m.open[:i], m.open[i+1:]...)
			found = true
			break
		}
	}
	m.mu.Unlock()
	if found {
		m.emit(Event{Kind: EventPlugInClosed, PlugIn: p})
	}
}

// pushPlugIn makes p the plug-in on whose behalf calls are being made.
func (m *Manager) pushPlugIn(p *PlugIn) {
	m.mu.Lock()
	m.stack = append(m.stack, p)
	m.mu.Unlock()
}

// popPlugIn removes the topmost entry for p.
func (m *Manager) popPlugIn(p *PlugIn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.stack) - 1; i >= 0; i-- {
		if m.stack[i] == p {
			m.stack = append(m.stack[:i], m.stack[i+1:]...)
			return
		}
	}
}

// CurrentPlugIn returns the plug-in whose call is innermost, or nil.
func (m *Manager) CurrentPlugIn() *PlugIn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.stack); n > 0 {
		return m.stack[n-1]
	}
	return nil
}

// plugInFor finds the plug-in a call comes from.
func (m *Manager) plugInFor(ctx context.Context) *PlugIn {
	if p, ok := PlugInFromContext(ctx); ok {
		return p
	}
	return m.CurrentPlugIn()
}

// AddLocaleDomain records the translation domain of prog.
func (m *Manager) AddLocaleDomain(prog, name, path string) {
	m.mu.Lock()
	m.localeDomains = append(m.localeDomains, domain{prog: prog, name: name, path: path})
	m.mu.Unlock()
}

// LocaleDomain returns the translation domain of prog and its path. Plug-ins
// that registered none share the standard domain.
func (m *Manager) LocaleDomain(prog string) (name, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.localeDomains {
		if d.prog == prog {
			return d.name, d.path
		}
	}
	return StandardLocaleDomain, ""
}

// LocaleDomains returns every distinct registered translation domain.
func (m *Manager) LocaleDomains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return distinctDomains(m.localeDomains, StandardLocaleDomain)
}

// AddHelpDomain records the help domain of prog.
func (m *Manager) AddHelpDomain(prog, name, uri string) {
	m.mu.Lock()
	m.helpDomains = append(m.helpDomains, domain{prog: prog, name: name, path: uri})
	m.mu.Unlock()
}

// HelpDomain returns the help domain of prog and its URI, if it has one.
func (m *Manager) HelpDomain(prog string) (name, uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.helpDomains {
		if d.prog == prog {
			return d.name, d.path
		}
	}
	return "", ""
}

// HelpDomains returns every distinct registered help domain.
func (m *Manager) HelpDomains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return distinctDomains(m.helpDomains, "")
}

func distinctDomains(list []domain, first string) []string {
	seen := make(map[string]bool)
	var out []string
	if first != "" {
		out = append(out, first)
		seen[first] = true
	}
	for _, d := range list {
		if !seen[d.name] {
			seen[d.name] = true
			out = append(out, d.name)
		}
	}
	return out
}

// AddMenuBranch records a submenu and notifies observers.
func (m *Manager) AddMenuBranch(prog, menuPath, menuLabel string) {
	b := &MenuBranch{Prog: prog, MenuPath: menuPath, MenuLabel: menuLabel}
	m.mu.Lock()
	m.menuBranches = append(m.menuBranches, b)
	m.mu.Unlock()
	m.emit(Event{Kind: EventMenuBranchAdded, Branch: b})
}

// MenuBranches returns the registered submenus.
func (m *Manager) MenuBranches() []*MenuBranch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MenuBranch(nil), m.menuBranches...)
}
