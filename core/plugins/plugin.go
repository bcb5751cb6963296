package plugins

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/FocuswithJustin/picman/core/errors"
	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/protocol"
	"github.com/FocuswithJustin/picman/core/wire"
	"github.com/FocuswithJustin/picman/internal/logging"
)

// CallMode is the reason a plug-in process was started.
type CallMode int

const (
	CallNone CallMode = iota
	CallQuery
	CallInit
	CallRun
)

func (m CallMode) String() string {
	switch m {
	case CallQuery:
		return "query"
	case CallInit:
		return "init"
	case CallRun:
		return "run"
	}
	return "none"
}

// flag is the command line switch that selects the mode in the child.
func (m CallMode) flag() string {
	return "-" + m.String()
}

// PlugIn is one running plug-in process and the state of the calls in
// flight inside it.
type PlugIn struct {
	manager *Manager
	prog    string
	name    string
	ctx     context.Context

	mu          sync.Mutex
	mode        CallMode
	open        bool
	hup         bool
	synchronous bool
	precision   bool

	cmd *exec.Cmd
	rd  *os.File
	wr  *os.File
	ch  *wire.Channel

	// def collects the procedures installed during query and init.
	def *Def

	tempProcs  []*Procedure
	mainFrame  *Frame
	tempFrames []*Frame
	extAck     *signal
	closed     *signal
}

// newPlugIn prepares a process for prog. The main frame belongs to the
// plug-in until it closes.
func newPlugIn(m *Manager, ctx context.Context, prog string, caller pdb.Caller, proc *Procedure) *PlugIn {
	if ctx == nil {
		ctx = context.Background()
	}
	p := &PlugIn{
		manager: m,
		prog:    prog,
		name:    filepath.Base(prog),
		ctx:     context.WithoutCancel(ctx),
		closed:  newSignal(),
	}
	p.mainFrame = newFrame(p, caller, proc)
	return p
}

// Prog returns the program path.
func (p *PlugIn) Prog() string { return p.prog }

// Name returns the program's base name.
func (p *PlugIn) Name() string { return p.name }

// Mode returns the mode the process was opened in.
func (p *PlugIn) Mode() CallMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// IsOpen reports whether the process is still connected.
func (p *PlugIn) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Closed is closed once the process was torn down.
func (p *PlugIn) Closed() <-chan struct{} { return p.closed.C() }

// MainFrame returns the frame of the call the process was started for.
func (p *PlugIn) MainFrame() *Frame { return p.mainFrame }

// Open spawns the process. The child inherits the read end of one pipe
// and the write end of another as descriptors 3 and 4. In asynchronous
// mode a goroutine services incoming messages; otherwise the caller must
// run Serve.
func (p *PlugIn) Open(mode CallMode, synchronous bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return errors.NewPlugIn(p.prog, "already open", nil)
	}
	if !extraFilesSupported {
		return errors.NewUnsupported("plug-in processes", "inheriting pipe descriptors is not supported on this platform")
	}

	myRead, hisWrite, err := os.Pipe()
	if err != nil {
		return errors.NewPlugIn(p.prog, "unable to open pipe", err)
	}
	hisRead, myWrite, err := os.Pipe()
	if err != nil {
		myRead.Close()
		hisWrite.Close()
		return errors.NewPlugIn(p.prog, "unable to open pipe", err)
	}

	cfg := p.manager.cfg
	name := p.prog
	var args []string
	if p.manager.interp != nil {
		if interp, arg := p.manager.interp.Resolve(p.prog); interp != "" {
			name = interp
			if arg != "" {
				args = append(args, arg)
			}
			args = append(args, p.prog)
		}
	}
	args = append(args, "-picman", "3", "4", mode.flag(), cfg.StackTraceMode.String())

	cmd := exec.Command(name, args...)
	cmd.ExtraFiles = []*os.File{hisRead, hisWrite}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if p.manager.environ != nil {
		cmd.Env = p.manager.environ.Envp()
	}
	configureProcess(cmd)

	err = cmd.Start()
	hisRead.Close()
	hisWrite.Close()
	if err != nil {
		myRead.Close()
		myWrite.Close()
		return errors.NewPlugIn(p.prog, "unable to run plug-in", err)
	}

	p.cmd = cmd
	p.rd = myRead
	p.wr = myWrite
	p.ch = wire.NewChannel(myRead, myWrite, cfg.WriteBufferSize)
	p.mode = mode
	p.synchronous = synchronous
	p.open = true
	p.hup = false

	p.manager.addOpenPlugIn(p)
	logging.PlugInOpened(p.prog, mode.String(), cmd.Process.Pid)

	if !synchronous {
		go p.Serve()
	}
	return nil
}

// Close tears the process down. With kill set a process that is still
// connected gets a quit message and a short grace period, then it is
// killed. Every waiter is woken. Closing twice is a no-op.
func (p *PlugIn) Close(kill bool) {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return
	}
	p.open = false
	hup := p.hup
	p.mu.Unlock()

	if kill && !hup {
		if err := p.manager.registry.WriteMsg(p.ch, wire.Message{Type: protocol.MsgQuit}); err == nil {
			_ = p.ch.Flush()
		}
		time.Sleep(p.manager.cfg.QuitGrace)
	}
	if kill {
		if err := killProcess(p.cmd); err != nil {
			logging.Debug("kill failed", "prog", p.prog, "error", err)
		}
	}

	p.rd.Close()
	p.wr.Close()
	if p.cmd != nil {
		if err := p.cmd.Wait(); err != nil {
			logging.Debug("plug-in exited", "prog", p.prog, "error", err)
		}
	}

	p.mu.Lock()
	frames := p.tempFrames
	p.tempFrames = nil
	temps := p.tempProcs
	p.tempProcs = nil
	ack := p.extAck
	p.mu.Unlock()

	for i := len(frames) - 1; i >= 0; i-- {
		frames[i].finish(nil)
		frames[i].Unref()
	}
	p.mainFrame.finish(nil)
	if ack != nil {
		ack.fire()
	}
	for _, proc := range temps {
		p.manager.RemoveTempProc(proc)
	}

	p.closed.fire()
	p.manager.removeOpenPlugIn(p)
	logging.PlugInClosed(p.prog, kill)
	p.mainFrame.Unref()
}

// Cancel answers every call in flight with Cancel and kills the process.
func (p *PlugIn) Cancel() {
	p.mu.Lock()
	frames := append([]*Frame(nil), p.tempFrames...)
	p.mu.Unlock()
	for _, f := range frames {
		f.cancel()
	}
	p.mainFrame.cancel()
	p.Close(true)
}

// Serve reads and dispatches messages until the process closes.
func (p *PlugIn) Serve() {
	for {
		msg, err := p.manager.registry.ReadMsg(p.ch)
		if err != nil {
			if p.IsOpen() {
				if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
					p.mu.Lock()
					p.hup = true
					p.mu.Unlock()
				}
				logging.PlugInCrashed(p.prog, "error", err)
				p.Close(true)
			}
			return
		}
		p.ch.ClearError()
		p.handleMessage(msg)
		p.manager.registry.Destroy(msg)
		if err := p.ch.Err(); err != nil && p.IsOpen() {
			logging.PlugInError(p.prog, "answering "+protocol.TypeName(msg.Type), err)
			p.Close(true)
		}
		if !p.IsOpen() {
			return
		}
	}
}

// write queues a message without flushing.
func (p *PlugIn) write(msgType uint32, data any) error {
	if !p.IsOpen() {
		return errors.NewPlugIn(p.prog, "cannot send "+protocol.TypeName(msgType), errors.ErrPlugInClosed)
	}
	return p.manager.registry.WriteMsg(p.ch, wire.Message{Type: msgType, Data: data})
}

// send writes one message and flushes it.
func (p *PlugIn) send(msgType uint32, data any) error {
	if err := p.write(msgType, data); err != nil {
		return err
	}
	return p.ch.Flush()
}

// readMsg reads a message outside of Serve's loop, for exchanges that
// need an immediate answer.
func (p *PlugIn) readMsg() (wire.Message, error) {
	return p.manager.registry.ReadMsg(p.ch)
}

// protocolError reports a message the plug-in should never have sent and
// kills it.
func (p *PlugIn) protocolError(format string, args ...any) {
	err := errors.NewProtocol(p.prog, fmt.Sprintf(format, args...))
	logging.PlugInError(p.prog, "protocol", err)
	p.Close(true)
}

// currentFrame is the innermost call in flight.
func (p *PlugIn) currentFrame() *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.tempFrames); n > 0 {
		return p.tempFrames[n-1]
	}
	return p.mainFrame
}

// pushFrame starts a temporary procedure call. The returned frame holds
// one reference for the stack.
func (p *PlugIn) pushFrame(caller pdb.Caller, proc *Procedure) *Frame {
	f := newFrame(p, caller, proc)
	p.mu.Lock()
	p.tempFrames = append(p.tempFrames, f)
	p.mu.Unlock()
	return f
}

// popFrame removes the topmost frame for name, or the top frame when none
// matches. It returns nil when no temporary call is in flight.
func (p *PlugIn) popFrame(name string) *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.tempFrames)
	if n == 0 {
		return nil
	}
	idx := n - 1
	for i := n - 1; i >= 0; i-- {
		if proc := p.tempFrames[i].Procedure; proc != nil &&
			(proc.OriginalName == name || proc.Name == pdb.CanonicalizeIdentifier(name)) {
			idx = i
			break
		}
	}
	f := p.tempFrames[idx]
	p.tempFrames = append(p.tempFrames[:idx], p.tempFrames[idx+1:]...)
	return f
}

// removeFrame takes f off the stack if it is still there.
func (p *PlugIn) removeFrame(f *Frame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, tf := range p.tempFrames {
		if tf == f {
			p.tempFrames = append(p.tempFrames[:i], p.tempFrames[i+1:]...)
			return true
		}
	}
	return false
}

// AddTempProc registers a temporary procedure owned by this process.
func (p *PlugIn) AddTempProc(proc *Procedure) {
	proc.plugIn = p
	p.mu.Lock()
	old := FindProcedure(p.tempProcs, proc.Name)
	if old != nil {
		p.tempProcs = removeProcedure(p.tempProcs, old)
	}
	p.tempProcs = append(p.tempProcs, proc)
	p.mu.Unlock()
	if old != nil {
		p.manager.RemoveTempProc(old)
	}
	p.manager.AddTempProc(proc)
}

// RemoveTempProc unregisters a temporary procedure.
func (p *PlugIn) RemoveTempProc(proc *Procedure) {
	p.mu.Lock()
	p.tempProcs = removeProcedure(p.tempProcs, proc)
	p.mu.Unlock()
	p.manager.RemoveTempProc(proc)
}

// TempProcs returns the temporary procedures the process installed.
func (p *PlugIn) TempProcs() []*Procedure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Procedure(nil), p.tempProcs...)
}

// findProc looks for a procedure this process installed.
func (p *PlugIn) findProc(name string) *Procedure {
	name = pdb.CanonicalizeIdentifier(name)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.def != nil {
		if proc := FindProcedure(p.def.Procedures, name); proc != nil {
			return proc
		}
	}
	return FindProcedure(p.tempProcs, name)
}

// MenuRegister adds a menu path to one of the process's own procedures.
func (p *PlugIn) MenuRegister(procName, menuPath string) error {
	proc := p.findProc(procName)
	if proc == nil {
		return errors.NewPlugIn(p.prog, fmt.Sprintf(
			"attempted to register the menu item %q for the procedure %q. "+
				"It has however not installed that procedure. This is not allowed.",
			menuPath, procName), nil)
	}
	if proc.MenuLabel == "" && len(proc.MenuPaths) == 0 {
		return errors.NewPlugIn(p.prog, fmt.Sprintf(
			"attempted to register the procedure %q in the menu %q, but the procedure has no label. "+
				"This is not allowed.", procName, menuPath), nil)
	}
	return proc.AddMenuPath(menuPath)
}

// SetErrorHandler changes the error policy of the current call.
func (p *PlugIn) SetErrorHandler(h ErrorHandler) {
	p.currentFrame().SetErrorHandler(h)
}

// GetErrorHandler returns the error policy of the current call.
func (p *PlugIn) GetErrorHandler() ErrorHandler {
	return p.currentFrame().ErrorHandler()
}

// EnablePrecision records that the plug-in handles high bit depth.
func (p *PlugIn) EnablePrecision() {
	p.mu.Lock()
	p.precision = true
	p.mu.Unlock()
}

// PrecisionEnabled reports whether EnablePrecision was called.
func (p *PlugIn) PrecisionEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.precision
}

type plugInKey struct{}

// withPlugIn marks ctx as running on behalf of p. Cancellation of the
// outer context does not propagate into calls the plug-in makes.
func withPlugIn(ctx context.Context, p *PlugIn) context.Context {
	return context.WithValue(context.WithoutCancel(ctx), plugInKey{}, p)
}

// PlugInFromContext returns the plug-in a call is made by, if any.
func PlugInFromContext(ctx context.Context) (*PlugIn, bool) {
	p, ok := ctx.Value(plugInKey{}).(*PlugIn)
	return p, ok && p != nil
}

func removeProcedure(list []*Procedure, proc *Procedure) []*Procedure {
	for i, p := range list {
		if p == proc {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
