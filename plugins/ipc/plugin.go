// Package ipc is the plug-in side of the host connection. A plug-in binary
// describes itself with an Info and hands control to Main, which speaks
// the wire protocol on the descriptors the host passed on the command
// line:
//
//	func main() {
//		os.Exit(ipc.Main(ipc.Info{Query: query, Run: run}))
//	}
//
// Query installs procedures, Init runs once per host start for plug-ins
// that announced it, and Run executes one procedure per process.
package ipc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/protocol"
	"github.com/FocuswithJustin/picman/core/wire"
	"github.com/FocuswithJustin/picman/internal/logging"
)

// ErrQuit is returned from blocking calls once the host asked the plug-in
// to quit or closed the connection.
var ErrQuit = errors.New("ipc: host closed the connection")

// RunFunc executes one procedure. The returned array starts with a status;
// Success and Failure build one.
type RunFunc func(p *PlugIn, name string, args pdb.ValueArray) pdb.ValueArray

// Info describes a plug-in binary. Query is required, the rest optional.
type Info struct {
	Init  func(p *PlugIn) error
	Query func(p *PlugIn) error
	Quit  func(p *PlugIn)
	Run   RunFunc
}

// PlugIn is the connection to the host.
type PlugIn struct {
	info     Info
	registry *wire.Registry
	ch       *wire.Channel

	mu     sync.Mutex
	config *protocol.Config
	temp   map[string]RunFunc
	quit   bool
	shm    []byte
}

// New wraps an established connection. Most plug-ins use Main instead.
func New(info Info, r io.Reader, w io.Writer) *PlugIn {
	return &PlugIn{
		info:     info,
		registry: protocol.NewRegistry(),
		ch:       wire.NewChannel(r, w, wire.DefaultBufferSize),
		temp:     make(map[string]RunFunc),
	}
}

// Main parses the command line, opens the host descriptors and serves the
// requested mode. It returns the process exit status.
func Main(info Info) int {
	args, err := ParseArgs(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		return 1
	}
	rd := os.NewFile(uintptr(args.ReadFD), "picman-read")
	wr := os.NewFile(uintptr(args.WriteFD), "picman-write")
	if rd == nil || wr == nil {
		fmt.Fprintf(os.Stderr, "%s: invalid host descriptors\n", os.Args[0])
		return 1
	}
	defer rd.Close()
	defer wr.Close()

	p := New(info, rd, wr)
	if err := p.Serve(args.Mode); err != nil && !errors.Is(err, ErrQuit) {
		logging.Error("plug-in failed", "prog", os.Args[0], "mode", string(args.Mode), "error", err)
		return 1
	}
	return 0
}

// Serve runs one session in the given mode and says goodbye to the host.
func (p *PlugIn) Serve(mode Mode) error {
	var err error
	switch mode {
	case ModeQuery:
		if p.info.Query == nil {
			err = fmt.Errorf("plug-in has no query function")
		} else {
			err = p.info.Query(p)
		}
	case ModeInit:
		if p.info.Init != nil {
			err = p.info.Init(p)
		}
	case ModeRun:
		err = p.serveRun()
	default:
		err = fmt.Errorf("unknown call mode %q", mode)
	}
	p.Close()
	return err
}

// serveRun waits for the config and the run request, then runs it.
func (p *PlugIn) serveRun() error {
	msg, err := p.expect(protocol.MsgConfig)
	if err != nil {
		return err
	}
	cfg := msg.Data.(*protocol.Config)
	if cfg.Version != protocol.Version {
		return fmt.Errorf("protocol version mismatch: host %#x, plug-in %#x", cfg.Version, protocol.Version)
	}
	p.mu.Lock()
	p.config = cfg
	p.mu.Unlock()
	if cfg.ShmID >= 0 {
		if data, err := attachShm(cfg.ShmID); err == nil {
			p.shm = data
		} else {
			logging.Debug("shared memory unavailable, tiles travel inline", "error", err)
		}
	}

	msg, err = p.expect(protocol.MsgProcRun)
	if err != nil {
		return err
	}
	run := msg.Data.(*protocol.ProcRun)
	vals := p.runProc(run.Name, run.Params, p.info.Run)
	if p.closed() {
		// An extension served until the host told it to quit.
		return nil
	}
	return p.send(protocol.MsgProcReturn, &protocol.ProcReturn{Name: run.Name, Params: vals})
}

func (p *PlugIn) runProc(name string, args pdb.ValueArray, fn RunFunc) pdb.ValueArray {
	if fn == nil {
		return Failure(pdb.CallingError, fmt.Sprintf("procedure '%s' is not implemented", name))
	}
	vals := fn(p, name, args)
	if len(vals) == 0 {
		return Failure(pdb.ExecutionError, fmt.Sprintf("procedure '%s' returned nothing", name))
	}
	return vals
}

// Config returns the host configuration received with the run request, nil
// outside of run mode.
func (p *PlugIn) Config() *protocol.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

// Close sends QUIT unless the host already went away, and releases the
// shared memory. It is safe to call twice.
func (p *PlugIn) Close() {
	p.mu.Lock()
	quit := p.quit
	p.quit = true
	shm := p.shm
	p.shm = nil
	p.mu.Unlock()

	if p.info.Quit != nil && !quit {
		p.info.Quit(p)
	}
	if !quit {
		if err := p.send(protocol.MsgQuit, nil); err != nil {
			logging.Debug("could not say goodbye to the host", "error", err)
		}
	}
	if shm != nil {
		detachShm(shm)
	}
}

func (p *PlugIn) closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quit
}

func (p *PlugIn) send(msgType uint32, data any) error {
	if err := p.registry.WriteMsg(p.ch, wire.Message{Type: msgType, Data: data}); err != nil {
		return err
	}
	return p.ch.Flush()
}

func (p *PlugIn) read() (wire.Message, error) {
	msg, err := p.registry.ReadMsg(p.ch)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			p.mu.Lock()
			p.quit = true
			p.mu.Unlock()
			return msg, ErrQuit
		}
		return msg, err
	}
	return msg, nil
}

// expect reads until a message of type t arrives. Temporary procedure runs
// that arrive meanwhile are served; QUIT ends the wait.
func (p *PlugIn) expect(t uint32) (wire.Message, error) {
	for {
		msg, err := p.read()
		if err != nil {
			return msg, err
		}
		if msg.Type == t {
			return msg, nil
		}
		if err := p.dispatch(msg); err != nil {
			return wire.Message{}, err
		}
	}
}

// dispatch handles a message that arrived outside of a request/reply pair.
func (p *PlugIn) dispatch(msg wire.Message) error {
	defer p.registry.Destroy(msg)
	switch msg.Type {
	case protocol.MsgQuit:
		p.mu.Lock()
		p.quit = true
		p.mu.Unlock()
		return ErrQuit
	case protocol.MsgTempProcRun:
		run := msg.Data.(*protocol.ProcRun)
		name := pdb.CanonicalizeIdentifier(run.Name)
		p.mu.Lock()
		fn := p.temp[name]
		p.mu.Unlock()
		vals := p.runProc(run.Name, run.Params, fn)
		return p.send(protocol.MsgTempProcReturn, &protocol.ProcReturn{Name: run.Name, Params: vals})
	}
	return fmt.Errorf("unexpected %s message", protocol.TypeName(msg.Type))
}

// ExtensionAck tells the host that an extension finished starting up and
// the call that started it may return.
func (p *PlugIn) ExtensionAck() error {
	return p.send(protocol.MsgExtensionAck, nil)
}

// ExtensionLoop serves temporary procedure runs until the host quits.
func (p *PlugIn) ExtensionLoop() error {
	for {
		msg, err := p.read()
		if err != nil {
			return err
		}
		if err := p.dispatch(msg); err != nil {
			return err
		}
	}
}

// Success builds a successful return array.
func Success(values ...pdb.Value) pdb.ValueArray {
	return append(pdb.ValueArray{pdb.StatusValue(pdb.Success)}, values...)
}

// Failure builds a failed return array carrying an error message.
func Failure(status pdb.Status, message string) pdb.ValueArray {
	vals := pdb.ValueArray{pdb.StatusValue(status)}
	if message != "" {
		vals = append(vals, pdb.String(message))
	}
	return vals
}
