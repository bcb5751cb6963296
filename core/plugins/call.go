package plugins

import (
	"context"
	"fmt"

	"github.com/FocuswithJustin/picman/core/errors"
	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/protocol"
	"github.com/FocuswithJustin/picman/internal/logging"
)

// procExecutor runs a plug-in procedure for the PDB.
type procExecutor struct {
	m    *Manager
	proc *Procedure
}

func (e *procExecutor) Execute(ctx context.Context, caller pdb.Caller, _ *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
	if e.proc.Type == pdb.Temporary {
		return e.m.CallRunTemp(ctx, caller, e.proc, args)
	}
	return e.m.CallRun(ctx, caller, e.proc, args, true)
}

func (e *procExecutor) ExecuteAsync(ctx context.Context, caller pdb.Caller, _ *pdb.Procedure, args pdb.ValueArray) {
	if e.proc.Type == pdb.Temporary {
		go func() {
			vals, _ := e.m.CallRunTemp(ctx, caller, e.proc, args)
			e.proc.handleReturnValues(ctx, vals)
		}()
		return
	}
	vals, err := e.m.CallRun(ctx, caller, e.proc, args, false)
	if err != nil {
		e.proc.handleReturnValues(ctx, vals)
	}
}

// CallQuery runs the plug-in of def in query mode and collects the
// procedures it installs into def.
func (m *Manager) CallQuery(ctx context.Context, def *Def) error {
	return m.callDef(ctx, def, CallQuery)
}

// CallInit runs the plug-in of def in init mode.
func (m *Manager) CallInit(ctx context.Context, def *Def) error {
	return m.callDef(ctx, def, CallInit)
}

func (m *Manager) callDef(ctx context.Context, def *Def, mode CallMode) error {
	p := newPlugIn(m, ctx, def.Prog, pdb.Caller{Display: -1}, nil)
	p.def = def
	if err := p.Open(mode, true); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Serve()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.Close(true)
		<-done
		return ctx.Err()
	}
	return nil
}

// CallRun starts the plug-in providing proc and asks it to run proc with
// args. A synchronous call waits for the return values; otherwise the
// call returns at once and a failure is logged when the plug-in answers.
// Extensions are waited for until they acknowledge their start.
func (m *Manager) CallRun(ctx context.Context, caller pdb.Caller, proc *Procedure, args pdb.ValueArray, synchronous bool) (pdb.ValueArray, error) {
	p := newPlugIn(m, ctx, proc.Prog, caller, proc)
	frame := p.mainFrame.Ref()
	ctx = logging.WithCallID(ctx, frame.ID)

	if proc.Type == pdb.Extension {
		p.extAck = newSignal()
	}

	if err := p.Open(CallRun, false); err != nil {
		frame.Unref()
		frame.Unref()
		return pdb.ReturnValues(proc.Procedure, false, err), err
	}

	if caller.Progress != nil {
		go func() {
			select {
			case <-caller.Progress.Cancelled():
				p.Cancel()
			case <-p.Closed():
			}
		}()
	}

	shmID := int32(-1)
	if shm := m.sharedMemory(); shm != nil {
		shmID = shm.ID()
	}
	config := &protocol.Config{
		Version:        protocol.Version,
		TileWidth:      uint32(m.cfg.TileWidth),
		TileHeight:     uint32(m.cfg.TileHeight),
		ShmID:          shmID,
		CheckSize:      1,
		CheckType:      1,
		ShowHelpButton: true,
		UseCPUAccel:    true,
		ShowTooltips:   true,
		MinColors:      144,
		DisplayID:      caller.Display,
		AppName:        m.cfg.AppName,
		WMClass:        m.cfg.AppName,
		MonitorNumber:  0,
	}
	run := &protocol.ProcRun{Name: proc.OriginalName, Params: args}

	err := p.write(protocol.MsgConfig, config)
	if err == nil {
		err = p.write(protocol.MsgProcRun, run)
	}
	if err == nil {
		err = p.ch.Flush()
	}
	if err != nil {
		err = errors.NewPlugIn(proc.Prog, fmt.Sprintf("Failed to run plug-in %q", p.name), err)
		p.Close(true)
		frame.Unref()
		return pdb.ReturnValues(proc.Procedure, false, err), err
	}

	if p.extAck != nil {
		select {
		case <-p.extAck.C():
		case <-ctx.Done():
			p.Cancel()
		}
	}

	if !synchronous {
		if proc.Type == pdb.Extension {
			frame.Unref()
		} else {
			go func() {
				<-frame.Done()
				vals, _ := frame.returnValues()
				frame.Unref()
				proc.handleReturnValues(ctx, vals)
			}()
		}
		return pdb.ReturnValues(proc.Procedure, true, nil), nil
	}

	return m.wait(ctx, p, frame)
}

// wait blocks until frame has its return values, then releases the
// caller's reference. Cancelling ctx cancels the whole plug-in.
func (m *Manager) wait(ctx context.Context, p *PlugIn, frame *Frame) (pdb.ValueArray, error) {
	select {
	case <-frame.Done():
	case <-ctx.Done():
		p.Cancel()
	}
	vals, err := frame.returnValues()
	frame.Unref()
	if err == nil && pdb.StatusOf(vals) == pdb.Cancel && ctx.Err() != nil {
		err = pdb.Errorf(pdb.ErrCancelled, "Procedure '%s' was cancelled", frame.Procedure.Name)
	}
	return vals, err
}

// CallRunTemp runs a temporary procedure inside the plug-in that
// installed it and waits for the answer.
func (m *Manager) CallRunTemp(ctx context.Context, caller pdb.Caller, proc *Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
	p := proc.PlugIn()
	if p == nil || !p.IsOpen() {
		err := errors.NewPlugIn(proc.Prog, fmt.Sprintf("temporary procedure %q has no running plug-in", proc.Name),
			errors.ErrPlugInClosed)
		return pdb.ReturnValues(proc.Procedure, false, err), err
	}

	frame := p.pushFrame(caller, proc).Ref()
	ctx = logging.WithCallID(ctx, frame.ID)
	if err := p.send(protocol.MsgTempProcRun, &protocol.ProcRun{Name: proc.OriginalName, Params: args}); err != nil {
		if p.removeFrame(frame) {
			frame.Unref()
		}
		frame.Unref()
		err = errors.NewPlugIn(proc.Prog, fmt.Sprintf("Failed to run plug-in %q", p.name), err)
		logging.PlugInError(p.prog, "running temporary procedure", err)
		return pdb.ReturnValues(proc.Procedure, false, err), err
	}

	m.pushPlugIn(p)
	defer m.popPlugIn(p)
	return m.wait(ctx, p, frame)
}

// Cancel stops every running plug-in.
func (m *Manager) Cancel() {
	for _, p := range m.OpenPlugIns() {
		p.Cancel()
	}
}
