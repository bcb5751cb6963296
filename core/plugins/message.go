package plugins

import (
	"fmt"
	"unicode/utf8"

	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/protocol"
	"github.com/FocuswithJustin/picman/core/wire"
	"github.com/FocuswithJustin/picman/internal/logging"
)

// handleMessage dispatches one message read from the plug-in.
func (p *PlugIn) handleMessage(msg wire.Message) {
	switch msg.Type {
	case protocol.MsgQuit:
		p.Close(false)

	case protocol.MsgConfig, protocol.MsgTileAck, protocol.MsgTileData, protocol.MsgTempProcRun:
		p.protocolError("sent a %s message. This should not happen.", protocol.TypeName(msg.Type))

	case protocol.MsgTileReq:
		p.handleTileReq(msg.Data.(*protocol.TileReq))

	case protocol.MsgProcRun:
		run := msg.Data.(*protocol.ProcRun)
		if p.synchronous {
			p.handleProcRun(run)
		} else {
			go p.handleProcRun(run)
		}

	case protocol.MsgProcReturn:
		p.mainFrame.finish(answer(msg.Data.(*protocol.ProcReturn).Params))
		p.Close(false)

	case protocol.MsgTempProcReturn:
		ret := msg.Data.(*protocol.ProcReturn)
		f := p.popFrame(ret.Name)
		if f == nil {
			p.protocolError("sent a TEMP_PROC_RETURN message while not running a temporary procedure. This should not happen.")
			return
		}
		f.finish(answer(ret.Params))
		f.Unref()

	case protocol.MsgProcInstall:
		p.handleProcInstall(msg.Data.(*protocol.ProcInstall))

	case protocol.MsgProcUninstall:
		p.handleProcUninstall(msg.Data.(*protocol.ProcUninstall))

	case protocol.MsgExtensionAck:
		p.mu.Lock()
		ack := p.extAck
		p.mu.Unlock()
		if ack == nil {
			p.protocolError("sent an EXTENSION_ACK message while not being started as an extension. This should not happen.")
			return
		}
		ack.fire()

	case protocol.MsgHasInit:
		p.mu.Lock()
		mode, def := p.mode, p.def
		p.mu.Unlock()
		if mode != CallQuery || def == nil {
			p.protocolError("sent a HAS_INIT message while not in query(). This should not happen.")
			return
		}
		def.HasInit = true

	default:
		p.protocolError("sent an unknown message type %d", msg.Type)
	}
}

// handleProcRun runs a procedure on behalf of the plug-in and answers with
// the return values under the name the plug-in used.
func (p *PlugIn) handleProcRun(run *protocol.ProcRun) {
	frame := p.currentFrame()
	ctx := withPlugIn(p.ctx, p)

	name, proc := p.manager.pdb.Resolve(ctx, p.prog, pdb.CanonicalizeIdentifier(run.Name))

	var (
		vals pdb.ValueArray
		err  error
	)
	if proc == nil {
		err = pdb.Errorf(pdb.ErrProcedureNotFound, "Procedure '%s' not found", name)
		vals = pdb.ReturnValues(nil, false, err)
	} else {
		p.manager.pushPlugIn(p)
		vals, err = p.manager.pdb.ExecuteByName(ctx, frame.caller(), name, run.Params)
		p.manager.popPlugIn(p)
	}

	if err != nil && frame.ErrorHandler() == ErrorHandlerInternal {
		logging.PlugInError(p.prog, "calling "+name, err)
	}

	if err := p.send(protocol.MsgProcReturn, &protocol.ProcReturn{Name: run.Name, Params: vals}); err != nil {
		if p.IsOpen() {
			logging.PlugInError(p.prog, "sending return values", err)
			p.Close(true)
		}
	}
}

func validUTF8(strs ...string) bool {
	for _, s := range strs {
		if !utf8.ValidString(s) {
			return false
		}
	}
	return true
}

func (p *PlugIn) handleProcInstall(install *protocol.ProcInstall) {
	for i := 1; i < len(install.Params); i++ {
		vt, ok := install.Params[i].Type.ValueType()
		if ok && vt.IsArray() && install.Params[i-1].Type != pdb.ArgInt32 {
			logging.PlugInError(p.prog, "installing procedure", fmt.Errorf(
				"plug-in %q attempted to install procedure %q which fails to comply with the "+
					"array parameter passing standard. Argument %d is noncompliant.",
				p.name, install.Name, i))
			return
		}
	}

	valid := validUTF8(install.Name, install.Blurb, install.Help, install.Author,
		install.Copyright, install.Date, install.MenuPath, install.ImageTypes)
	for _, params := range [][]protocol.ParamDef{install.Params, install.ReturnVals} {
		for _, param := range params {
			valid = valid && validUTF8(param.Name, param.Description)
		}
	}
	if !valid {
		logging.PlugInError(p.prog, "installing procedure", fmt.Errorf(
			"plug-in %q attempted to install a procedure with invalid UTF-8 strings", p.name))
		return
	}

	switch install.Type {
	case pdb.PlugIn, pdb.Extension, pdb.Temporary:
	default:
		p.protocolError("attempted to install procedure %q with invalid type %d", install.Name, install.Type)
		return
	}

	proc := NewProcedure(install.Name, install.Type, p.prog)
	proc.Blurb = install.Blurb
	proc.Help = install.Help
	proc.Author = install.Author
	proc.Copyright = install.Copyright
	proc.Date = install.Date
	proc.SetImageTypes(install.ImageTypes)
	for _, param := range install.Params {
		spec, err := pdb.ParamSpecFromArgType(param.Type, param.Name, param.Description)
		if err != nil {
			p.protocolError("attempted to install procedure %q: %v", install.Name, err)
			return
		}
		proc.AddArgument(spec)
	}
	for _, param := range install.ReturnVals {
		spec, err := pdb.ParamSpecFromArgType(param.Type, param.Name, param.Description)
		if err != nil {
			p.protocolError("attempted to install procedure %q: %v", install.Name, err)
			return
		}
		proc.AddReturnValue(spec)
	}

	if install.MenuPath != "" {
		if install.MenuPath[0] == '<' {
			if err := proc.AddMenuPath(install.MenuPath); err != nil {
				logging.PlugInError(p.prog, "installing procedure", err)
			}
		} else {
			proc.MenuLabel = install.MenuPath
		}
	}

	p.mu.Lock()
	mode, def := p.mode, p.def
	p.mu.Unlock()

	switch install.Type {
	case pdb.PlugIn, pdb.Extension:
		if def == nil {
			logging.PlugInError(p.prog, "installing procedure", fmt.Errorf(
				"plug-in %q attempted to install procedure %q outside of query() or init()",
				p.name, install.Name))
			return
		}
		proc.InstalledDuringInit = mode == CallInit
		def.AddProcedure(proc)
	case pdb.Temporary:
		p.AddTempProc(proc)
	}
}

func (p *PlugIn) handleProcUninstall(un *protocol.ProcUninstall) {
	if proc := p.findTempProc(un.Name); proc != nil {
		p.RemoveTempProc(proc)
	}
}

func (p *PlugIn) findTempProc(name string) *Procedure {
	name = pdb.CanonicalizeIdentifier(name)
	p.mu.Lock()
	defer p.mu.Unlock()
	return FindProcedure(p.tempProcs, name)
}

// handleTileReq moves one tile between the host and the plug-in. A
// drawable id of -1 announces an upload; anything else is a download.
func (p *PlugIn) handleTileReq(req *protocol.TileReq) {
	m := p.manager
	shm := m.sharedMemory()

	if req.DrawableID == -1 {
		if err := p.send(protocol.MsgTileData, &protocol.TileData{DrawableID: -1, UseShm: shm != nil}); err != nil {
			p.tileError("could not send tile data", err)
			return
		}
		msg, err := p.readMsg()
		if err != nil {
			p.tileError("could not read tile data", err)
			return
		}
		defer m.registry.Destroy(msg)
		if msg.Type != protocol.MsgTileData {
			p.protocolError("expected tile data and received: %s", protocol.TypeName(msg.Type))
			return
		}
		info := msg.Data.(*protocol.TileData)

		drawable := p.lookupDrawable(info.DrawableID)
		if drawable == nil {
			p.protocolError("requested invalid drawable (killing)")
			return
		}
		tile := Tile{Bpp: info.Bpp, Width: info.Width, Height: info.Height, Data: info.Data}
		if info.UseShm && shm != nil {
			n := int(info.Bpp * info.Width * info.Height)
			if n > len(shm.Bytes()) {
				p.protocolError("requested invalid tile (killing)")
				return
			}
			tile.Data = append([]byte(nil), shm.Bytes()[:n]...)
		}
		if info.Shadow {
			p.currentFrame().AddShadow(drawable)
		}
		if !drawable.WriteTile(info.TileNum, info.Shadow, tile) {
			p.protocolError("requested invalid tile (killing)")
			return
		}
		// A failed ack surfaces through the channel error Serve checks.
		_ = p.send(protocol.MsgTileAck, nil)
		return
	}

	drawable := p.lookupDrawable(req.DrawableID)
	if drawable == nil {
		p.protocolError("requested invalid drawable (killing)")
		return
	}
	if req.Shadow {
		p.currentFrame().AddShadow(drawable)
	}
	tile, ok := drawable.ReadTile(req.TileNum, req.Shadow)
	if !ok {
		p.protocolError("requested invalid tile (killing)")
		return
	}

	data := &protocol.TileData{
		DrawableID: req.DrawableID,
		TileNum:    req.TileNum,
		Shadow:     req.Shadow,
		Bpp:        tile.Bpp,
		Width:      tile.Width,
		Height:     tile.Height,
	}
	if shm != nil && len(tile.Data) <= len(shm.Bytes()) {
		copy(shm.Bytes(), tile.Data)
		data.UseShm = true
	} else {
		data.Data = tile.Data
	}
	if err := p.send(protocol.MsgTileData, data); err != nil {
		p.tileError("could not send tile data", err)
		return
	}

	msg, err := p.readMsg()
	if err != nil {
		p.tileError("could not read tile ack", err)
		return
	}
	m.registry.Destroy(msg)
	if msg.Type != protocol.MsgTileAck {
		p.protocolError("expected tile ack and received: %s", protocol.TypeName(msg.Type))
	}
}

func (p *PlugIn) tileError(what string, err error) {
	logging.PlugInError(p.prog, what, err)
	p.Close(true)
}

func (p *PlugIn) lookupDrawable(id int32) Drawable {
	d, err := p.manager.lookupDrawable(id)
	if err != nil {
		return nil
	}
	return d
}
