// Package protocol defines the messages exchanged between the host and a
// plug-in process and registers their codecs on a wire.Registry.
//
// Both sides of a connection use NewRegistry, so the message set is always
// identical at either end of the pipes.
package protocol

import (
	"fmt"

	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/wire"
)

// Version is the protocol revision. A plug-in built against a different
// revision refuses the config message.
const Version = 0x0014

// Message type tags.
const (
	MsgQuit uint32 = iota
	MsgConfig
	MsgTileReq
	MsgTileAck
	MsgTileData
	MsgProcRun
	MsgProcReturn
	MsgTempProcRun
	MsgTempProcReturn
	MsgProcInstall
	MsgProcUninstall
	MsgExtensionAck
	MsgHasInit
)

var msgNames = map[uint32]string{
	MsgQuit:           "quit",
	MsgConfig:         "config",
	MsgTileReq:        "tile-req",
	MsgTileAck:        "tile-ack",
	MsgTileData:       "tile-data",
	MsgProcRun:        "proc-run",
	MsgProcReturn:     "proc-return",
	MsgTempProcRun:    "temp-proc-run",
	MsgTempProcReturn: "temp-proc-return",
	MsgProcInstall:    "proc-install",
	MsgProcUninstall:  "proc-uninstall",
	MsgExtensionAck:   "extension-ack",
	MsgHasInit:        "has-init",
}

// TypeName returns a printable name for a message type tag.
func TypeName(t uint32) string {
	if n, ok := msgNames[t]; ok {
		return n
	}
	return fmt.Sprintf("message(%d)", t)
}

// Config is the handshake the host sends before a run request.
type Config struct {
	Version        uint32
	TileWidth      uint32
	TileHeight     uint32
	ShmID          int32
	CheckSize      uint8
	CheckType      uint8
	ShowHelpButton bool
	UseCPUAccel    bool
	UseOpenCL      bool
	ShowTooltips   bool
	MinColors      uint8
	DisplayID      int32
	AppName        string
	WMClass        string
	DisplayName    string
	MonitorNumber  int32
	Timestamp      uint32
}

// TileReq asks the host for one tile of a drawable. A DrawableID of -1
// announces that a TileData upload follows.
type TileReq struct {
	DrawableID int32
	TileNum    uint32
	Shadow     bool
}

// TileData carries one tile of pixels. When UseShm is set the pixels are in
// the shared memory segment and Data is empty.
type TileData struct {
	DrawableID int32
	TileNum    uint32
	Shadow     bool
	Bpp        uint32
	Width      uint32
	Height     uint32
	UseShm     bool
	Data       []byte
}

// ProcRun starts a procedure. It is used for proc-run and temp-proc-run.
type ProcRun struct {
	Name   string
	Params pdb.ValueArray
}

// ProcReturn carries the return values of a run. Params starts with the
// status. It is used for proc-return and temp-proc-return.
type ProcReturn struct {
	Name   string
	Params pdb.ValueArray
}

// ParamDef describes one argument or return value of an installed procedure.
type ParamDef struct {
	Type        pdb.ArgType
	Name        string
	Description string
}

// ProcInstall registers a procedure a plug-in provides.
type ProcInstall struct {
	Name       string
	Blurb      string
	Help       string
	Author     string
	Copyright  string
	Date       string
	MenuPath   string
	ImageTypes string
	Type       pdb.ProcType
	Params     []ParamDef
	ReturnVals []ParamDef
}

// ProcUninstall removes a temporary procedure.
type ProcUninstall struct {
	Name string
}

// Register adds every message codec to r.
func Register(r *wire.Registry) error {
	codecs := []struct {
		t     uint32
		codec wire.Codec
	}{
		{MsgQuit, emptyCodec()},
		{MsgConfig, wire.Codec{Read: readConfig, Write: writeConfig}},
		{MsgTileReq, wire.Codec{Read: readTileReq, Write: writeTileReq}},
		{MsgTileAck, emptyCodec()},
		{MsgTileData, wire.Codec{Read: readTileData, Write: writeTileData, Destroy: destroyTileData}},
		{MsgProcRun, wire.Codec{Read: readProcRun, Write: writeProcRun}},
		{MsgProcReturn, wire.Codec{Read: readProcReturn, Write: writeProcReturn}},
		{MsgTempProcRun, wire.Codec{Read: readProcRun, Write: writeProcRun}},
		{MsgTempProcReturn, wire.Codec{Read: readProcReturn, Write: writeProcReturn}},
		{MsgProcInstall, wire.Codec{Read: readProcInstall, Write: writeProcInstall}},
		{MsgProcUninstall, wire.Codec{Read: readProcUninstall, Write: writeProcUninstall}},
		{MsgExtensionAck, emptyCodec()},
		{MsgHasInit, emptyCodec()},
	}
	for _, c := range codecs {
		if err := r.Register(c.t, c.codec); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the full message set.
func NewRegistry() *wire.Registry {
	r := wire.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}

func emptyCodec() wire.Codec {
	return wire.Codec{
		Read:  func(*wire.Channel) (any, error) { return nil, nil },
		Write: func(*wire.Channel, any) error { return nil },
	}
}

func readConfig(c *wire.Channel) (any, error) {
	d := decoder{c: c}
	cfg := &Config{
		Version:        d.u32(),
		TileWidth:      d.u32(),
		TileHeight:     d.u32(),
		ShmID:          d.i32(),
		CheckSize:      d.u8(),
		CheckType:      d.u8(),
		ShowHelpButton: d.flag8(),
		UseCPUAccel:    d.flag8(),
		UseOpenCL:      d.flag8(),
		ShowTooltips:   d.flag8(),
		MinColors:      d.u8(),
		DisplayID:      d.i32(),
		AppName:        d.str(),
		WMClass:        d.str(),
		DisplayName:    d.str(),
		MonitorNumber:  d.i32(),
		Timestamp:      d.u32(),
	}
	return cfg, d.err
}

func writeConfig(c *wire.Channel, data any) error {
	cfg, ok := data.(*Config)
	if !ok {
		return payloadError(MsgConfig, data)
	}
	e := encoder{c: c}
	e.u32(cfg.Version)
	e.u32(cfg.TileWidth)
	e.u32(cfg.TileHeight)
	e.i32(cfg.ShmID)
	e.u8(cfg.CheckSize)
	e.u8(cfg.CheckType)
	e.flag8(cfg.ShowHelpButton)
	e.flag8(cfg.UseCPUAccel)
	e.flag8(cfg.UseOpenCL)
	e.flag8(cfg.ShowTooltips)
	e.u8(cfg.MinColors)
	e.i32(cfg.DisplayID)
	e.str(cfg.AppName)
	e.str(cfg.WMClass)
	e.str(cfg.DisplayName)
	e.i32(cfg.MonitorNumber)
	e.u32(cfg.Timestamp)
	return e.err
}

func readTileReq(c *wire.Channel) (any, error) {
	d := decoder{c: c}
	req := &TileReq{
		DrawableID: d.i32(),
		TileNum:    d.u32(),
		Shadow:     d.flag32(),
	}
	return req, d.err
}

func writeTileReq(c *wire.Channel, data any) error {
	req, ok := data.(*TileReq)
	if !ok {
		return payloadError(MsgTileReq, data)
	}
	e := encoder{c: c}
	e.i32(req.DrawableID)
	e.u32(req.TileNum)
	e.flag32(req.Shadow)
	return e.err
}

func readTileData(c *wire.Channel) (any, error) {
	d := decoder{c: c}
	td := &TileData{
		DrawableID: d.i32(),
		TileNum:    d.u32(),
		Shadow:     d.flag32(),
		Bpp:        d.u32(),
		Width:      d.u32(),
		Height:     d.u32(),
		UseShm:     d.flag32(),
	}
	td.Data = d.bytes()
	return td, d.err
}

func writeTileData(c *wire.Channel, data any) error {
	td, ok := data.(*TileData)
	if !ok {
		return payloadError(MsgTileData, data)
	}
	e := encoder{c: c}
	e.i32(td.DrawableID)
	e.u32(td.TileNum)
	e.flag32(td.Shadow)
	e.u32(td.Bpp)
	e.u32(td.Width)
	e.u32(td.Height)
	e.flag32(td.UseShm)
	e.bytes(td.Data)
	return e.err
}

func destroyTileData(data any) {
	if td, ok := data.(*TileData); ok {
		td.Data = nil
	}
}

func readProcRun(c *wire.Channel) (any, error) {
	d := decoder{c: c}
	run := &ProcRun{Name: d.str()}
	run.Params = d.params()
	return run, d.err
}

func writeProcRun(c *wire.Channel, data any) error {
	run, ok := data.(*ProcRun)
	if !ok {
		return payloadError(MsgProcRun, data)
	}
	e := encoder{c: c}
	e.str(run.Name)
	e.params(run.Params)
	return e.err
}

func readProcReturn(c *wire.Channel) (any, error) {
	d := decoder{c: c}
	ret := &ProcReturn{Name: d.str()}
	ret.Params = d.params()
	return ret, d.err
}

func writeProcReturn(c *wire.Channel, data any) error {
	ret, ok := data.(*ProcReturn)
	if !ok {
		return payloadError(MsgProcReturn, data)
	}
	e := encoder{c: c}
	e.str(ret.Name)
	e.params(ret.Params)
	return e.err
}

func readProcInstall(c *wire.Channel) (any, error) {
	d := decoder{c: c}
	pi := &ProcInstall{
		Name:       d.str(),
		Blurb:      d.str(),
		Help:       d.str(),
		Author:     d.str(),
		Copyright:  d.str(),
		Date:       d.str(),
		MenuPath:   d.str(),
		ImageTypes: d.str(),
		Type:       pdb.ProcType(d.u32()),
	}
	nParams := d.count()
	nVals := d.count()
	pi.Params = d.paramDefs(nParams)
	pi.ReturnVals = d.paramDefs(nVals)
	return pi, d.err
}

func writeProcInstall(c *wire.Channel, data any) error {
	pi, ok := data.(*ProcInstall)
	if !ok {
		return payloadError(MsgProcInstall, data)
	}
	e := encoder{c: c}
	e.str(pi.Name)
	e.str(pi.Blurb)
	e.str(pi.Help)
	e.str(pi.Author)
	e.str(pi.Copyright)
	e.str(pi.Date)
	e.str(pi.MenuPath)
	e.str(pi.ImageTypes)
	e.u32(uint32(pi.Type))
	e.u32(uint32(len(pi.Params)))
	e.u32(uint32(len(pi.ReturnVals)))
	e.paramDefs(pi.Params)
	e.paramDefs(pi.ReturnVals)
	return e.err
}

func readProcUninstall(c *wire.Channel) (any, error) {
	d := decoder{c: c}
	pu := &ProcUninstall{Name: d.str()}
	return pu, d.err
}

func writeProcUninstall(c *wire.Channel, data any) error {
	pu, ok := data.(*ProcUninstall)
	if !ok {
		return payloadError(MsgProcUninstall, data)
	}
	e := encoder{c: c}
	e.str(pu.Name)
	return e.err
}

func payloadError(t uint32, data any) error {
	return fmt.Errorf("protocol: %s message cannot carry %T", TypeName(t), data)
}
