package ipc

import (
	"errors"
	"io"
	"testing"

	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/protocol"
	"github.com/FocuswithJustin/picman/core/wire"
)

// fakeHost is the host end of an in-memory connection.
type fakeHost struct {
	t        *testing.T
	registry *wire.Registry
	ch       *wire.Channel
}

func newConnection(t *testing.T, info Info) (*PlugIn, *fakeHost) {
	t.Helper()
	toPlugIn, hostW := io.Pipe()
	hostR, fromPlugIn := io.Pipe()
	t.Cleanup(func() {
		hostW.Close()
		fromPlugIn.Close()
	})
	p := New(info, toPlugIn, fromPlugIn)
	h := &fakeHost{
		t:        t,
		registry: protocol.NewRegistry(),
		ch:       wire.NewChannel(hostR, hostW, 0),
	}
	return p, h
}

func (h *fakeHost) send(msgType uint32, data any) {
	h.t.Helper()
	if err := h.registry.WriteMsg(h.ch, wire.Message{Type: msgType, Data: data}); err != nil {
		h.t.Fatalf("host write: %v", err)
	}
	if err := h.ch.Flush(); err != nil {
		h.t.Fatalf("host flush: %v", err)
	}
}

func (h *fakeHost) read(want uint32) wire.Message {
	h.t.Helper()
	msg, err := h.registry.ReadMsg(h.ch)
	if err != nil {
		h.t.Fatalf("host read: %v", err)
	}
	if msg.Type != want {
		h.t.Fatalf("host got %s, want %s", protocol.TypeName(msg.Type), protocol.TypeName(want))
	}
	return msg
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		want    Args
		wantErr bool
	}{
		{"query", []string{"prog", "-picman", "3", "4", "-query", "never"}, Args{3, 4, ModeQuery, "never"}, false},
		{"run", []string{"prog", "-picman", "5", "6", "-run", "always"}, Args{5, 6, ModeRun, "always"}, false},
		{"too short", []string{"prog", "-picman", "3"}, Args{}, true},
		{"missing marker", []string{"prog", "-gimp", "3", "4", "-query", "never"}, Args{}, true},
		{"bad fd", []string{"prog", "-picman", "x", "4", "-query", "never"}, Args{}, true},
		{"bad mode", []string{"prog", "-picman", "3", "4", "-frob", "never"}, Args{}, true},
		{"bad stack mode", []string{"prog", "-picman", "3", "4", "-init", "sometimes"}, Args{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArgs(tt.argv)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && *got != tt.want {
				t.Errorf("ParseArgs() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestServeQuery(t *testing.T) {
	p, h := newConnection(t, Info{
		Query: func(p *PlugIn) error {
			if err := p.Install(ProcDef{
				Name:      "plug-in-echo",
				Blurb:     "Echo",
				MenuLabel: "_Echo",
				Type:      pdb.PlugIn,
				Params: []Param{
					{pdb.ArgInt32, "run-mode", "The run mode"},
					{pdb.ArgString, "text", "Text"},
				},
				Returns: []Param{{pdb.ArgString, "text", "Text"}},
			}); err != nil {
				return err
			}
			return p.HasInit()
		},
	})

	done := make(chan error, 1)
	go func() { done <- p.Serve(ModeQuery) }()

	install := h.read(protocol.MsgProcInstall).Data.(*protocol.ProcInstall)
	if install.Name != "plug-in-echo" || install.MenuPath != "_Echo" || len(install.Params) != 2 {
		t.Errorf("unexpected install %+v", install)
	}
	h.read(protocol.MsgHasInit)
	h.read(protocol.MsgQuit)

	if err := <-done; err != nil {
		t.Fatalf("Serve() = %v", err)
	}
}

func TestServeRun(t *testing.T) {
	p, h := newConnection(t, Info{
		Query: func(*PlugIn) error { return nil },
		Run: func(p *PlugIn, name string, args pdb.ValueArray) pdb.ValueArray {
			if p.Config() == nil {
				return Failure(pdb.ExecutionError, "no config")
			}
			return Success(pdb.String(name + ":" + args[1].Str))
		},
	})

	done := make(chan error, 1)
	go func() { done <- p.Serve(ModeRun) }()

	h.send(protocol.MsgConfig, &protocol.Config{Version: protocol.Version, ShmID: -1})
	h.send(protocol.MsgProcRun, &protocol.ProcRun{
		Name:   "plug_in_echo",
		Params: pdb.ValueArray{pdb.Int32(1), pdb.String("hi")},
	})

	ret := h.read(protocol.MsgProcReturn).Data.(*protocol.ProcReturn)
	if ret.Name != "plug_in_echo" {
		t.Errorf("return name = %q", ret.Name)
	}
	if pdb.StatusOf(ret.Params) != pdb.Success || ret.Params[1].Str != "plug_in_echo:hi" {
		t.Errorf("unexpected return %v", ret.Params)
	}
	h.read(protocol.MsgQuit)

	if err := <-done; err != nil {
		t.Fatalf("Serve() = %v", err)
	}
}

func TestServeRunVersionMismatch(t *testing.T) {
	p, h := newConnection(t, Info{Query: func(*PlugIn) error { return nil }})

	done := make(chan error, 1)
	go func() { done <- p.Serve(ModeRun) }()

	h.send(protocol.MsgConfig, &protocol.Config{Version: protocol.Version + 1, ShmID: -1})
	h.read(protocol.MsgQuit)
	if err := <-done; err == nil {
		t.Fatal("expected a version mismatch error")
	}
}

func TestCallServesTempProcs(t *testing.T) {
	p, h := newConnection(t, Info{Query: func(*PlugIn) error { return nil }})

	result := make(chan pdb.ValueArray, 1)
	errc := make(chan error, 1)
	go func() {
		err := p.InstallTemp(ProcDef{Name: "temp-cb", Params: []Param{{pdb.ArgInt32, "n", ""}}},
			func(_ *PlugIn, _ string, args pdb.ValueArray) pdb.ValueArray {
				return Success(pdb.Int32(args[0].Int * 2))
			})
		if err != nil {
			errc <- err
			return
		}
		vals, err := p.Call("picman-something", pdb.Int32(7))
		if err != nil {
			errc <- err
			return
		}
		result <- vals
	}()

	install := h.read(protocol.MsgProcInstall).Data.(*protocol.ProcInstall)
	if install.Type != pdb.Temporary {
		t.Errorf("temporary install type = %v", install.Type)
	}
	run := h.read(protocol.MsgProcRun).Data.(*protocol.ProcRun)
	if run.Name != "picman-something" {
		t.Errorf("call name = %q", run.Name)
	}

	// A temporary run arrives before the answer.
	h.send(protocol.MsgTempProcRun, &protocol.ProcRun{Name: "temp_cb", Params: pdb.ValueArray{pdb.Int32(21)}})
	tret := h.read(protocol.MsgTempProcReturn).Data.(*protocol.ProcReturn)
	if tret.Params[1].Int != 42 {
		t.Errorf("temporary procedure returned %v", tret.Params)
	}

	h.send(protocol.MsgProcReturn, &protocol.ProcReturn{Name: "picman-something", Params: Success(pdb.Int32(1))})

	select {
	case err := <-errc:
		t.Fatal(err)
	case vals := <-result:
		if pdb.StatusOf(vals) != pdb.Success || vals[1].Int != 1 {
			t.Errorf("Call() = %v", vals)
		}
	}
}

func TestCallUnknownTempProc(t *testing.T) {
	p, h := newConnection(t, Info{Query: func(*PlugIn) error { return nil }})

	errc := make(chan error, 1)
	go func() { errc <- p.ExtensionLoop() }()

	h.send(protocol.MsgTempProcRun, &protocol.ProcRun{Name: "nobody"})
	ret := h.read(protocol.MsgTempProcReturn).Data.(*protocol.ProcReturn)
	if pdb.StatusOf(ret.Params) != pdb.CallingError {
		t.Errorf("status = %v, want calling error", pdb.StatusOf(ret.Params))
	}

	h.send(protocol.MsgQuit, nil)
	if err := <-errc; !errors.Is(err, ErrQuit) {
		t.Errorf("ExtensionLoop() = %v, want ErrQuit", err)
	}
}

func TestTiles(t *testing.T) {
	p, h := newConnection(t, Info{Query: func(*PlugIn) error { return nil }})

	type result struct {
		tile Tile
		err  error
	}
	got := make(chan result, 1)
	go func() {
		tile, err := p.GetTile(5, 2, false)
		got <- result{tile, err}
	}()

	req := h.read(protocol.MsgTileReq).Data.(*protocol.TileReq)
	if req.DrawableID != 5 || req.TileNum != 2 {
		t.Fatalf("tile request %+v", req)
	}
	h.send(protocol.MsgTileData, &protocol.TileData{
		DrawableID: 5, TileNum: 2, Bpp: 1, Width: 2, Height: 2, Data: []byte{1, 2, 3, 4},
	})
	h.read(protocol.MsgTileAck)
	r := <-got
	if r.err != nil {
		t.Fatalf("GetTile() = %v", r.err)
	}
	if string(r.tile.Data) != "\x01\x02\x03\x04" {
		t.Errorf("tile data = %v", r.tile.Data)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- p.PutTile(5, 2, true, Tile{Bpp: 1, Width: 2, Height: 1, Data: []byte{9, 8}})
	}()
	if req := h.read(protocol.MsgTileReq).Data.(*protocol.TileReq); req.DrawableID != -1 {
		t.Fatalf("upload request drawable = %d", req.DrawableID)
	}
	h.send(protocol.MsgTileData, &protocol.TileData{DrawableID: -1})
	up := h.read(protocol.MsgTileData).Data.(*protocol.TileData)
	if up.DrawableID != 5 || !up.Shadow || up.UseShm || string(up.Data) != "\x09\x08" {
		t.Errorf("uploaded tile %+v", up)
	}
	h.send(protocol.MsgTileAck, nil)
	if err := <-errc; err != nil {
		t.Fatalf("PutTile() = %v", err)
	}

	if err := p.PutTile(5, 0, false, Tile{Bpp: 4, Width: 1, Height: 1, Data: []byte{1}}); err == nil {
		t.Error("PutTile() accepted a short tile")
	}
}
