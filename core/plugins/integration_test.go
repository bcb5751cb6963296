package plugins

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FocuswithJustin/picman/core/errors"
	"github.com/FocuswithJustin/picman/core/pdb"
)

var noDisplay = pdb.Caller{Display: -1}

func TestRestoreQueriesAndCaches(t *testing.T) {
	m, dir := restoredManager(t)

	for _, name := range []string{"test-echo", "test-init-proc", "file-test-load", "test-temp-double"} {
		if !m.PDB().Exists(name) {
			t.Errorf("procedure %s was not registered", name)
		}
	}

	echo := m.FindProcedure("test-echo")
	if echo == nil {
		t.Fatal("test-echo missing from the plug-in procedures")
	}
	if got := echo.Label(); got != "Test Echo" {
		t.Errorf("Label() = %q, want %q", got, "Test Echo")
	}
	if len(echo.MenuPaths) != 1 || echo.MenuPaths[0] != "<Image>/Filters/Test" {
		t.Errorf("MenuPaths = %v", echo.MenuPaths)
	}

	prog := filepath.Join(fakePlugInDir, fakeName)
	if name, _ := m.LocaleDomain(prog); name != "picman-test" {
		t.Errorf("LocaleDomain() = %q, want picman-test", name)
	}
	if name, uri := m.HelpDomain(prog); name != "picman-test-help" || uri != "file:///usr/share/help" {
		t.Errorf("HelpDomain() = %q, %q", name, uri)
	}

	load := FindFileProcedure(m.LoadProcs(), "picture.tst")
	if load == nil || load.Name != "file-test-load" {
		t.Fatalf("FindFileProcedure(picture.tst) = %v", load)
	}
	if load.File.MimeType != "image/x-test" {
		t.Errorf("MimeType = %q", load.File.MimeType)
	}

	if _, err := os.Stat(m.Config().PluginRC); err != nil {
		t.Fatalf("plug-in cache not written: %v", err)
	}
	events := fakeEvents(t, dir)
	if n := countEvents(events, "query"); n != 1 {
		t.Errorf("plug-in queried %d times, want 1", n)
	}
	if n := countEvents(events, "init"); n != 1 {
		t.Errorf("plug-in initialized %d times, want 1", n)
	}

	// A second host with the same cache must not query again, but init
	// runs on every start.
	second := newTestManager(t, dir)
	if err := second.Restore(context.Background()); err != nil {
		t.Fatalf("second Restore() = %v", err)
	}
	events = fakeEvents(t, dir)
	if n := countEvents(events, "query"); n != 1 {
		t.Errorf("plug-in queried %d times after a cached restore, want 1", n)
	}
	if n := countEvents(events, "init"); n != 2 {
		t.Errorf("plug-in initialized %d times, want 2", n)
	}
	if !second.PDB().Exists("test-init-proc") || !second.PDB().Exists("test-echo") {
		t.Error("cached restore lost procedures")
	}
	if p := second.FindProcedure("test-echo"); p == nil || len(p.MenuPaths) != 1 {
		t.Errorf("cached test-echo = %+v", p)
	}
	if p := FindFileProcedure(second.LoadProcs(), "picture.tst"); p == nil || p.File.MimeType != "image/x-test" {
		t.Errorf("cached load handler = %+v", p)
	}
}

func TestRestoreMagicLoadHandler(t *testing.T) {
	m, _ := restoredManager(t)

	path := filepath.Join(t.TempDir(), "no-extension")
	if err := os.WriteFile(path, []byte("TST1 payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if p := FindFileProcedure(m.LoadProcs(), path); p == nil || p.Name != "file-test-load" {
		t.Errorf("FindFileProcedure(magic) = %v", p)
	}

	vals, err := m.PDB().Run(context.Background(), noDisplay, "file-test-load",
		pdb.Int32(1), pdb.String(path), pdb.String(path))
	if err != nil {
		t.Fatalf("file-test-load: %v", err)
	}
	if pdb.StatusOf(vals) != pdb.Success || vals[1].Type != pdb.ValueImageID || vals[1].Int != 1 {
		t.Errorf("file-test-load = %v", vals)
	}
}

func TestRunEcho(t *testing.T) {
	m, _ := restoredManager(t)

	vals, err := m.PDB().Run(context.Background(), noDisplay, "test-echo", pdb.Int32(1), pdb.String("hello"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pdb.StatusOf(vals) != pdb.Success {
		t.Fatalf("status = %v", pdb.StatusOf(vals))
	}
	if len(vals) != 2 || vals[1].Str != "hello" {
		t.Errorf("Run() = %v", vals)
	}
	eventually(t, "the plug-in to exit", func() bool { return len(m.OpenPlugIns()) == 1 })
}

func TestRunPadsShortReturn(t *testing.T) {
	m, _ := restoredManager(t)

	vals, err := m.PDB().Run(context.Background(), noDisplay, "test-short", pdb.Int32(1))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(vals) != 3 {
		t.Fatalf("got %d values, want 3", len(vals))
	}
	if vals[1].Type != pdb.ValueString || vals[1].Str != "" {
		t.Errorf("padded value 1 = %+v", vals[1])
	}
	if vals[2].Type != pdb.ValueInt32 || vals[2].Int != 0 {
		t.Errorf("padded value 2 = %+v", vals[2])
	}
}

func TestRunCrash(t *testing.T) {
	m, _ := restoredManager(t)

	vals, err := m.PDB().Run(context.Background(), noDisplay, "test-crash", pdb.Int32(1))
	if err == nil {
		t.Fatal("expected an error from a crashing plug-in")
	}
	if !stderrors.Is(err, errors.ErrPlugInClosed) {
		t.Errorf("error = %v, want ErrPlugInClosed", err)
	}
	if pdb.StatusOf(vals) != pdb.ExecutionError {
		t.Errorf("status = %v, want %v", pdb.StatusOf(vals), pdb.ExecutionError)
	}
}

func TestRunContextCancel(t *testing.T) {
	m, _ := restoredManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	vals, err := m.PDB().Run(ctx, noDisplay, "test-hang", pdb.Int32(1))
	if time.Since(start) > 10*time.Second {
		t.Errorf("cancelled call took %v", time.Since(start))
	}
	if pdb.StatusOf(vals) != pdb.Cancel {
		t.Errorf("status = %v, want %v", pdb.StatusOf(vals), pdb.Cancel)
	}
	if !pdb.IsCode(err, pdb.ErrCancelled) {
		t.Errorf("error = %v, want a cancellation", err)
	}
}

func TestRunProgressCancel(t *testing.T) {
	m, _ := restoredManager(t)

	prog := newFakeProgress()
	time.AfterFunc(200*time.Millisecond, func() { close(prog.cancel) })
	vals, err := m.PDB().Run(context.Background(), pdb.Caller{Display: -1, Progress: prog}, "test-hang", pdb.Int32(1))
	if err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if pdb.StatusOf(vals) != pdb.Cancel {
		t.Errorf("status = %v, want %v", pdb.StatusOf(vals), pdb.Cancel)
	}
}

func TestRunCallsBackIntoHost(t *testing.T) {
	m, _ := restoredManager(t)

	tests := []struct {
		name string
		want int32
	}{
		{"test-echo", 1},
		{"picman-procedural-db-temp-name", 1},
		{"picman-temp-PDB-name", 1},
		{"no-such-procedure", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vals, err := m.PDB().Run(context.Background(), noDisplay, "test-call", pdb.Int32(1), pdb.String(tt.name))
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if vals[1].Int != tt.want {
				t.Errorf("exists = %d, want %d", vals[1].Int, tt.want)
			}
		})
	}
}

func TestRunCallsDeprecatedName(t *testing.T) {
	m, _ := restoredManager(t)

	vals, err := m.PDB().Run(context.Background(), noDisplay, "test-call-compat", pdb.Int32(1))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pdb.StatusOf(vals) != pdb.Success {
		t.Fatalf("status = %v (%s)", pdb.StatusOf(vals), pdb.MessageOf(vals))
	}
	if !strings.HasPrefix(vals[1].Str, "temp-procedure-number-") {
		t.Errorf("temp name = %q", vals[1].Str)
	}
}

func TestRunEmptyReturn(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	m.Environ().Set(fakeRawEnv, rawEmpty)

	proc := withArgs(NewProcedure("test-empty", pdb.PlugIn, filepath.Join(fakePlugInDir, fakeName)), pdb.ValueInt32)
	proc.AddReturnValue(pdb.ParamSpec{Type: pdb.ValueString, Name: "text"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	vals, err := m.CallRun(ctx, noDisplay, proc, pdb.ValueArray{pdb.Int32(1)}, true)
	if !pdb.IsCode(err, pdb.ErrInvalidReturnValue) {
		t.Fatalf("CallRun() error = %v, want an invalid return value", err)
	}
	if pdb.StatusOf(vals) != pdb.CallingError {
		t.Errorf("status = %v, want %v", pdb.StatusOf(vals), pdb.CallingError)
	}
}

func TestQueryPlugInThatOnlyQuits(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	m.Environ().Set(fakeRawEnv, rawQuit)
	def := NewDef(filepath.Join(fakePlugInDir, fakeName))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.CallQuery(ctx, def); err != nil {
		t.Fatalf("CallQuery() = %v", err)
	}
	if len(def.Procedures) != 0 || def.HasInit {
		t.Errorf("definition = %+v, want nothing installed", def)
	}
	eventually(t, "the plug-in to close", func() bool { return len(m.OpenPlugIns()) == 0 })
}

func TestRunCleansUpAfterPlugIn(t *testing.T) {
	store := newFakeStore()
	m, _ := restoredManager(t, WithImageStore(store))

	prog := newFakeProgress()
	caller := pdb.Caller{Display: -1, Progress: prog}
	vals, err := m.PDB().Run(context.Background(), caller, "test-undo",
		pdb.Int32(1), pdb.ImageID(1), pdb.DrawableID(2))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pdb.StatusOf(vals) != pdb.Success {
		t.Fatalf("status = %v (%s)", pdb.StatusOf(vals), pdb.MessageOf(vals))
	}

	img := store.images[1]
	drw := store.drawables[2]
	eventually(t, "the undo group to be closed", func() bool { return img.UndoGroupCount() == 0 })
	eventually(t, "the shadow buffer to be freed", func() bool {
		drw.mu.Lock()
		defer drw.mu.Unlock()
		return drw.freed == 1 && drw.shadow == nil
	})

	drw.mu.Lock()
	pixels := string(drw.pixels)
	drw.mu.Unlock()
	if pixels != "\x01\x02\x03\x04" {
		t.Errorf("shadow write leaked into the pixels: %v", []byte(pixels))
	}
}

func TestRunEndsProgress(t *testing.T) {
	m, _ := restoredManager(t)

	prog := newFakeProgress()
	caller := pdb.Caller{Display: -1, Progress: prog}
	vals, err := m.PDB().Run(context.Background(), caller, "test-progress", pdb.Int32(1))
	if err != nil || pdb.StatusOf(vals) != pdb.Success {
		t.Fatalf("Run() = %v, %v", vals, err)
	}
	eventually(t, "the progress to end", func() bool { return !prog.IsActive() })

	prog.mu.Lock()
	defer prog.mu.Unlock()
	if prog.starts != 1 || prog.ends != 1 {
		t.Errorf("progress started %d and ended %d times", prog.starts, prog.ends)
	}
	if prog.text != "Working" || prog.value != 0.5 {
		t.Errorf("progress text %q value %v", prog.text, prog.value)
	}
}

func TestTemporaryProcedure(t *testing.T) {
	m, _ := restoredManager(t)

	proc := m.FindProcedure("test-temp-double")
	if proc == nil || proc.Type != pdb.Temporary {
		t.Fatalf("temporary procedure = %+v", proc)
	}
	if p := proc.PlugIn(); p == nil || !p.IsOpen() {
		t.Fatal("the extension serving the temporary procedure is not running")
	}

	for _, n := range []int32{0, 21, -4} {
		vals, err := m.PDB().Run(context.Background(), noDisplay, "test-temp-double", pdb.Int32(n))
		if err != nil {
			t.Fatalf("Run(%d) error = %v", n, err)
		}
		if vals[1].Int != 2*n {
			t.Errorf("Run(%d) = %d, want %d", n, vals[1].Int, 2*n)
		}
	}

	if err := m.Exit(context.Background()); err != nil {
		t.Fatalf("Exit() = %v", err)
	}
	if m.PDB().Exists("test-temp-double") {
		t.Error("temporary procedure survived its plug-in")
	}
	if m.FindProcedure("test-temp-double") != nil {
		t.Error("temporary procedure still listed")
	}
	if n := len(m.OpenPlugIns()); n != 0 {
		t.Errorf("%d plug-ins still open after Exit", n)
	}
}
