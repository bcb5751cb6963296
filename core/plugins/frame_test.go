package plugins

import (
	stderrors "errors"
	"testing"

	"github.com/FocuswithJustin/picman/core/errors"
	"github.com/FocuswithJustin/picman/core/pdb"
)

type namedContext string

func (c namedContext) Name() string { return string(c) }

// frameOwner returns a process stub whose frames clean up against store.
func frameOwner(store ImageStore) *PlugIn {
	return &PlugIn{
		manager: &Manager{images: store},
		prog:    "/plug-ins/stub",
		name:    "stub",
		closed:  newSignal(),
	}
}

func TestFrameCleanupRunsOnce(t *testing.T) {
	store := newFakeStore()
	img := store.images[1]
	f := newFrame(frameOwner(store), pdb.Caller{}, nil)

	f.AddUndoGroup(img)
	img.UndoGroupStart("a")
	img.UndoGroupStart("b")

	f.Ref()
	f.Unref()
	if got := img.UndoGroupCount(); got != 2 {
		t.Fatalf("cleanup ran while referenced: depth %d", got)
	}
	f.Unref()
	if got := img.UndoGroupCount(); got != 0 {
		t.Errorf("depth after cleanup = %d, want 0", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("releasing a dead frame did not panic")
		}
	}()
	f.Unref()
}

func TestFrameCleanupKeepsOuterGroups(t *testing.T) {
	store := newFakeStore()
	img := store.images[1]
	img.UndoGroupStart("user")

	f := newFrame(frameOwner(store), pdb.Caller{}, nil)
	f.AddUndoGroup(img)
	img.UndoGroupStart("plug-in")
	f.AddUndoGroup(img)
	img.UndoGroupStart("plug-in nested")
	f.Unref()

	if got := img.UndoGroupCount(); got != 1 {
		t.Errorf("depth = %d, want the user's group to survive", got)
	}
}

func TestFrameRemoveUndoGroup(t *testing.T) {
	store := newFakeStore()
	img := store.images[1]
	f := newFrame(frameOwner(store), pdb.Caller{}, nil)

	if f.RemoveUndoGroup(img) {
		t.Error("RemoveUndoGroup() succeeded without a group")
	}

	f.AddUndoGroup(img)
	img.UndoGroupStart("one")
	if !f.RemoveUndoGroup(img) {
		t.Fatal("RemoveUndoGroup() failed for an open group")
	}
	img.UndoGroupEnd()
	if f.RemoveUndoGroup(img) {
		t.Error("group still tracked after closing back to the recorded depth")
	}

	// Something else opened a group after the plug-in was done; cleanup
	// must leave it alone.
	img.UndoGroupStart("other")
	f.Unref()
	if got := img.UndoGroupCount(); got != 1 {
		t.Errorf("depth = %d, want 1", got)
	}
}

func TestFrameCleanupSkipsStaleObjects(t *testing.T) {
	store := newFakeStore()
	img := store.images[1]
	drw := store.drawables[2]

	f := newFrame(frameOwner(store), pdb.Caller{}, nil)
	f.AddUndoGroup(img)
	img.UndoGroupStart("plug-in")
	f.AddShadow(drw)
	drw.WriteTile(0, true, Tile{Bpp: 1, Width: 2, Height: 2, Data: []byte{9, 9, 9, 9}})

	// Both ids now name different objects.
	replacementImg := &fakeImage{id: 1, depth: 3}
	replacementDrw := &fakeDrawable{id: 2, shadow: []byte{1, 1, 1, 1}}
	store.mu.Lock()
	store.images[1] = replacementImg
	store.drawables[2] = replacementDrw
	store.mu.Unlock()

	f.Unref()

	if replacementImg.UndoGroupCount() != 3 {
		t.Error("cleanup closed undo groups of a different image")
	}
	if !replacementDrw.HasShadow() {
		t.Error("cleanup freed the shadow of a different drawable")
	}
	if img.UndoGroupCount() != 1 || !drw.HasShadow() {
		t.Error("cleanup touched a destroyed object")
	}
}

func TestFrameCleanupFreesShadow(t *testing.T) {
	store := newFakeStore()
	drw := store.drawables[2]
	f := newFrame(frameOwner(store), pdb.Caller{}, nil)

	f.AddShadow(drw)
	f.AddShadow(drw)
	drw.WriteTile(0, true, Tile{Bpp: 1, Width: 2, Height: 2, Data: []byte{5, 6, 7, 8}})
	f.Unref()

	if drw.HasShadow() {
		t.Error("shadow buffer left behind")
	}
	if drw.freed != 1 {
		t.Errorf("shadow freed %d times, want 1", drw.freed)
	}

	g := newFrame(frameOwner(store), pdb.Caller{}, nil)
	g.AddShadow(drw)
	if !g.RemoveShadow(drw) {
		t.Fatal("RemoveShadow() = false")
	}
	drw.WriteTile(0, true, Tile{Bpp: 1, Width: 2, Height: 2, Data: []byte{5, 6, 7, 8}})
	g.Unref()
	if !drw.HasShadow() {
		t.Error("cleanup freed a shadow the plug-in took care of")
	}
}

func TestFrameProgressCleanup(t *testing.T) {
	t.Run("started by the plug-in", func(t *testing.T) {
		prog := newFakeProgress()
		f := newFrame(nil, pdb.Caller{Progress: prog}, nil)
		f.progressStart("Working")
		f.progressSetValue(0.25)
		f.Unref()
		if prog.IsActive() || prog.ends != 1 {
			t.Errorf("active %v, ended %d times", prog.IsActive(), prog.ends)
		}
	})

	t.Run("already running", func(t *testing.T) {
		prog := newFakeProgress()
		prog.Start("outer", true)
		f := newFrame(nil, pdb.Caller{Progress: prog}, nil)
		f.progressStart("inner")
		f.Unref()
		if !prog.IsActive() {
			t.Error("cleanup ended a progress it did not start")
		}
		if prog.text != "inner" || prog.starts != 1 {
			t.Errorf("text %q, %d starts", prog.text, prog.starts)
		}
	})

	t.Run("ended by the plug-in", func(t *testing.T) {
		prog := newFakeProgress()
		f := newFrame(nil, pdb.Caller{Progress: prog}, nil)
		f.progressPulse()
		f.progressEnd()
		prog.Start("someone else", false)
		f.Unref()
		if !prog.IsActive() {
			t.Error("cleanup ended a progress started after the plug-in's")
		}
	})
}

func TestFrameReturnValues(t *testing.T) {
	proc := NewProcedure("test-values", pdb.PlugIn, "/plug-ins/stub")
	proc.AddReturnValue(pdb.ParamSpec{Type: pdb.ValueString, Name: "s"})
	proc.AddReturnValue(pdb.ParamSpec{Type: pdb.ValueFloat, Name: "f"})

	f := newFrame(frameOwner(nil), pdb.Caller{}, proc)
	select {
	case <-f.Done():
		t.Fatal("frame done before finishing")
	default:
	}

	vals, err := f.returnValues()
	if !stderrors.Is(err, errors.ErrPlugInClosed) {
		t.Errorf("unfinished frame error = %v", err)
	}
	if pdb.StatusOf(vals) != pdb.ExecutionError {
		t.Errorf("unfinished frame status = %v", pdb.StatusOf(vals))
	}

	f.finish(pdb.ValueArray{pdb.StatusValue(pdb.Success), pdb.String("x")})
	f.finish(pdb.StatusValues(pdb.ExecutionError))
	<-f.Done()

	vals, err = f.returnValues()
	if err != nil {
		t.Fatalf("returnValues() error = %v", err)
	}
	if len(vals) != 3 || vals[1].Str != "x" || vals[2].Type != pdb.ValueFloat {
		t.Errorf("returnValues() = %v", vals)
	}
}

func TestFrameEmptyAnswer(t *testing.T) {
	proc := NewProcedure("test-empty", pdb.PlugIn, "/plug-ins/stub")
	proc.AddReturnValue(pdb.ParamSpec{Type: pdb.ValueString, Name: "s"})

	f := newFrame(frameOwner(nil), pdb.Caller{}, proc)
	f.finish(answer(nil))
	f.finish(pdb.StatusValues(pdb.Success))
	<-f.Done()

	vals, err := f.returnValues()
	if !pdb.IsCode(err, pdb.ErrInvalidReturnValue) {
		t.Fatalf("returnValues() error = %v, want an invalid return value", err)
	}
	if stderrors.Is(err, errors.ErrPlugInClosed) {
		t.Error("an empty answer was reported as a closed plug-in")
	}
	if pdb.StatusOf(vals) != pdb.CallingError {
		t.Errorf("status = %v, want %v", pdb.StatusOf(vals), pdb.CallingError)
	}
	if msg := pdb.MessageOf(vals); msg != "Procedure 'test-empty' returned no return values" {
		t.Errorf("message = %q", msg)
	}
}

func TestFrameCancelLosesToAnswer(t *testing.T) {
	f := newFrame(nil, pdb.Caller{}, nil)
	f.finish(pdb.StatusValues(pdb.Success))
	f.cancel()
	vals, _ := f.returnValues()
	if pdb.StatusOf(vals) != pdb.Success {
		t.Errorf("status = %v, want the first answer", pdb.StatusOf(vals))
	}

	g := newFrame(nil, pdb.Caller{}, nil)
	g.cancel()
	vals, _ = g.returnValues()
	if pdb.StatusOf(vals) != pdb.Cancel {
		t.Errorf("status = %v, want cancel", pdb.StatusOf(vals))
	}
}

func TestFrameContextStack(t *testing.T) {
	f := newFrame(nil, pdb.Caller{Context: namedContext("user")}, nil)
	if f.PopContext() {
		t.Error("PopContext() succeeded on an empty stack")
	}
	f.PushContext(namedContext("a"))
	f.PushContext(namedContext("b"))
	if got := f.caller().Context.Name(); got != "b" {
		t.Errorf("current context = %q", got)
	}
	f.PopContext()
	f.PopContext()
	if got := f.Context().Name(); got != "user" {
		t.Errorf("context after popping = %q", got)
	}
}
