package main

import (
	"reflect"
	"testing"

	"github.com/FocuswithJustin/picman/core/pdb"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		t       pdb.ValueType
		in      string
		want    pdb.Value
		wantErr bool
	}{
		{pdb.ValueInt32, "42", pdb.Int32(42), false},
		{pdb.ValueInt32, "0x10", pdb.Int32(16), false},
		{pdb.ValueInt16, "70000", pdb.Value{}, true},
		{pdb.ValueInt8, "255", pdb.Int8(255), false},
		{pdb.ValueFloat, "0.5", pdb.Float(0.5), false},
		{pdb.ValueString, "a b", pdb.String("a b"), false},
		{pdb.ValueBoolean, "true", pdb.Bool(true), false},
		{pdb.ValueImageID, "3", pdb.ImageID(3), false},
		{pdb.ValueDrawableID, "x", pdb.Value{}, true},
		{pdb.ValueInt32Array, "1,2,3", pdb.Int32Array(1, 2, 3), false},
		{pdb.ValueInt8Array, "1, 255", pdb.Int8Array([]byte{1, 255}), false},
		{pdb.ValueFloatArray, "0.5 1", pdb.FloatArray(0.5, 1), false},
		{pdb.ValueStringArray, "a,b", pdb.StringArray("a", "b"), false},
		{pdb.ValueColor, "1,0,0", pdb.ColorValue(pdb.Color{R: 1, A: 1}), false},
		{pdb.ValueColor, "1,0", pdb.Value{}, true},
		{pdb.ValueColorArray, "1,0,0;0,0,1,0.5", pdb.ColorArray(pdb.Color{R: 1, A: 1}, pdb.Color{B: 1, A: 0.5}), false},
		{pdb.ValueParasite, "x", pdb.Value{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.t.String()+"/"+tt.in, func(t *testing.T) {
			got, err := parseValue(tt.t, tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseValue(%s, %q) error = %v, wantErr %v", tt.t, tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseValue(%s, %q) = %#v, want %#v", tt.t, tt.in, got, tt.want)
			}
		})
	}
}

func TestParseArgsDefaultsRunMode(t *testing.T) {
	proc := pdb.NewProcedure("plug-in-test", pdb.PlugIn)
	proc.AddArgument(pdb.ParamSpec{Type: pdb.ValueInt32, Name: "run_mode"})
	proc.AddArgument(pdb.ParamSpec{Type: pdb.ValueString, Name: "text"})

	args, err := parseArgs(proc, []string{"hi"})
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 2 || args[0].Int != 1 || args[1].Str != "hi" {
		t.Errorf("parseArgs() = %v", args)
	}
	if _, err := parseArgs(proc, nil); err == nil {
		t.Error("parseArgs() accepted a missing argument")
	}
}

func TestMemDrawableTiles(t *testing.T) {
	store := newMemStore(2, 2)
	img, drw := store.NewImage(3, 3, 1)
	if store.Image(img) == nil || store.Drawable(drw) == nil || store.Image(drw) != nil {
		t.Fatal("store lookup mismatch")
	}
	d := store.Drawable(drw)

	edge, ok := d.ReadTile(3, false)
	if !ok || edge.Width != 1 || edge.Height != 1 {
		t.Fatalf("corner tile = %+v, %v", edge, ok)
	}
	if _, ok := d.ReadTile(4, false); ok {
		t.Error("tile beyond the drawable was readable")
	}

	edge.Data[0] = 9
	if !d.WriteTile(3, true, edge) || !d.HasShadow() {
		t.Fatal("shadow write failed")
	}
	if got, _ := d.ReadTile(3, false); got.Data[0] != 0 {
		t.Error("shadow write reached the pixels")
	}
	if got, _ := d.ReadTile(3, true); got.Data[0] != 9 {
		t.Error("shadow tile lost the write")
	}
	d.FreeShadow()
	if d.HasShadow() {
		t.Error("shadow survived FreeShadow")
	}

	right, _ := d.ReadTile(1, false)
	right.Data = []byte{7, 8}
	if !d.WriteTile(1, false, right) {
		t.Fatal("write failed")
	}
	if back, _ := d.ReadTile(1, false); back.Data[0] != 7 || back.Data[1] != 8 {
		t.Errorf("tile 1 = %v", back.Data)
	}
	if d.WriteTile(0, false, right) {
		t.Error("write with the wrong geometry succeeded")
	}
}
