package plugins

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/picman/core/pdb"
)

func fileProc(name, extensions, prefixes, magics string) *Procedure {
	p := NewProcedure(name, pdb.PlugIn, "/plug-ins/"+name)
	p.SetFileProc(extensions, prefixes, magics)
	return p
}

func TestUnescapeMagic(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"GIF8", []byte("GIF8")},
		{`\x89PNG`, []byte("\x89PNG")},
		{`\211PNG`, []byte("\x89PNG")},
		{`a\\b`, []byte(`a\b`)},
		{`\0\0`, []byte{0, 0}},
		{`trailing\`, []byte(`trailing\`)},
	}
	for _, tt := range tests {
		if got := unescapeMagic(tt.in); !bytes.Equal(got, tt.want) {
			t.Errorf("unescapeMagic(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatchMagics(t *testing.T) {
	data := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR" + string(make([]byte, 300)) + "TAIL")
	r := bytes.NewReader(data)
	head := data[:magicHeadSize]

	tests := []struct {
		name  string
		magic []string
		want  bool
	}{
		{"string", []string{"0", "string", `\x89PNG`}, true},
		{"string mismatch", []string{"0", "string", "GIF8"}, false},
		{"offset", []string{"12", "string", "IHDR"}, true},
		{"hex offset", []string{"0xc", "string", "IHDR"}, true},
		{"byte", []string{"1", "byte", "0x50"}, true},
		{"short", []string{"4", "short", "0x0d0a"}, true},
		{"long", []string{"8", "long", "13"}, true},
		{"masked", []string{"0", "byte", "0x80&0xf0"}, true},
		{"beyond head", []string{"316", "string", "TAIL"}, true},
		{"negative offset", []string{"-4", "string", "TAIL"}, true},
		{"negative mismatch", []string{"-4", "string", "HEAD"}, false},
		{"unknown type", []string{"0", "regex", "PNG"}, false},
		{"bad offset", []string{"x", "string", "PNG"}, false},
		{"any of several", []string{"0", "string", "GIF8", "1", "string", "PNG"}, true},
		{"incomplete triple", []string{"0", "string"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchMagics(tt.magic, head, r); got != tt.want {
				t.Errorf("MatchMagics(%v) = %v, want %v", tt.magic, got, tt.want)
			}
		})
	}
}

func TestFindFileProcedure(t *testing.T) {
	png := fileProc("file-png-load", "png", "", `0,string,\x89PNG`)
	jpeg := fileProc("file-jpeg-load", "jpg,jpeg", "", "")
	web := fileProc("file-uri-load", "", "http:,https:", "")
	procs := []*Procedure{png, jpeg, web, NewProcedure("plug-in-no-file", pdb.PlugIn, "")}

	dir := t.TempDir()
	pngData := filepath.Join(dir, "picture.dat")
	if err := os.WriteFile(pngData, []byte("\x89PNG\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	misnamed := filepath.Join(dir, "really-png.jpg")
	if err := os.WriteFile(misnamed, []byte("\x89PNG\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		uri  string
		want *Procedure
	}{
		{"photo.JPG", jpeg},
		{"https://example.com/a.png?size=2", web},
		{"file:///tmp/x.jpeg", jpeg},
		{pngData, png},
		{"file://" + filepath.ToSlash(pngData), png},
		{"missing.png", png},
		{misnamed, jpeg},
		{"notes.txt", nil},
		{"no-extension", nil},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			if got := FindFileProcedure(procs, tt.uri); got != tt.want {
				t.Errorf("FindFileProcedure(%q) = %v, want %v", tt.uri, got, tt.want)
			}
		})
	}
}

func TestRegisterFileHandlers(t *testing.T) {
	m := NewManager(DefaultConfig(), pdb.New(pdb.CompatOff))
	ctx := context.Background()

	load := NewProcedure("file-test-load", pdb.PlugIn, "/plug-ins/test")
	withArgs(load, pdb.ValueInt32, pdb.ValueString, pdb.ValueString)
	load.AddReturnValue(pdb.ParamSpec{Type: pdb.ValueImageID, Name: "image"})
	save := NewProcedure("file-test-save", pdb.PlugIn, "/plug-ins/test")
	withArgs(save, pdb.ValueInt32, pdb.ValueImageID, pdb.ValueDrawableID, pdb.ValueString, pdb.ValueString)
	native := NewProcedure("picman-xcf-save", pdb.PlugIn, "/plug-ins/xcf")
	withArgs(native, pdb.ValueInt32, pdb.ValueImageID, pdb.ValueDrawableID, pdb.ValueString, pdb.ValueString)
	bad := withArgs(NewProcedure("file-bad-load", pdb.PlugIn, "/plug-ins/test"), pdb.ValueInt32)
	for _, p := range []*Procedure{load, save, native, bad} {
		m.AddProcedure(p)
	}

	if err := m.RegisterLoadHandler(ctx, "file_test_load", "tst", "", ""); err != nil {
		t.Fatalf("RegisterLoadHandler() = %v", err)
	}
	if err := m.RegisterLoadHandler(ctx, "file-test-load", "tst,tsx", "", ""); err != nil {
		t.Fatalf("second RegisterLoadHandler() = %v", err)
	}
	if n := len(m.LoadProcs()); n != 1 {
		t.Errorf("%d load procedures after registering twice", n)
	}
	if err := m.RegisterLoadHandler(ctx, "file-bad-load", "bad", "", ""); err == nil {
		t.Error("RegisterLoadHandler() accepted a procedure with the wrong arguments")
	}
	if err := m.RegisterLoadHandler(ctx, "file-missing-load", "x", "", ""); err == nil {
		t.Error("RegisterLoadHandler() accepted an unknown procedure")
	}
	if err := m.RegisterSaveHandler(ctx, "file-test-load", "tst", ""); err == nil {
		t.Error("RegisterSaveHandler() accepted a load procedure")
	}

	for _, name := range []string{"file-test-save", "picman-xcf-save"} {
		if err := m.RegisterSaveHandler(ctx, name, "x", ""); err != nil {
			t.Fatalf("RegisterSaveHandler(%s) = %v", name, err)
		}
	}
	if saves := m.SaveProcs(); len(saves) != 1 || saves[0] != native {
		t.Errorf("SaveProcs() = %v", saves)
	}
	if exports := m.ExportProcs(); len(exports) != 1 || exports[0] != save {
		t.Errorf("ExportProcs() = %v", exports)
	}

	if err := m.RegisterMimeType(ctx, "file-test-load", "image/x-test"); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterHandlesURI(ctx, "file-test-load"); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterThumbnailLoader(ctx, "file-test-load", "file_test_thumb"); err != nil {
		t.Fatal(err)
	}
	if f := load.File; f.MimeType != "image/x-test" || !f.HandlesURI || f.ThumbLoader != "file-test-thumb" {
		t.Errorf("file handler = %+v", f)
	}
	if err := m.RegisterMimeType(ctx, "file-missing", "image/x-none"); err == nil {
		t.Error("RegisterMimeType() accepted an unknown procedure")
	}
}
