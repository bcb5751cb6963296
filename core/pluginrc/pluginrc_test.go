package pluginrc

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/FocuswithJustin/picman/core/pdb"
)

func sampleDefs() []*PlugInDef {
	return []*PlugInDef{
		{
			Prog:  "/usr/lib/picman/plug-ins/echo/echo",
			MTime: 1700000000,
			Procedures: []*ProcDef{
				{
					Name:      "plug_in_echo",
					Type:      pdb.PlugIn,
					Blurb:     "Echo a string",
					Help:      "Returns \"text\" unchanged.\nSecond line.",
					Author:    "Picman Team",
					Copyright: "Picman Team",
					Date:      "2024",
					MenuLabel: "_Echo...",
					MenuPaths: []string{"<Image>/Filters/Misc", "<Toolbox>/Xtns"},
					Icon:      Icon{Type: IconStockID, Data: []byte("picman-echo")},
					Args: []ArgDef{
						{Type: pdb.ArgInt32, Name: "run-mode", Desc: "The run mode"},
						{Type: pdb.ArgString, Name: "text", Desc: "Text"},
					},
					Values: []ArgDef{{Type: pdb.ArgString, Name: "text", Desc: "Echoed"}},
				},
				{
					Name:       "file_foo_save",
					Type:       pdb.PlugIn,
					MenuLabel:  "Foo image",
					Icon:       Icon{Type: IconInlinePixbuf, Data: []byte{0x00, 0xff, '"', '\\', 'x'}},
					ImageTypes: "RGB*, GRAY*",
					File: &FileProc{
						Extensions:  "foo,fo",
						Prefixes:    "foo:",
						MimeType:    "image/x-foo",
						HandlesURI:  true,
						ThumbLoader: "file-foo-load-thumb",
					},
				},
			},
			LocaleDomain: "picman20-std-plug-ins",
			LocalePath:   "/usr/share/locale",
			HelpDomain:   "https://docs.example.org/echo",
			HasInit:      true,
		},
		{
			Prog:  "/usr/lib/picman/plug-ins/loader",
			MTime: 42,
			Procedures: []*ProcDef{{
				Name: "file_foo_load",
				Type: pdb.PlugIn,
				Icon: Icon{Type: IconImageFile, Data: []byte("/icons/foo.png")},
				File: &FileProc{Magics: "0,string,FOO\\x00"},
			}},
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	defs := sampleDefs()
	var buf bytes.Buffer
	if err := Write(&buf, defs); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "# PICMAN pluginrc") {
		t.Errorf("missing header comment:\n%s", out)
	}
	if !strings.Contains(out, "(save-proc") || !strings.Contains(out, "(load-proc") {
		t.Errorf("file procedure forms missing:\n%s", out)
	}

	got, err := Read(&buf, "pluginrc")
	if err != nil {
		t.Fatalf("Read() error: %v\n%s", err, out)
	}
	if !reflect.DeepEqual(got, defs) {
		t.Errorf("round trip mismatch:\n got %#v\nwant %#v", got, defs)
	}
}

func TestWriteSkipsEmptyDefs(t *testing.T) {
	var buf bytes.Buffer
	defs := []*PlugInDef{{Prog: "/bin/nothing", MTime: 1, HasInit: true}}
	if err := Write(&buf, defs); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "/bin/nothing") {
		t.Error("definition without procedures was written")
	}
}

func TestSaveLoad(t *testing.T) {
	for _, name := range []string{"pluginrc", "pluginrc.xz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sub", name)
			if err := Save(path, sampleDefs()); err != nil {
				t.Fatalf("Save() error: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if !reflect.DeepEqual(got, sampleDefs()) {
				t.Errorf("Load() mismatch")
			}

			raw, _ := os.ReadFile(path)
			compressed := !bytes.HasPrefix(raw, []byte("# PICMAN"))
			if compressed != strings.HasSuffix(name, ".xz") {
				t.Errorf("compressed = %v for %s", compressed, name)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	defs, err := Load(filepath.Join(t.TempDir(), "absent"))
	if err != nil || defs != nil {
		t.Errorf("Load(missing) = %v, %v", defs, err)
	}
}

func TestReadLegacyWithoutChecksum(t *testing.T) {
	input := `# PICMAN pluginrc
(protocol-version 20)
(file-version 2)
(plug-in-def "/plug-ins/blur" 123
    (proc-def "plug-in-blur" 1
        "Blur" "" "" "" "" "_Blur"
        1 (menu-path "<Image>/Filters/Blur")
        (icon 0 -1 "gtk-blur")
        "RGB*, GRAY*"
        3 0
        (proc-arg 0 "run-mode" "")
        (proc-arg 13 "image" "Input image")
        (proc-arg 16 "drawable" "Input drawable"))
    (locale-def "blur-domain"))
`
	defs, err := Read(strings.NewReader(input), "legacy")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(defs) != 1 || len(defs[0].Procedures) != 1 {
		t.Fatalf("defs = %#v", defs)
	}
	proc := defs[0].Procedures[0]
	if proc.Icon.Type != IconStockID || string(proc.Icon.Data) != "gtk-blur" {
		t.Errorf("icon = %+v", proc.Icon)
	}
	if proc.File != nil {
		t.Error("plain procedure decoded as file procedure")
	}
	if len(proc.Args) != 3 || proc.Args[1].Type != pdb.ArgImage || proc.Args[2].Type != pdb.ArgDrawable {
		t.Errorf("args = %+v", proc.Args)
	}
	if defs[0].LocaleDomain != "blur-domain" || defs[0].LocalePath != "" {
		t.Errorf("locale = %q %q", defs[0].LocaleDomain, defs[0].LocalePath)
	}
}

func TestReadErrors(t *testing.T) {
	var good bytes.Buffer
	if err := Write(&good, sampleDefs()); err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(good.String(), "Echo a string", "Echo a strong", 1)

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"protocol version", "(protocol-version 1)\n(file-version 2)\n", ErrProtocolVersion},
		{"file version", "(protocol-version 20)\n(file-version 1)\n", ErrFileVersion},
		{"checksum", tampered, ErrChecksum},
		{"syntax", "(plug-in-def \"x\" 1", nil},
		{"bad icon", "(plug-in-def \"x\" 1 (proc-def \"p\" 1 \"\" \"\" \"\" \"\" \"\" \"\" 0 (icon bogus -1 \"\") \"\" 0 0))", nil},
		{"unknown form", "(frobnicate 1)", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input), "bad")
			if err == nil {
				t.Fatal("Read() succeeded")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIconType(t *testing.T) {
	for _, it := range []IconType{IconStockID, IconImageFile, IconInlinePixbuf} {
		if got, ok := ParseIconType(it.String()); !ok || got != it {
			t.Errorf("ParseIconType(%q) = %v, %v", it.String(), got, ok)
		}
	}
	if _, ok := ParseIconType("svg"); ok {
		t.Error("ParseIconType accepted an unknown nick")
	}
}
