package plugins

import (
	"reflect"
	"testing"

	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/pluginrc"
)

func TestParseImageTypes(t *testing.T) {
	tests := []struct {
		in          string
		want        ImageTypes
		wantUnknown []string
	}{
		{"", 0, nil},
		{"RGB", ImageRGB, nil},
		{"RGB*", ImageRGB | ImageRGBA, nil},
		{"RGBA, GRAY", ImageRGBA | ImageGray, nil},
		{"GRAY*  INDEXED", ImageGray | ImageGrayA | ImageIndexed, nil},
		{"INDEXEDA", ImageIndexedA, nil},
		{"*", ImageAll, nil},
		{"RGB, CMYK", ImageRGB, []string{"CMYK"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, unknown := ParseImageTypes(tt.in)
			if got != tt.want {
				t.Errorf("ParseImageTypes(%q) = %b, want %b", tt.in, got, tt.want)
			}
			if !reflect.DeepEqual(unknown, tt.wantUnknown) {
				t.Errorf("unknown parts = %v, want %v", unknown, tt.wantUnknown)
			}
		})
	}
}

func TestProcedureSensitive(t *testing.T) {
	p := NewProcedure("test-sensitive", pdb.PlugIn, "/plug-ins/a")
	p.SetImageTypes("RGB*, GRAY")
	for _, tt := range []struct {
		t    ImageTypes
		want bool
	}{
		{ImageRGB, true},
		{ImageRGBA, true},
		{ImageGray, true},
		{ImageGrayA, false},
		{ImageIndexed, false},
	} {
		if got := p.Sensitive(tt.t); got != tt.want {
			t.Errorf("Sensitive(%b) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func withArgs(p *Procedure, types ...pdb.ValueType) *Procedure {
	for i, vt := range types {
		p.AddArgument(pdb.ParamSpec{Type: vt, Name: string(rune('a' + i))})
	}
	return p
}

func TestAddMenuPath(t *testing.T) {
	tests := []struct {
		name    string
		args    []pdb.ValueType
		values  []pdb.ValueType
		path    string
		wantErr bool
	}{
		{"image menu", []pdb.ValueType{pdb.ValueInt32}, nil, "<Image>/Filters/Blur", false},
		{"run mode as enum", []pdb.ValueType{pdb.ValueEnum}, nil, "<Image>/Filters", false},
		{"bare prefix", []pdb.ValueType{pdb.ValueInt32}, nil, "<Toolbox>", false},
		{"no run mode", []pdb.ValueType{pdb.ValueString}, nil, "<Image>/Filters", true},
		{"no arguments", nil, nil, "<Brushes>/Tools", true},
		{"missing slash", []pdb.ValueType{pdb.ValueInt32}, nil, "<Image>Filters", true},
		{"no prefix", []pdb.ValueType{pdb.ValueInt32}, nil, "Filters/Blur", true},
		{"unknown prefix", []pdb.ValueType{pdb.ValueInt32}, nil, "<Dock>/Tabs", true},
		{"layers with drawable",
			[]pdb.ValueType{pdb.ValueInt32, pdb.ValueImageID, pdb.ValueDrawableID}, nil, "<Layers>/Ops", false},
		{"layers with layer",
			[]pdb.ValueType{pdb.ValueInt32, pdb.ValueImageID, pdb.ValueLayerID}, nil, "<Layers>/Ops", false},
		{"layers with channel",
			[]pdb.ValueType{pdb.ValueInt32, pdb.ValueImageID, pdb.ValueChannelID}, nil, "<Layers>/Ops", true},
		{"vectors",
			[]pdb.ValueType{pdb.ValueInt32, pdb.ValueImageID, pdb.ValueVectorsID}, nil, "<Vectors>/Stroke", false},
		{"load",
			[]pdb.ValueType{pdb.ValueInt32, pdb.ValueString, pdb.ValueString},
			[]pdb.ValueType{pdb.ValueImageID}, "<Load>", false},
		{"load without image",
			[]pdb.ValueType{pdb.ValueInt32, pdb.ValueString, pdb.ValueString}, nil, "<Load>", true},
		{"save",
			[]pdb.ValueType{pdb.ValueInt32, pdb.ValueImageID, pdb.ValueDrawableID, pdb.ValueString, pdb.ValueString},
			nil, "<Save>/Formats", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := withArgs(NewProcedure("test-menu", pdb.PlugIn, "/plug-ins/menu"), tt.args...)
			for _, vt := range tt.values {
				p.AddReturnValue(pdb.ParamSpec{Type: vt, Name: "v"})
			}
			err := p.AddMenuPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("AddMenuPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if tt.wantErr && len(p.MenuPaths) != 0 {
				t.Errorf("rejected path was recorded: %v", p.MenuPaths)
			}
			if !tt.wantErr && (len(p.MenuPaths) != 1 || p.MenuPaths[0] != tt.path) {
				t.Errorf("MenuPaths = %v", p.MenuPaths)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		label string
		paths []string
		want  string
	}{
		{"_Gaussian Blur...", nil, "Gaussian Blur"},
		{"Snake__Case", nil, "Snake_Case"},
		{"Ellipsis…", nil, "Ellipsis"},
		{"", []string{"<Image>/Filters/_Sharpen..."}, "Sharpen"},
		{"Label wins", []string{"<Image>/Filters/Path"}, "Label wins"},
		{"", nil, ""},
	}
	for _, tt := range tests {
		p := NewProcedure("test-label", pdb.PlugIn, "/plug-ins/label")
		p.MenuLabel = tt.label
		p.MenuPaths = tt.paths
		if got := p.Label(); got != tt.want {
			t.Errorf("Label() for %q %v = %q, want %q", tt.label, tt.paths, got, tt.want)
		}
	}
}

func TestLabelFollowsMenuPath(t *testing.T) {
	p := withArgs(NewProcedure("test-label", pdb.PlugIn, "/plug-ins/label"), pdb.ValueInt32)
	if p.Label() != "" {
		t.Fatalf("Label() = %q without a menu", p.Label())
	}
	if err := p.AddMenuPath("<Image>/Colors/_Invert"); err != nil {
		t.Fatal(err)
	}
	if got := p.Label(); got != "Invert" {
		t.Errorf("Label() = %q, want Invert", got)
	}
}

func TestSetFileProc(t *testing.T) {
	p := NewProcedure("file-test-save", pdb.PlugIn, "/plug-ins/file")
	p.SetFileProc("tst, tsx", "file:,http:", "0,string,TST1")
	f := p.File
	if !reflect.DeepEqual(f.ExtensionList, []string{"tst", "tsx"}) {
		t.Errorf("ExtensionList = %v", f.ExtensionList)
	}
	if !reflect.DeepEqual(f.PrefixList, []string{"http:"}) {
		t.Errorf("PrefixList = %v, file: must be dropped", f.PrefixList)
	}
	if !reflect.DeepEqual(f.MagicList, []string{"0", "string", "TST1"}) {
		t.Errorf("MagicList = %v", f.MagicList)
	}

	p.File.MimeType = "image/x-test"
	p.SetFileProc("tst", "", "")
	if p.File.MimeType != "image/x-test" || len(p.File.MagicList) != 0 {
		t.Errorf("re-registration lost state: %+v", p.File)
	}
}

func TestProcDefRoundTrip(t *testing.T) {
	p := withArgs(NewProcedure("plug_in_round_trip", pdb.PlugIn, "/plug-ins/rt"),
		pdb.ValueInt32, pdb.ValueImageID, pdb.ValueDrawableID)
	p.AddReturnValue(pdb.ParamSpec{Type: pdb.ValueString, Name: "out"})
	p.Blurb = "Round trip"
	p.MenuLabel = "_Round Trip"
	p.SetImageTypes("RGB*")
	if err := p.AddMenuPath("<Image>/Filters/Misc"); err != nil {
		t.Fatal(err)
	}
	p.SetIcon(pluginrc.IconImageFile, []byte("icon.png"))
	p.SetFileProc("rt", "", "")
	p.File.MimeType = "image/x-rt"

	got, err := procedureFromDef("/plug-ins/rt", p.procDef())
	if err != nil {
		t.Fatalf("procedureFromDef() = %v", err)
	}
	if got.Name != "plug-in-round-trip" || got.OriginalName != "plug_in_round_trip" {
		t.Errorf("names = %q, %q", got.Name, got.OriginalName)
	}
	if got.Blurb != p.Blurb || got.MenuLabel != p.MenuLabel || got.TypeMask != p.TypeMask {
		t.Errorf("metadata lost: %+v", got)
	}
	if !reflect.DeepEqual(got.MenuPaths, p.MenuPaths) {
		t.Errorf("MenuPaths = %v", got.MenuPaths)
	}
	if got.Icon.Type != pluginrc.IconImageFile || string(got.Icon.Data) != "icon.png" {
		t.Errorf("Icon = %+v", got.Icon)
	}
	if got.File == nil || got.File.MimeType != "image/x-rt" || !reflect.DeepEqual(got.File.ExtensionList, []string{"rt"}) {
		t.Errorf("File = %+v", got.File)
	}
	if len(got.Args) != 3 || got.Args[1].Type != pdb.ValueImageID || len(got.Values) != 1 {
		t.Errorf("signature = %v -> %v", got.Args, got.Values)
	}
}

func TestDefSkipsInitProcedures(t *testing.T) {
	def := NewDef("/plug-ins/d")
	def.SetMTime(42)
	def.HasInit = true
	def.SetLocaleDomain("d-domain", "/locale")
	cached := NewProcedure("d-cached", pdb.PlugIn, "")
	fresh := NewProcedure("d-fresh", pdb.PlugIn, "")
	fresh.InstalledDuringInit = true
	def.AddProcedure(cached)
	def.AddProcedure(fresh)

	if cached.Prog != "/plug-ins/d" {
		t.Errorf("AddProcedure did not adopt the procedure: prog %q", cached.Prog)
	}

	back, err := defFromRC(def.rcDef())
	if err != nil {
		t.Fatal(err)
	}
	if back.MTime != 42 || !back.HasInit || back.LocaleDomain != "d-domain" || back.LocalePath != "/locale" {
		t.Errorf("definition = %+v", back)
	}
	if len(back.Procedures) != 1 || back.Procedures[0].Name != "d-cached" {
		t.Errorf("procedures = %v", back.Procedures)
	}

	replacement := NewProcedure("d-cached", pdb.PlugIn, "")
	def.AddProcedure(replacement)
	if FindProcedure(def.Procedures, "d-cached") != replacement || len(def.Procedures) != 2 {
		t.Error("AddProcedure did not replace the procedure of the same name")
	}
}
