package plugins

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/picman/core/errors"
	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/pluginrc"
	"github.com/FocuswithJustin/picman/internal/logging"
)

// ImageTypes is a mask of the image kinds a procedure works on.
type ImageTypes uint8

const (
	ImageRGB ImageTypes = 1 << iota
	ImageRGBA
	ImageGray
	ImageGrayA
	ImageIndexed
	ImageIndexedA

	ImageAll = ImageRGB | ImageRGBA | ImageGray | ImageGrayA | ImageIndexed | ImageIndexedA
)

var imageTypeTokens = []struct {
	token string
	mask  ImageTypes
}{
	{"RGBA", ImageRGBA},
	{"RGB*", ImageRGB | ImageRGBA},
	{"RGB", ImageRGB},
	{"GRAYA", ImageGrayA},
	{"GRAY*", ImageGray | ImageGrayA},
	{"GRAY", ImageGray},
	{"INDEXEDA", ImageIndexedA},
	{"INDEXED*", ImageIndexed | ImageIndexedA},
	{"INDEXED", ImageIndexed},
	{"*", ImageAll},
}

// ParseImageTypes parses a list such as "RGB*, GRAY". Unrecognized parts
// are returned separately and contribute nothing to the mask.
func ParseImageTypes(s string) (ImageTypes, []string) {
	var (
		mask    ImageTypes
		unknown []string
	)
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '\t' || r == ',' })
	for _, f := range fields {
		rest := f
		for rest != "" {
			matched := false
			for _, t := range imageTypeTokens {
				if strings.HasPrefix(rest, t.token) {
					mask |= t.mask
					rest = rest[len(t.token):]
					matched = true
					break
				}
			}
			if !matched {
				unknown = append(unknown, f)
				break
			}
		}
	}
	return mask, unknown
}

// FileHandler is the file format registration of a load or save procedure.
type FileHandler struct {
	Extensions string
	Prefixes   string
	Magics     string

	ExtensionList []string
	PrefixList    []string
	MagicList     []string

	MimeType    string
	HandlesURI  bool
	ThumbLoader string
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '\t' || r == ',' })
}

// Procedure is a procedure provided by a plug-in binary, or a temporary
// procedure installed by a running plug-in.
type Procedure struct {
	*pdb.Procedure

	// Prog is the plug-in binary that implements the procedure.
	Prog string

	MenuLabel  string
	MenuPaths  []string
	Icon       pluginrc.Icon
	ImageTypes string
	TypeMask   ImageTypes
	File       *FileHandler

	LocaleDomain string
	HelpDomain   string

	// InstalledDuringInit procedures are reinstalled on every start and
	// never cached.
	InstalledDuringInit bool

	// plugIn owns a temporary procedure.
	plugIn *PlugIn
	label  string
}

// NewProcedure creates a plug-in procedure. Internal procedures are not
// plug-in procedures.
func NewProcedure(name string, procType pdb.ProcType, prog string) *Procedure {
	return &Procedure{
		Procedure: pdb.NewProcedure(name, procType),
		Prog:      prog,
		Icon:      pluginrc.Icon{Type: pluginrc.IconStockID},
	}
}

// PlugIn returns the process owning a temporary procedure.
func (p *Procedure) PlugIn() *PlugIn { return p.plugIn }

// FindProcedure returns the procedure named name from list.
func FindProcedure(list []*Procedure, name string) *Procedure {
	for _, p := range list {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// SetImageTypes stores the image type list and its parsed mask.
func (p *Procedure) SetImageTypes(types string) {
	p.ImageTypes = types
	mask, unknown := ParseImageTypes(types)
	if len(unknown) > 0 {
		logging.Warn("image-type contains unrecognizable parts",
			"procedure", p.Name, "image_types", types, "parts", unknown)
	}
	p.TypeMask = mask
}

// Sensitive reports whether the procedure applies to an image of kind t.
func (p *Procedure) Sensitive(t ImageTypes) bool {
	return p.TypeMask&t != 0
}

// menuPrefixArgs lists the leading arguments a procedure installed below a
// menu prefix must take.
var menuPrefixArgs = []struct {
	prefixes []string
	args     [][]pdb.ValueType
	values   []pdb.ValueType
	required string
}{
	{
		prefixes: []string{"<Toolbox>", "<Image>"},
		args:     [][]pdb.ValueType{{pdb.ValueInt32}},
		required: "INT32",
	},
	{
		prefixes: []string{"<Layers>"},
		args:     [][]pdb.ValueType{{pdb.ValueInt32}, {pdb.ValueImageID}, {pdb.ValueLayerID, pdb.ValueDrawableID}},
		required: "INT32, IMAGE, (LAYER | DRAWABLE)",
	},
	{
		prefixes: []string{"<Channels>"},
		args:     [][]pdb.ValueType{{pdb.ValueInt32}, {pdb.ValueImageID}, {pdb.ValueChannelID, pdb.ValueDrawableID}},
		required: "INT32, IMAGE, (CHANNEL | DRAWABLE)",
	},
	{
		prefixes: []string{"<Vectors>"},
		args:     [][]pdb.ValueType{{pdb.ValueInt32}, {pdb.ValueImageID}, {pdb.ValueVectorsID}},
		required: "INT32, IMAGE, VECTORS",
	},
	{
		prefixes: []string{"<Colormap>"},
		args:     [][]pdb.ValueType{{pdb.ValueInt32}, {pdb.ValueImageID}},
		required: "INT32, IMAGE",
	},
	{
		prefixes: []string{"<Load>"},
		args:     [][]pdb.ValueType{{pdb.ValueInt32}, {pdb.ValueString}, {pdb.ValueString}},
		values:   []pdb.ValueType{pdb.ValueImageID},
		required: "INT32, STRING, STRING",
	},
	{
		prefixes: []string{"<Save>"},
		args: [][]pdb.ValueType{{pdb.ValueInt32}, {pdb.ValueImageID}, {pdb.ValueDrawableID},
			{pdb.ValueString}, {pdb.ValueString}},
		required: "INT32, IMAGE, DRAWABLE, STRING, STRING",
	},
	{
		prefixes: []string{"<Brushes>", "<Gradients>", "<Palettes>", "<Patterns>", "<Fonts>", "<Buffers>"},
		args:     [][]pdb.ValueType{{pdb.ValueInt32}},
		required: "INT32",
	},
}

// argMatches compares declared types by storage class, so a run-mode
// declared as an enum still counts as INT32.
func argMatches(spec pdb.ParamSpec, allowed []pdb.ValueType) bool {
	for _, t := range allowed {
		if spec.Type == t || pdb.ArgTypeFromValueType(spec.Type) == pdb.ArgTypeFromValueType(t) {
			return true
		}
	}
	return false
}

// AddMenuPath validates a menu location against the procedure's signature
// and appends it.
func (p *Procedure) AddMenuPath(menuPath string) error {
	base := filepath.Base(p.Prog)
	end := strings.IndexByte(menuPath, '>')
	if end < 0 || (end+1 < len(menuPath) && menuPath[end+1] != '/') {
		return errors.NewPlugIn(p.Prog, fmt.Sprintf(
			"plug-in %q attempted to install procedure %q in the invalid menu location %q. "+
				"The menu path must look like either \"<Prefix>\" or \"<Prefix>/path/to/item\".",
			base, p.Name, menuPath), nil)
	}
	prefix := menuPath[:end+1]

	for _, rule := range menuPrefixArgs {
		matched := false
		for _, pre := range rule.prefixes {
			if pre == prefix {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		ok := len(p.Args) >= len(rule.args)
		for i := 0; ok && i < len(rule.args); i++ {
			ok = argMatches(p.Args[i], rule.args[i])
		}
		required := rule.required
		if ok && len(rule.values) > 0 {
			ok = len(p.Values) >= len(rule.values)
			for i := 0; ok && i < len(rule.values); i++ {
				ok = argMatches(p.Values[i], rule.values[i:i+1])
			}
			if !ok {
				required = "IMAGE"
			}
		}
		if !ok {
			return errors.NewPlugIn(p.Prog, fmt.Sprintf(
				"plug-in %q attempted to install %s procedure %q which does not take the standard %s plug-in arguments: (%s).",
				base, prefix, p.Name, prefix, required), nil)
		}
		p.MenuPaths = append(p.MenuPaths, menuPath)
		p.label = ""
		return nil
	}

	return errors.NewPlugIn(p.Prog, fmt.Sprintf(
		"plug-in %q attempted to install procedure %q in the invalid menu location %q. "+
			"Use either \"<Toolbox>\", \"<Image>\", \"<Layers>\", \"<Channels>\", \"<Vectors>\", "+
			"\"<Colormap>\", \"<Load>\", \"<Save>\", \"<Brushes>\", \"<Gradients>\", \"<Palettes>\", "+
			"\"<Patterns>\", \"<Fonts>\" or \"<Buffers>\".",
		base, p.Name, menuPath), nil)
}

// StripMnemonics removes the underscores that mark menu mnemonics. A
// doubled underscore stands for a literal one.
func StripMnemonics(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			if i+1 < len(s) && s[i+1] == '_' {
				b.WriteByte('_')
				i++
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Label is the procedure's human readable name: the menu label, or the last
// element of its first menu path, without mnemonics or a trailing ellipsis.
func (p *Procedure) Label() string {
	if p.label != "" {
		return p.label
	}
	var label string
	switch {
	case p.MenuLabel != "":
		label = StripMnemonics(p.MenuLabel)
	case len(p.MenuPaths) > 0:
		label = path.Base(StripMnemonics(p.MenuPaths[0]))
	default:
		return ""
	}
	label = strings.TrimSuffix(label, "...")
	label = strings.TrimSuffix(label, "…")
	p.label = label
	return label
}

// HelpID returns the help id of the procedure, qualified by its help
// domain when it has one.
func (p *Procedure) HelpID() string {
	if p.HelpDomain != "" {
		return p.HelpDomain + "?" + p.Name
	}
	return p.Name
}

// SetIcon replaces the menu icon.
func (p *Procedure) SetIcon(t pluginrc.IconType, data []byte) {
	p.Icon = pluginrc.Icon{Type: t, Data: append([]byte(nil), data...)}
	if len(data) == 0 {
		p.Icon.Data = nil
	}
}

// SetFileProc marks the procedure as a file handler. A "file:" prefix is
// never registered because every handler implicitly accepts local files.
func (p *Procedure) SetFileProc(extensions, prefixes, magics string) {
	if p.File == nil {
		p.File = &FileHandler{}
	}
	f := p.File
	f.Extensions = extensions
	f.Prefixes = prefixes
	f.Magics = magics
	f.ExtensionList = splitList(extensions)
	f.PrefixList = nil
	for _, pre := range splitList(prefixes) {
		if pre != "file:" {
			f.PrefixList = append(f.PrefixList, pre)
		}
	}
	f.MagicList = splitList(magics)
}

// IsNativeSaveFormat reports whether the procedure belongs to the native
// file format, which sorts before everything else.
func (p *Procedure) IsNativeSaveFormat() bool {
	return strings.HasPrefix(filepath.Base(p.Prog), "picman-xcf") || strings.HasPrefix(p.Name, "picman-xcf")
}

// handleReturnValues logs the outcome of a run nobody waited for.
func (p *Procedure) handleReturnValues(ctx context.Context, vals pdb.ValueArray) {
	if len(vals) == 0 || vals[0].Type != pdb.ValueStatus {
		return
	}
	label := p.Label()
	if label == "" {
		label = p.Name
	}
	switch pdb.StatusOf(vals) {
	case pdb.CallingError:
		if msg := pdb.MessageOf(vals); msg != "" {
			logging.ErrorContext(ctx, fmt.Sprintf("Calling error for '%s'", label),
				"prog", p.Prog, "message", msg)
		}
	case pdb.ExecutionError:
		if msg := pdb.MessageOf(vals); msg != "" {
			logging.ErrorContext(ctx, fmt.Sprintf("Execution error for '%s'", label),
				"prog", p.Prog, "message", msg)
		}
	}
}

// procDef converts the procedure into its cache record.
func (p *Procedure) procDef() *pluginrc.ProcDef {
	def := &pluginrc.ProcDef{
		Name:       p.OriginalName,
		Type:       p.Type,
		Blurb:      p.Blurb,
		Help:       p.Help,
		Author:     p.Author,
		Copyright:  p.Copyright,
		Date:       p.Date,
		MenuLabel:  p.MenuLabel,
		MenuPaths:  append([]string(nil), p.MenuPaths...),
		Icon:       p.Icon,
		ImageTypes: p.ImageTypes,
	}
	if p.File != nil {
		def.File = &pluginrc.FileProc{
			Extensions:  p.File.Extensions,
			Prefixes:    p.File.Prefixes,
			Magics:      p.File.Magics,
			MimeType:    p.File.MimeType,
			HandlesURI:  p.File.HandlesURI,
			ThumbLoader: p.File.ThumbLoader,
		}
	}
	for _, a := range p.Args {
		def.Args = append(def.Args, pluginrc.ArgDef{Type: pdb.ArgTypeFromValueType(a.Type), Name: a.Name, Desc: a.Desc})
	}
	for _, v := range p.Values {
		def.Values = append(def.Values, pluginrc.ArgDef{Type: pdb.ArgTypeFromValueType(v.Type), Name: v.Name, Desc: v.Desc})
	}
	return def
}

// procedureFromDef rebuilds a procedure from its cache record.
func procedureFromDef(prog string, def *pluginrc.ProcDef) (*Procedure, error) {
	p := NewProcedure(def.Name, def.Type, prog)
	p.Blurb = def.Blurb
	p.Help = def.Help
	p.Author = def.Author
	p.Copyright = def.Copyright
	p.Date = def.Date
	p.MenuLabel = def.MenuLabel
	p.MenuPaths = append([]string(nil), def.MenuPaths...)
	p.Icon = def.Icon
	p.SetImageTypes(def.ImageTypes)
	for _, a := range def.Args {
		spec, err := pdb.ParamSpecFromArgType(a.Type, a.Name, a.Desc)
		if err != nil {
			return nil, err
		}
		p.AddArgument(spec)
	}
	for _, v := range def.Values {
		spec, err := pdb.ParamSpecFromArgType(v.Type, v.Name, v.Desc)
		if err != nil {
			return nil, err
		}
		p.AddReturnValue(spec)
	}
	if def.File != nil {
		p.SetFileProc(def.File.Extensions, def.File.Prefixes, def.File.Magics)
		p.File.MimeType = def.File.MimeType
		p.File.HandlesURI = def.File.HandlesURI
		p.File.ThumbLoader = def.File.ThumbLoader
	}
	return p, nil
}
