// Package pluginrc reads and writes the on-disk procedure cache.
//
// The cache records, per plug-in binary, its modification time and every
// procedure it installed, so unchanged binaries need not be queried again
// on startup. It is a textual s-expression file:
//
//	(protocol-version 20)
//	(file-version 2)
//	(plug-in-def "/path/to/plug-in" 1700000000
//	    (proc-def "plug-in-echo" 1
//	        "blurb" "help" "author" "copyright" "date" "_Echo..."
//	        1 (menu-path "<Image>/Filters")
//	        (icon stock-id -1 "picman-echo")
//	        "RGB*"
//	        2 1
//	        (proc-arg 0 "run-mode" "Run mode")
//	        ...)
//	    (has-init))
//	(checksum "...")
//
// A file whose name ends in .xz is xz compressed. The optional checksum
// form is a BLAKE3 digest of everything before it.
package pluginrc

import (
	"bytes"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/picman/core/errors"
	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/protocol"
)

// FileVersion is the cache format revision.
const FileVersion = 2

var (
	// ErrProtocolVersion means the cache was written for another protocol.
	ErrProtocolVersion = stderrors.New("wrong protocol version")
	// ErrFileVersion means the cache uses another format revision.
	ErrFileVersion = stderrors.New("wrong pluginrc file format version")
	// ErrChecksum means the checksum form does not match the content.
	ErrChecksum = stderrors.New("pluginrc checksum mismatch")
)

// IconType says how Icon.Data is interpreted.
type IconType int

const (
	IconStockID IconType = iota
	IconImageFile
	IconInlinePixbuf
)

var iconNicks = [...]string{
	IconStockID:      "stock-id",
	IconImageFile:    "image-file",
	IconInlinePixbuf: "inline-pixbuf",
}

func (t IconType) String() string {
	if t >= 0 && int(t) < len(iconNicks) {
		return iconNicks[t]
	}
	return fmt.Sprintf("icon-type(%d)", int(t))
}

// ParseIconType accepts a nick such as "stock-id".
func ParseIconType(s string) (IconType, bool) {
	for i, n := range iconNicks {
		if n == s {
			return IconType(i), true
		}
	}
	return 0, false
}

// Icon is a procedure's menu icon. For stock ids and image files Data holds
// the name or path.
type Icon struct {
	Type IconType
	Data []byte
}

// FileProc holds the file handler registration of a load or save procedure.
type FileProc struct {
	Extensions  string
	Prefixes    string
	Magics      string
	MimeType    string
	HandlesURI  bool
	ThumbLoader string
}

// ArgDef is one argument or return value in legacy arg-type form.
type ArgDef struct {
	Type pdb.ArgType
	Name string
	Desc string
}

// ProcDef is one cached procedure.
type ProcDef struct {
	// Name is the name as the plug-in spelled it.
	Name       string
	Type       pdb.ProcType
	Blurb      string
	Help       string
	Author     string
	Copyright  string
	Date       string
	MenuLabel  string
	MenuPaths  []string
	Icon       Icon
	File       *FileProc
	ImageTypes string
	Args       []ArgDef
	Values     []ArgDef
}

// PlugInDef is the cache record of one plug-in binary.
type PlugInDef struct {
	Prog         string
	MTime        int64
	Procedures   []*ProcDef
	LocaleDomain string
	LocalePath   string
	HelpDomain   string
	HelpURI      string
	HasInit      bool
}

// Load reads the cache at path. A missing file yields no definitions and no
// error.
func Load(path string) ([]*PlugInDef, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, errors.NewIO("decompress", path, err)
		}
		r = xr
	}
	return Read(r, path)
}

// Read parses a cache. name is used in error messages.
func Read(r io.Reader, name string) ([]*PlugInDef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIO("read", name, err)
	}
	if err := verifyChecksum(data); err != nil {
		return nil, &errors.ParseError{Format: "pluginrc", Path: name, Message: err.Error(), Err: err}
	}

	doc, err := rcParser.ParseBytes(name, data)
	if err != nil {
		return nil, &errors.ParseError{Format: "pluginrc", Path: name, Message: err.Error(), Err: err}
	}

	defs, err := decodeDocument(doc)
	if err != nil {
		return nil, &errors.ParseError{Format: "pluginrc", Path: name, Message: err.Error(), Err: err}
	}
	return defs, nil
}

const checksumHead = "(checksum "

func verifyChecksum(data []byte) error {
	idx := bytes.LastIndex(data, []byte("\n"+checksumHead))
	if idx < 0 {
		return nil
	}
	body := data[:idx+1]
	rest := strings.TrimSpace(string(data[idx+1+len(checksumHead):]))
	want, err := strconv.Unquote(strings.TrimSuffix(rest, ")"))
	if err != nil {
		return fmt.Errorf("malformed checksum: %w", err)
	}
	if digest(body) != want {
		return ErrChecksum
	}
	return nil
}

func digest(body []byte) string {
	sum := blake3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func decodeDocument(doc *document) ([]*PlugInDef, error) {
	var defs []*PlugInDef
	for _, f := range doc.Forms {
		c := newCursor(f)
		switch f.Head {
		case "protocol-version":
			v, err := c.int()
			if err != nil {
				return nil, err
			}
			if v != protocol.Version {
				return nil, ErrProtocolVersion
			}
		case "file-version":
			v, err := c.int()
			if err != nil {
				return nil, err
			}
			if v != FileVersion {
				return nil, ErrFileVersion
			}
		case "plug-in-def":
			def, err := decodePlugInDef(c)
			if err != nil {
				return nil, err
			}
			defs = append(defs, def)
		case "checksum":
			continue
		default:
			return nil, c.errorf("unknown form")
		}
	}
	return defs, nil
}

func decodePlugInDef(c *cursor) (*PlugInDef, error) {
	prog, err := c.str()
	if err != nil {
		return nil, err
	}
	mtime, err := c.int()
	if err != nil {
		return nil, err
	}
	def := &PlugInDef{Prog: prog, MTime: mtime}

	for !c.done() {
		f, err := c.form("proc-def", "locale-def", "help-def", "has-init")
		if err != nil {
			return nil, err
		}
		sub := newCursor(f)
		switch f.Head {
		case "proc-def":
			proc, err := decodeProcDef(sub)
			if err != nil {
				return nil, err
			}
			def.Procedures = append(def.Procedures, proc)
		case "locale-def":
			if def.LocaleDomain, err = sub.str(); err != nil {
				return nil, err
			}
			def.LocalePath, _ = sub.optStr()
		case "help-def":
			if def.HelpDomain, err = sub.str(); err != nil {
				return nil, err
			}
			def.HelpURI, _ = sub.optStr()
		case "has-init":
			def.HasInit = true
		}
		if err := sub.end(); err != nil {
			return nil, err
		}
	}
	return def, nil
}

func decodeProcDef(c *cursor) (*ProcDef, error) {
	var (
		proc ProcDef
		err  error
	)
	if proc.Name, err = c.str(); err != nil {
		return nil, err
	}
	procType, err := c.int()
	if err != nil {
		return nil, err
	}
	proc.Type = pdb.ProcType(procType)

	for _, dst := range []*string{&proc.Blurb, &proc.Help, &proc.Author, &proc.Copyright, &proc.Date, &proc.MenuLabel} {
		if *dst, err = c.str(); err != nil {
			return nil, err
		}
	}

	nPaths, err := c.int()
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < nPaths; i++ {
		f, err := c.form("menu-path")
		if err != nil {
			return nil, err
		}
		sub := newCursor(f)
		path, err := sub.str()
		if err != nil {
			return nil, err
		}
		proc.MenuPaths = append(proc.MenuPaths, path)
	}

	iconForm, err := c.form("icon")
	if err != nil {
		return nil, err
	}
	if proc.Icon, err = decodeIcon(newCursor(iconForm)); err != nil {
		return nil, err
	}

	if c.peekForm("load-proc", "save-proc") {
		f, _ := c.form("load-proc", "save-proc")
		if proc.File, err = decodeFileProc(newCursor(f)); err != nil {
			return nil, err
		}
	}

	if proc.ImageTypes, err = c.str(); err != nil {
		return nil, err
	}
	nArgs, err := c.int()
	if err != nil {
		return nil, err
	}
	nVals, err := c.int()
	if err != nil {
		return nil, err
	}
	if proc.Args, err = decodeArgs(c, nArgs); err != nil {
		return nil, err
	}
	if proc.Values, err = decodeArgs(c, nVals); err != nil {
		return nil, err
	}
	return &proc, c.end()
}

func decodeIcon(c *cursor) (Icon, error) {
	var icon Icon
	it := c.peek()
	switch {
	case it != nil && it.Ident != nil:
		nick, _ := c.ident()
		t, ok := ParseIconType(nick)
		if !ok {
			return icon, c.errorf("invalid value '%s' for icon type", nick)
		}
		icon.Type = t
	case it != nil && it.Int != nil:
		n, _ := c.int()
		if n < 0 || n >= int64(len(iconNicks)) {
			return icon, c.errorf("invalid value '%d' for icon type", n)
		}
		icon.Type = IconType(n)
	default:
		return icon, c.errorf("expected icon type")
	}

	length, err := c.int()
	if err != nil {
		return icon, err
	}
	data, err := c.str()
	if err != nil {
		return icon, err
	}
	if icon.Type == IconInlinePixbuf && int64(len(data)) != length {
		return icon, c.errorf("icon data is %d bytes, header says %d", len(data), length)
	}
	if data != "" {
		icon.Data = []byte(data)
	}
	return icon, c.end()
}

func decodeFileProc(c *cursor) (*FileProc, error) {
	fp := &FileProc{}
	for !c.done() {
		f, err := c.form("extension", "prefix", "magic", "mime-type", "handles-uri", "thumb-loader")
		if err != nil {
			return nil, err
		}
		sub := newCursor(f)
		if f.Head == "handles-uri" {
			fp.HandlesURI = true
		} else {
			v, err := sub.str()
			if err != nil {
				return nil, err
			}
			switch f.Head {
			case "extension":
				fp.Extensions = v
			case "prefix":
				fp.Prefixes = v
			case "magic":
				fp.Magics = v
			case "mime-type":
				fp.MimeType = v
			case "thumb-loader":
				fp.ThumbLoader = v
			}
		}
		if err := sub.end(); err != nil {
			return nil, err
		}
	}
	return fp, nil
}

func decodeArgs(c *cursor, n int64) ([]ArgDef, error) {
	var args []ArgDef
	for i := int64(0); i < n; i++ {
		f, err := c.form("proc-arg")
		if err != nil {
			return nil, err
		}
		sub := newCursor(f)
		t, err := sub.int()
		if err != nil {
			return nil, err
		}
		name, err := sub.str()
		if err != nil {
			return nil, err
		}
		desc, err := sub.str()
		if err != nil {
			return nil, err
		}
		if err := sub.end(); err != nil {
			return nil, err
		}
		args = append(args, ArgDef{Type: pdb.ArgType(t), Name: name, Desc: desc})
	}
	return args, nil
}

// Save writes defs to path, xz compressed when path ends in .xz. The file
// is written next to path and renamed into place.
func Save(path string, defs []*PlugInDef) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewIO("mkdir", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pluginrc-*")
	if err != nil {
		return errors.NewIO("create", path, err)
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	var xw *xz.Writer
	if strings.HasSuffix(path, ".xz") {
		if xw, err = xz.NewWriter(tmp); err != nil {
			tmp.Close()
			return errors.NewIO("compress", path, err)
		}
		w = xw
	}
	if err := Write(w, defs); err != nil {
		tmp.Close()
		return errors.NewIO("write", path, err)
	}
	if xw != nil {
		if err := xw.Close(); err != nil {
			tmp.Close()
			return errors.NewIO("compress", path, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return errors.NewIO("close", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.NewIO("rename", path, err)
	}
	return nil
}

// Write serializes defs followed by a checksum form. Definitions without
// procedures are skipped.
func Write(w io.Writer, defs []*PlugInDef) error {
	var b bytes.Buffer
	b.WriteString("# PICMAN pluginrc\n#\n")
	b.WriteString("# This file can safely be removed and will be automatically regenerated by\n")
	b.WriteString("# querying the installed plugins.\n\n")
	fmt.Fprintf(&b, "(protocol-version %d)\n", protocol.Version)
	fmt.Fprintf(&b, "(file-version %d)\n\n", FileVersion)

	for _, def := range defs {
		if len(def.Procedures) == 0 {
			continue
		}
		writePlugInDef(&b, def)
	}
	b.WriteString("# end of pluginrc\n")

	body := b.Bytes()
	if _, err := w.Write(body); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s%s)\n", checksumHead, strconv.Quote(digest(body)))
	return err
}

func quote(s string) string { return strconv.Quote(s) }

func writePlugInDef(b *bytes.Buffer, def *PlugInDef) {
	fmt.Fprintf(b, "(plug-in-def %s %d", quote(def.Prog), def.MTime)
	for _, proc := range def.Procedures {
		writeProcDef(b, proc)
	}
	if def.LocaleDomain != "" {
		fmt.Fprintf(b, "\n    (locale-def %s", quote(def.LocaleDomain))
		if def.LocalePath != "" {
			fmt.Fprintf(b, " %s", quote(def.LocalePath))
		}
		b.WriteString(")")
	}
	if def.HelpDomain != "" {
		fmt.Fprintf(b, "\n    (help-def %s", quote(def.HelpDomain))
		if def.HelpURI != "" {
			fmt.Fprintf(b, " %s", quote(def.HelpURI))
		}
		b.WriteString(")")
	}
	if def.HasInit {
		b.WriteString("\n    (has-init)")
	}
	b.WriteString(")\n\n")
}

func writeProcDef(b *bytes.Buffer, proc *ProcDef) {
	fmt.Fprintf(b, "\n    (proc-def %s %d", quote(proc.Name), int32(proc.Type))
	for _, s := range []string{proc.Blurb, proc.Help, proc.Author, proc.Copyright, proc.Date, proc.MenuLabel} {
		fmt.Fprintf(b, "\n        %s", quote(s))
	}
	fmt.Fprintf(b, "\n        %d", len(proc.MenuPaths))
	for _, p := range proc.MenuPaths {
		fmt.Fprintf(b, " (menu-path %s)", quote(p))
	}

	length := -1
	if proc.Icon.Type == IconInlinePixbuf {
		length = len(proc.Icon.Data)
	}
	fmt.Fprintf(b, "\n        (icon %s %d %s)", proc.Icon.Type, length, quote(string(proc.Icon.Data)))

	if fp := proc.File; fp != nil {
		head := "load-proc"
		if proc.ImageTypes != "" {
			head = "save-proc"
		}
		fmt.Fprintf(b, "\n        (%s", head)
		for _, kv := range [][2]string{
			{"extension", fp.Extensions},
			{"prefix", fp.Prefixes},
			{"magic", fp.Magics},
			{"mime-type", fp.MimeType},
		} {
			if kv[1] != "" {
				fmt.Fprintf(b, " (%s %s)", kv[0], quote(kv[1]))
			}
		}
		if fp.HandlesURI {
			b.WriteString(" (handles-uri)")
		}
		if fp.ThumbLoader != "" {
			fmt.Fprintf(b, " (thumb-loader %s)", quote(fp.ThumbLoader))
		}
		b.WriteString(")")
	}

	fmt.Fprintf(b, "\n        %s", quote(proc.ImageTypes))
	fmt.Fprintf(b, "\n        %d %d", len(proc.Args), len(proc.Values))
	for _, a := range proc.Args {
		fmt.Fprintf(b, "\n        (proc-arg %d %s %s)", int32(a.Type), quote(a.Name), quote(a.Desc))
	}
	for _, a := range proc.Values {
		fmt.Fprintf(b, "\n        (proc-arg %d %s %s)", int32(a.Type), quote(a.Name), quote(a.Desc))
	}
	b.WriteString(")")
}
