// Package interp decides which interpreter, if any, runs a plug-in program.
//
// Interpreter files (*.interp) hold two kinds of lines:
//
//	python=/usr/bin/python3
//	:python:E::py::python:
//	:exe:M:0:MZ::/usr/bin/mono:
//
// The first maps a name to a program. The others use the binfmt_misc
// notation: a delimiter, then name, type (E for extension, M for magic),
// offset, magic or extension, mask and program. Magic and mask may contain
// \xHH escapes.
package interp

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/picman/internal/logging"
)

// headerSize is how much of a program is inspected for a shebang or magic.
const headerSize = 4096

type magic struct {
	name    string
	offset  int
	magic   []byte
	mask    []byte
	program string
}

// DB is an interpreter database.
type DB struct {
	programs       map[string]string
	extensions     map[string]string
	extensionNames map[string]bool
	magicNames     map[string]bool
	magics         []*magic
}

// New creates an empty database.
func New() *DB {
	return &DB{
		programs:       make(map[string]string),
		extensions:     make(map[string]string),
		extensionNames: make(map[string]bool),
		magicNames:     make(map[string]bool),
	}
}

// Load reads every *.interp file in the given directories, in directory
// order and file name order. Missing directories are skipped.
func Load(dirs []string) (*DB, error) {
	db := New()
	for _, dir := range dirs {
		files, err := filepath.Glob(filepath.Join(dir, "*.interp"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		for _, name := range files {
			f, err := os.Open(name)
			if err != nil {
				logging.Warn("cannot read interpreter file", "path", name, "error", err)
				continue
			}
			err = db.Read(f, name)
			f.Close()
			if err != nil {
				return nil, err
			}
		}
	}
	db.ResolvePrograms()
	return db, nil
}

// Read parses one interpreter file. source names it in diagnostics. Call
// ResolvePrograms once every file has been read.
func (db *DB) Read(r io.Reader, source string) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		c := line[0]
		switch {
		case isAlnum(c) || c == '/':
			db.addProgram(line, source)
		case c != ' ' && c != '\t':
			if !db.addBinfmt(line) {
				logging.Warn("bad binary format string in interpreter file",
					"path", source, "line", line)
			}
		}
	}
	return sc.Err()
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (db *DB) addProgram(line, source string) {
	name, program, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	if !isExecutable(program) {
		logging.Warn("bad interpreter referenced in interpreter file",
			"path", source, "program", program)
		return
	}
	if _, exists := db.programs[name]; !exists {
		db.programs[name] = program
	}
}

func isExecutable(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir() && fi.Mode()&0o111 != 0
}

func (db *DB) addBinfmt(line string) bool {
	if len(line) < 10 || len(line) > 255 {
		return false
	}
	del := line[:1]
	tokens := strings.Split(line[1:]+strings.Repeat(del, 8), del)
	name, typ, program := tokens[0], tokens[1], tokens[5]
	if name == "" || program == "" || len(typ) != 1 {
		return false
	}
	switch typ {
	case "E":
		return db.addExtension(name, tokens[3], program)
	case "M":
		return db.addMagic(name, tokens[2], tokens[3], tokens[4], program)
	}
	return false
}

func (db *DB) addExtension(name, ext, program string) bool {
	if db.extensionNames[name] {
		return true
	}
	if ext == "" || ext[0] == '/' {
		return false
	}
	db.extensions[ext] = program
	db.extensionNames[name] = true
	return true
}

func (db *DB) addMagic(name, num, magicStr, maskStr, program string) bool {
	if db.magicNames[name] {
		return true
	}
	offset := 0
	if num != "" {
		n, err := strconv.ParseUint(num, 10, 32)
		if err != nil || n > headerSize/4 {
			return false
		}
		offset = int(n)
	}
	m, ok := unquote(magicStr)
	if !ok || len(m)+offset > headerSize/2 {
		return false
	}
	var mask []byte
	if maskStr != "" {
		mask, ok = unquote(maskStr)
		if !ok || len(mask) != len(m) {
			return false
		}
	}
	db.magics = append(db.magics, &magic{name: name, offset: offset, magic: m, mask: mask, program: program})
	db.magicNames[name] = true
	return true
}

// unquote expands \xHH escapes.
func unquote(s string) ([]byte, bool) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == 'x' {
			if i+4 > len(s) {
				return nil, false
			}
			b, err := strconv.ParseUint(s[i+2:i+4], 16, 8)
			if err != nil {
				return nil, false
			}
			out = append(out, byte(b))
			i += 3
			continue
		}
		out = append(out, s[i])
	}
	return out, true
}

// ResolvePrograms replaces program names used by magic and extension
// entries with the program they are mapped to.
func (db *DB) ResolvePrograms() {
	for _, m := range db.magics {
		if p, ok := db.programs[m.program]; ok {
			m.program = p
		}
	}
	for ext, prog := range db.extensions {
		if p, ok := db.programs[prog]; ok {
			db.extensions[ext] = p
		}
	}
}

// Resolve returns the interpreter and optional interpreter argument that
// run path. Both are empty when the program runs on its own.
func (db *DB) Resolve(path string) (interp, arg string) {
	f, err := os.Open(path)
	if err != nil {
		return db.resolveExtension(path), ""
	}
	buf := make([]byte, headerSize)
	n, _ := io.ReadFull(f, buf)
	f.Close()
	if n <= 0 {
		return db.resolveExtension(path), ""
	}
	if n > 3 && buf[0] == '#' && buf[1] == '!' {
		return db.resolveShebang(buf[:n])
	}
	return db.resolveMagic(path, buf)
}

func (db *DB) resolveExtension(path string) string {
	ext := filepath.Ext(filepath.Base(path))
	if ext == "" {
		return ""
	}
	return db.extensions[ext[1:]]
}

func (db *DB) resolveShebang(buf []byte) (string, string) {
	line := string(buf[2:])
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimRight(line, " \t\r")
	line = strings.TrimLeft(line, " \t")
	if line == "" {
		return "", ""
	}

	name, rest := line, ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		name, rest = line[:i], strings.TrimLeft(line[i:], " \t")
	}

	var arg string
	if rest != "" {
		if name == "/usr/bin/env" {
			if p, ok := db.programs[rest]; ok {
				return p, ""
			}
		}
		arg = rest
	}
	if p, ok := db.programs[name]; ok {
		return p, arg
	}
	return name, arg
}

// resolveMagic matches buf against the magic table. buf is zero padded to
// headerSize, so offsets past the end of a short file compare against zeros.
func (db *DB) resolveMagic(path string, buf []byte) (string, string) {
	for _, m := range db.magics {
		s := buf[m.offset : m.offset+len(m.magic)]
		matched := true
		for i := range m.magic {
			diff := s[i] ^ m.magic[i]
			if m.mask != nil {
				diff &= m.mask[i]
			}
			if diff != 0 {
				matched = false
				break
			}
		}
		if matched {
			return m.program, ""
		}
	}
	return db.resolveExtension(path), ""
}

// Extensions returns every registered extension with a leading dot, joined
// by the path list separator, in the style of PATHEXT. It is empty when no
// extension is registered.
func (db *DB) Extensions() string {
	exts := make([]string, 0, len(db.extensions))
	for ext := range db.extensions {
		exts = append(exts, "."+ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, string(os.PathListSeparator))
}

// Programs returns a copy of the name to program table.
func (db *DB) Programs() map[string]string {
	out := make(map[string]string, len(db.programs))
	for k, v := range db.programs {
		out[k] = v
	}
	return out
}
