package plugins

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/picman/core/errors"
	"github.com/FocuswithJustin/picman/core/pdb"
)

// magicHeadSize is how much of a file is read for magic matching when the
// offset is not negative.
const magicHeadSize = 256

// fileProcCandidates returns the procedures a registration by the calling
// plug-in may refer to: its own definition while it is being queried,
// otherwise every plug-in procedure.
func (m *Manager) fileProcCandidates(ctx context.Context) []*Procedure {
	if p := m.plugInFor(ctx); p != nil {
		p.mu.Lock()
		def := p.def
		p.mu.Unlock()
		if def != nil {
			return def.Procedures
		}
	}
	return m.Procedures()
}

func (m *Manager) findFileProc(ctx context.Context, name string) *Procedure {
	return FindProcedure(m.fileProcCandidates(ctx), pdb.CanonicalizeIdentifier(name))
}

func hasArgs(specs []pdb.ParamSpec, types ...pdb.ValueType) bool {
	if len(specs) < len(types) {
		return false
	}
	for i, t := range types {
		if !argMatches(specs[i], []pdb.ValueType{t}) {
			return false
		}
	}
	return true
}

// RegisterLoadHandler makes name a file load procedure.
func (m *Manager) RegisterLoadHandler(ctx context.Context, name, extensions, prefixes, magics string) error {
	proc := m.findFileProc(ctx, name)
	if proc == nil {
		return errors.NewNotFound("load handler", name)
	}
	if !hasArgs(proc.Args, pdb.ValueInt32, pdb.ValueString, pdb.ValueString) ||
		!hasArgs(proc.Values, pdb.ValueImageID) {
		return errors.NewValidation(name, fmt.Sprintf(
			"load handler %q does not take the standard load handler args", name))
	}
	proc.SetFileProc(extensions, prefixes, magics)

	m.mu.Lock()
	if FindProcedure(m.loadProcs, proc.Name) != proc {
		m.loadProcs = append([]*Procedure{proc}, m.loadProcs...)
	}
	m.mu.Unlock()
	return nil
}

// RegisterSaveHandler makes name a file save procedure. The native format
// and the compression wrappers save; every other format exports.
func (m *Manager) RegisterSaveHandler(ctx context.Context, name, extensions, prefixes string) error {
	proc := m.findFileProc(ctx, name)
	if proc == nil {
		return errors.NewNotFound("save handler", name)
	}
	if !hasArgs(proc.Args, pdb.ValueInt32, pdb.ValueImageID, pdb.ValueDrawableID, pdb.ValueString, pdb.ValueString) {
		return errors.NewValidation(name, fmt.Sprintf(
			"save handler %q does not take the standard save handler args", name))
	}
	proc.SetFileProc(extensions, prefixes, "")

	m.mu.Lock()
	if inSaveGroup(proc) && FindProcedure(m.saveProcs, proc.Name) != proc {
		m.saveProcs = append([]*Procedure{proc}, m.saveProcs...)
	}
	if inExportGroup(proc) && FindProcedure(m.exportProcs, proc.Name) != proc {
		m.exportProcs = append([]*Procedure{proc}, m.exportProcs...)
	}
	m.mu.Unlock()
	return nil
}

var compressedSaveProcs = map[string]bool{
	"file-gz-save":  true,
	"file-bz2-save": true,
	"file-xz-save":  true,
}

func isNativeSave(proc *Procedure) bool {
	return proc.Name == "picman-xcf-save"
}

func inSaveGroup(proc *Procedure) bool {
	return isNativeSave(proc) || compressedSaveProcs[proc.Name]
}

func inExportGroup(proc *Procedure) bool {
	return !isNativeSave(proc)
}

// RegisterMimeType sets the MIME type of a file procedure.
func (m *Manager) RegisterMimeType(ctx context.Context, name, mimeType string) error {
	proc := m.findFileProc(ctx, name)
	if proc == nil {
		return errors.NewNotFound("file procedure", name)
	}
	if proc.File == nil {
		proc.File = &FileHandler{}
	}
	proc.File.MimeType = mimeType
	return nil
}

// RegisterHandlesURI marks a file procedure as able to open URIs itself.
func (m *Manager) RegisterHandlesURI(ctx context.Context, name string) error {
	proc := m.findFileProc(ctx, name)
	if proc == nil {
		return errors.NewNotFound("file procedure", name)
	}
	if proc.File == nil {
		proc.File = &FileHandler{}
	}
	proc.File.HandlesURI = true
	return nil
}

// RegisterThumbnailLoader names the procedure that loads thumbnails for a
// load procedure.
func (m *Manager) RegisterThumbnailLoader(ctx context.Context, loadProc, thumbProc string) error {
	proc := m.findFileProc(ctx, loadProc)
	if proc == nil {
		return errors.NewNotFound("load procedure", loadProc)
	}
	if proc.File == nil {
		proc.File = &FileHandler{}
	}
	proc.File.ThumbLoader = pdb.CanonicalizeIdentifier(thumbProc)
	return nil
}

// FindFileProcedure picks the procedure that handles uri. Procedures
// without magics are tried by prefix and extension first, then the file's
// content is matched against the magics, and finally every procedure is
// tried by prefix and extension.
func FindFileProcedure(procs []*Procedure, uri string) *Procedure {
	if p := findByName(procs, uri, true); p != nil {
		return p
	}
	if path, ok := localPath(uri); ok {
		if p := findByMagic(procs, path); p != nil {
			return p
		}
	}
	return findByName(procs, uri, false)
}

func findByName(procs []*Procedure, uri string, skipMagic bool) *Procedure {
	for _, p := range procs {
		if p.File == nil || (skipMagic && len(p.File.MagicList) > 0) {
			continue
		}
		for _, prefix := range p.File.PrefixList {
			if strings.HasPrefix(uri, prefix) {
				return p
			}
		}
	}

	ext := uriExtension(uri)
	if ext == "" {
		return nil
	}
	for _, p := range procs {
		if p.File == nil || (skipMagic && len(p.File.MagicList) > 0) {
			continue
		}
		for _, e := range p.File.ExtensionList {
			if strings.EqualFold(e, ext) {
				return p
			}
		}
	}
	return nil
}

// uriExtension returns the extension of the last path element without its
// dot, ignoring any query or fragment.
func uriExtension(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 && strings.Contains(uri, "://") {
		uri = uri[:i]
	}
	base := uri
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return ""
	}
	return base[i+1:]
}

func localPath(uri string) (string, bool) {
	if !strings.Contains(uri, "://") {
		return uri, true
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}

func findByMagic(procs []*Procedure, path string) *Procedure {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	head := make([]byte, magicHeadSize)
	n, _ := io.ReadFull(f, head)
	head = head[:n]

	for _, p := range procs {
		if p.File == nil || len(p.File.MagicList) == 0 {
			continue
		}
		if MatchMagics(p.File.MagicList, head, f) {
			return p
		}
	}
	return nil
}

// MatchMagics checks a flat list of offset, type, value triples against a
// file. head holds the start of the file; f is consulted for offsets
// beyond it and for negative offsets, which count from the end. Any
// matching triple is enough.
func MatchMagics(list []string, head []byte, f io.ReaderAt) bool {
	for i := 0; i+2 < len(list); i += 3 {
		if matchMagic(list[i], list[i+1], list[i+2], head, f) {
			return true
		}
	}
	return false
}

func matchMagic(offsetStr, typ, value string, head []byte, f io.ReaderAt) bool {
	offset, err := strconv.ParseInt(offsetStr, 0, 64)
	if err != nil {
		return false
	}

	var want, mask []byte
	switch typ {
	case "string":
		want = unescapeMagic(value)
	case "byte", "short", "long":
		size := map[string]int{"byte": 1, "short": 2, "long": 4}[typ]
		num, numMask, ok := parseMagicNumber(value)
		if !ok {
			return false
		}
		want = make([]byte, 4)
		binary.BigEndian.PutUint32(want, uint32(num))
		want = want[4-size:]
		if numMask != 0 {
			mask = make([]byte, 4)
			binary.BigEndian.PutUint32(mask, uint32(numMask))
			mask = mask[4-size:]
		}
	default:
		return false
	}
	if len(want) == 0 {
		return false
	}

	got := make([]byte, len(want))
	switch {
	case offset >= 0 && int(offset)+len(want) <= len(head):
		copy(got, head[offset:])
	case f == nil:
		return false
	default:
		if offset < 0 {
			size, ok := readerSize(f)
			if !ok || size+offset < 0 {
				return false
			}
			offset += size
		}
		if n, err := f.ReadAt(got, offset); n != len(got) && err != nil {
			return false
		}
	}

	if mask != nil {
		for i := range got {
			got[i] &= mask[i]
		}
	}
	return bytes.Equal(got, want)
}

func readerSize(f io.ReaderAt) (int64, bool) {
	if s, ok := f.(interface{ Stat() (os.FileInfo, error) }); ok {
		if info, err := s.Stat(); err == nil {
			return info.Size(), true
		}
	}
	if s, ok := f.(interface{ Size() int64 }); ok {
		return s.Size(), true
	}
	return 0, false
}

// parseMagicNumber parses "value" or "value&mask" in C notation.
func parseMagicNumber(s string) (value, mask int64, ok bool) {
	v, m, hasMask := strings.Cut(s, "&")
	value, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		return 0, 0, false
	}
	if hasMask {
		if mask, err = strconv.ParseInt(m, 0, 64); err != nil {
			return 0, 0, false
		}
		value &= mask
	}
	return value, mask, true
}

// unescapeMagic decodes \xHH, octal \NNN and \\ in a string magic.
func unescapeMagic(s string) []byte {
	var out []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			out = append(out, c)
			continue
		}
		i++
		switch {
		case s[i] == 'x' && i+2 < len(s):
			if b, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				out = append(out, byte(b))
				i += 2
				continue
			}
			out = append(out, s[i])
		case s[i] >= '0' && s[i] <= '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			b, _ := strconv.ParseUint(s[i:j], 8, 8)
			out = append(out, byte(b))
			i = j - 1
		default:
			out = append(out, s[i])
		}
	}
	return out
}
