package plugins

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/FocuswithJustin/picman/internal/logging"
)

// Search finds plug-in binaries in dirs: every executable regular file
// directly inside a directory, and every executable dir/name/name. A
// basename seen before, compared without case, is skipped. Files whose
// extension is in exts count as executable regardless of their mode.
func Search(dirs, ignore, exts []string) []*Def {
	var (
		defs []*Def
		seen = make(map[string]bool)
	)
	add := func(path string, info os.FileInfo) {
		base := filepath.Base(path)
		for _, ig := range ignore {
			if ig == base {
				return
			}
		}
		lower := strings.ToLower(base)
		if seen[lower] {
			logging.Warn("Skipping duplicate plug-in", "prog", path)
			return
		}
		if err := ValidatePath(path, dirs); err != nil {
			logging.SecurityEvent("plug_in_rejected", "plugins", "prog", path, "error", err.Error())
			return
		}
		seen[lower] = true
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		def := NewDef(abs)
		def.SetMTime(info.ModTime().Unix())
		def.NeedsQuery = true
		defs = append(defs, def)
	}

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				logging.Warn("cannot read plug-in directory", "dir", dir, "error", err)
			}
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.IsDir() {
				inner := filepath.Join(path, e.Name())
				if ii, err := os.Stat(inner); err == nil && ii.Mode().IsRegular() && isExecutable(inner, ii, exts) {
					add(inner, ii)
				}
				continue
			}
			if info.Mode().IsRegular() && isExecutable(path, info, exts) {
				add(path, info)
			}
		}
	}
	return defs
}

func isExecutable(path string, info os.FileInfo, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext != "" && strings.ToLower(e) == ext {
			return true
		}
	}
	if runtime.GOOS == "windows" {
		return ext == ".exe"
	}
	return info.Mode().Perm()&0o111 != 0
}

// searchDirs is the plug-in path, unless the environment overrides it.
func (m *Manager) searchDirs() []string {
	if v := os.Getenv(PlugInDirsEnv); v != "" {
		return SplitPath(v)
	}
	return m.cfg.PlugInPath
}

// interpExtensions lists the extensions registered in the interpreter
// database, with their leading dot.
func (m *Manager) interpExtensions() []string {
	if m.interp == nil {
		return nil
	}
	return SplitPath(m.interp.Extensions())
}
