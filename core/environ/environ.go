// Package environ holds the extra environment variables plug-ins run with.
//
// Variables come from *.env files on the environ path and from explicit
// Set calls. The first definition of a name wins. Explicit variables take
// precedence over file variables, and both take precedence over the host
// process environment.
package environ

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/FocuswithJustin/picman/internal/logging"
)

// Table is an environment table.
type Table struct {
	mu       sync.Mutex
	vars     map[string]string
	internal map[string]string
	envp     []string
}

// New creates an empty table.
func New() *Table {
	return &Table{
		vars:     make(map[string]string),
		internal: make(map[string]string),
	}
}

// Load reads every *.env file found in dirs. Missing directories are
// skipped.
func (t *Table) Load(dirs []string) error {
	for _, dir := range dirs {
		files, err := filepath.Glob(filepath.Join(dir, "*.env"))
		if err != nil {
			return err
		}
		sort.Strings(files)
		for _, name := range files {
			f, err := os.Open(name)
			if err != nil {
				logging.Warn("cannot read environment file", "path", name, "error", err)
				continue
			}
			err = t.Read(f, name)
			f.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Read parses NAME=VALUE lines. Lines starting with # are comments.
func (t *Table) Read(r io.Reader, source string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok || !ValidName(name) {
			logging.Warn("illegal variable name in environment file",
				"path", source, "name", name)
			continue
		}
		if _, exists := t.vars[name]; !exists {
			t.vars[name] = value
		}
	}
	t.envp = nil
	return sc.Err()
}

// ValidName reports whether name is a portable environment variable name.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Set adds an explicit variable that overrides file and process values.
func (t *Table) Set(name, value string) {
	t.mu.Lock()
	t.internal[name] = value
	t.envp = nil
	t.mu.Unlock()
}

// Unset removes an explicit variable.
func (t *Table) Unset(name string) {
	t.mu.Lock()
	delete(t.internal, name)
	t.envp = nil
	t.mu.Unlock()
}

// Clear drops every explicit variable. File variables stay.
func (t *Table) Clear() {
	t.mu.Lock()
	t.internal = make(map[string]string)
	t.envp = nil
	t.mu.Unlock()
}

// Lookup returns a variable from the table, explicit values first.
func (t *Table) Lookup(name string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.internal[name]; ok {
		return v, true
	}
	v, ok := t.vars[name]
	return v, ok
}

// Envp returns the environment for a child process: the host environment
// with the table's variables merged over it, sorted by name. The result is
// cached until the table changes.
func (t *Table) Envp() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.envp != nil {
		return t.envp
	}
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok {
			merged[name] = value
		}
	}
	for k, v := range t.vars {
		merged[k] = v
	}
	for k, v := range t.internal {
		merged[k] = v
	}
	envp := make([]string, 0, len(merged))
	for k, v := range merged {
		envp = append(envp, k+"="+v)
	}
	sort.Strings(envp)
	t.envp = envp
	return envp
}
