package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FocuswithJustin/picman/core/wire"
)

// StackTraceMode is passed to every plug-in on its command line and
// decides when a crashing plug-in prints a stack trace.
type StackTraceMode int

const (
	StackTraceNever StackTraceMode = iota
	StackTraceQuery
	StackTraceAlways
)

func (m StackTraceMode) String() string {
	switch m {
	case StackTraceQuery:
		return "query"
	case StackTraceAlways:
		return "always"
	}
	return "never"
}

// ParseStackTraceMode maps "never", "query" and "always" to a mode.
func ParseStackTraceMode(s string) (StackTraceMode, error) {
	switch s {
	case "never", "":
		return StackTraceNever, nil
	case "query":
		return StackTraceQuery, nil
	case "always":
		return StackTraceAlways, nil
	}
	return StackTraceNever, fmt.Errorf("unknown stack trace mode %q", s)
}

// IgnoreBasenamesEnv lists plug-in basenames the search skips, separated
// by the path list separator.
const IgnoreBasenamesEnv = "PICMAN_TESTING_PLUGINDIRS_BASENAME_IGNORES"

// PlugInDirsEnv replaces the configured plug-in path when set.
const PlugInDirsEnv = "PICMAN_TESTING_PLUGINDIRS"

// Config holds the plug-in manager settings.
type Config struct {
	// PlugInPath lists the directories searched for plug-in binaries.
	PlugInPath []string
	// EnvironPath lists the directories holding *.env files.
	EnvironPath []string
	// InterpreterPath lists the directories holding *.interp files.
	InterpreterPath []string
	// PluginRC is the procedure cache. A .xz suffix selects compression.
	PluginRC string

	HistorySize     int
	WriteBufferSize int
	// QuitGrace is how long a plug-in asked to quit gets before it is
	// killed.
	QuitGrace time.Duration

	TileWidth  int
	TileHeight int
	UseShm     bool

	StackTraceMode StackTraceMode
	// VerboseCleanup logs every shadow buffer released on behalf of a
	// plug-in, not just undo repairs.
	VerboseCleanup bool
	// IgnoreBasenames are plug-in file names the search skips.
	IgnoreBasenames []string

	AppName string
}

// DefaultConfig returns the settings used when nothing is configured.
// Paths live below the user configuration directory.
func DefaultConfig() Config {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	base = filepath.Join(base, "picman")

	cfg := Config{
		PlugInPath:      []string{filepath.Join(base, "plug-ins")},
		EnvironPath:     []string{filepath.Join(base, "environ")},
		InterpreterPath: []string{filepath.Join(base, "interpreters")},
		PluginRC:        filepath.Join(base, "pluginrc"),
		HistorySize:     10,
		WriteBufferSize: wire.DefaultBufferSize,
		QuitGrace:       10 * time.Millisecond,
		TileWidth:       64,
		TileHeight:      64,
		UseShm:          true,
		AppName:         "picman",
	}
	if v := os.Getenv(IgnoreBasenamesEnv); v != "" {
		cfg.IgnoreBasenames = SplitPath(v)
	}
	return cfg
}

// SplitPath splits a search path on the path list separator, dropping
// empty elements.
func SplitPath(s string) []string {
	var out []string
	for _, p := range strings.Split(s, string(os.PathListSeparator)) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
