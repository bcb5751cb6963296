package plugins

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/pluginrc"
	"github.com/FocuswithJustin/picman/internal/logging"
)

// StandardLocaleDomain is the translation domain of plug-ins that do not
// register their own.
const StandardLocaleDomain = "picman20-std-plug-ins"

// Restore discovers every plug-in and makes its procedures callable. Fresh
// cache entries are used as they are, every other binary is queried, and
// binaries that asked for it are initialized. Zero-argument extensions are
// started last.
func (m *Manager) Restore(ctx context.Context) error {
	defs := Search(m.searchDirs(), m.cfg.IgnoreBasenames, m.interpExtensions())
	logging.InfoContext(ctx, "searching plug-ins", "found", len(defs))

	writeRC := false
	rcDefs, err := pluginrc.Load(m.cfg.PluginRC)
	if err != nil {
		logging.WarnContext(ctx, "ignoring plug-in cache", "path", m.cfg.PluginRC, "error", err)
		writeRC = true
	}
	for _, rc := range rcDefs {
		if m.mergeRCDef(ctx, defs, rc) {
			writeRC = true
		}
	}

	var needQuery []*Def
	for _, def := range defs {
		if def.NeedsQuery {
			needQuery = append(needQuery, def)
		}
	}
	if len(needQuery) > 0 {
		writeRC = true
		for _, def := range needQuery {
			logging.InfoContext(ctx, "querying plug-in", "prog", def.Prog)
			def.Procedures = nil
			def.HasInit = false
			if err := m.CallQuery(ctx, def); err != nil {
				logging.PlugInError(def.Prog, "query", err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	m.mu.Lock()
	m.defs = defs
	m.writeRC = writeRC
	m.mu.Unlock()

	for _, def := range defs {
		if !def.HasInit {
			continue
		}
		logging.InfoContext(ctx, "initializing plug-in", "prog", def.Prog)
		if err := m.CallInit(ctx, def); err != nil {
			logging.PlugInError(def.Prog, "init", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	for _, def := range defs {
		for _, proc := range def.Procedures {
			m.AddProcedure(proc)
		}
	}

	if writeRC {
		if err := m.WritePluginRC(); err != nil {
			logging.WarnContext(ctx, "cannot write plug-in cache", "path", m.cfg.PluginRC, "error", err)
		}
	}

	for _, def := range defs {
		if def.LocaleDomain != "" {
			m.AddLocaleDomain(def.Prog, def.LocaleDomain, def.LocalePath)
		} else {
			def.SetLocaleDomain(StandardLocaleDomain, "")
		}
		if def.HelpDomain != "" {
			m.AddHelpDomain(def.Prog, def.HelpDomain, def.HelpURI)
		}
	}

	m.addToDB(ctx)
	m.sortFileProcs()
	m.runExtensions(ctx)
	m.loadHistory(ctx)
	return nil
}

// mergeRCDef matches a cache entry against the binaries found on disk by
// basename. A matching entry for the same program and modification time
// replaces the on-disk definition. It reports whether the cache needs to
// be rewritten because the entry's binary is gone.
func (m *Manager) mergeRCDef(ctx context.Context, defs []*Def, rc *pluginrc.PlugInDef) bool {
	if !filepath.IsAbs(rc.Prog) {
		logging.WarnContext(ctx, "plug-in cache entry is not absolute, skipping", "prog", rc.Prog)
		return false
	}
	base := filepath.Base(rc.Prog)
	for i, ondisk := range defs {
		if filepath.Base(ondisk.Prog) != base {
			continue
		}
		if strings.EqualFold(rc.Prog, ondisk.Prog) && rc.MTime == ondisk.MTime {
			def, err := defFromRC(rc)
			if err != nil {
				logging.WarnContext(ctx, "invalid plug-in cache entry", "prog", rc.Prog, "error", err)
				return true
			}
			def.Prog = ondisk.Prog
			defs[i] = def
		}
		return false
	}
	logging.InfoContext(ctx, "executable not found", "prog", rc.Prog)
	return true
}

// WritePluginRC saves every definition to the cache file.
func (m *Manager) WritePluginRC() error {
	m.mu.Lock()
	rcs := make([]*pluginrc.PlugInDef, 0, len(m.defs))
	for _, def := range m.defs {
		rcs = append(rcs, def.rcDef())
	}
	m.writeRC = false
	m.mu.Unlock()
	return pluginrc.Save(m.cfg.PluginRC, rcs)
}

// addToDB registers every plug-in procedure in the PDB, then lets file
// procedures register their handlers the same way a plug-in would.
func (m *Manager) addToDB(ctx context.Context) {
	procs := m.Procedures()
	for _, proc := range procs {
		if proc.Prog != "" && proc.Type != pdb.Internal {
			proc.LocaleDomain, _ = m.LocaleDomain(proc.Prog)
			proc.HelpDomain, _ = m.HelpDomain(proc.Prog)
		}
		if proc.Executor == nil {
			proc.Executor = &procExecutor{m: m, proc: proc}
		}
		m.pdb.Register(proc.Procedure)
	}

	caller := pdb.Caller{Display: -1}
	for _, proc := range procs {
		if proc.File == nil {
			continue
		}
		var err error
		if proc.ImageTypes != "" {
			_, err = m.pdb.Run(ctx, caller, "picman-register-save-handler",
				pdb.String(proc.Name), pdb.String(proc.File.Extensions), pdb.String(proc.File.Prefixes))
		} else {
			_, err = m.pdb.Run(ctx, caller, "picman-register-magic-load-handler",
				pdb.String(proc.Name), pdb.String(proc.File.Extensions), pdb.String(proc.File.Prefixes),
				pdb.String(proc.File.Magics))
		}
		if err != nil {
			logging.PlugInError(proc.Prog, "registering file handler", err)
		}
	}
}

// fileProcLess orders the native format first, then by label.
func fileProcLess(a, b *Procedure) bool {
	if a.IsNativeSaveFormat() != b.IsNativeSaveFormat() {
		return a.IsNativeSaveFormat()
	}
	return a.Label() < b.Label()
}

func (m *Manager) sortFileProcs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range [][]*Procedure{m.loadProcs, m.saveProcs, m.exportProcs} {
		sort.SliceStable(list, func(i, j int) bool { return fileProcLess(list[i], list[j]) })
	}
}

// runExtensions starts every extension that takes no arguments.
func (m *Manager) runExtensions(ctx context.Context) {
	procs := m.Procedures()
	var exts []*Procedure
	for i := len(procs) - 1; i >= 0; i-- {
		p := procs[i]
		if p.Prog != "" && p.File == nil && p.Type == pdb.Extension && len(p.Args) == 0 {
			exts = append(exts, p)
		}
	}
	for _, p := range exts {
		logging.InfoContext(ctx, "starting extension", "procedure", p.Name, "prog", p.Prog)
		p.Procedure.ExecuteAsync(ctx, pdb.Caller{Display: -1}, nil)
	}
}
