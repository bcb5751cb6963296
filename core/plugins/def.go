package plugins

import (
	"github.com/FocuswithJustin/picman/core/pluginrc"
)

// Def is everything known about one plug-in binary: the procedures it
// provides and its text domains.
type Def struct {
	Prog       string
	MTime      int64
	Procedures []*Procedure

	LocaleDomain string
	LocalePath   string
	HelpDomain   string
	HelpURI      string

	HasInit bool
	// NeedsQuery is set when the cache entry is missing or stale.
	NeedsQuery bool
}

// NewDef creates an empty definition for prog.
func NewDef(prog string) *Def {
	return &Def{Prog: prog}
}

// AddProcedure adds proc, replacing an earlier procedure of the same name.
func (d *Def) AddProcedure(proc *Procedure) {
	proc.Prog = d.Prog
	for i, p := range d.Procedures {
		if p.Name == proc.Name {
			d.Procedures[i] = proc
			return
		}
	}
	d.Procedures = append(d.Procedures, proc)
}

// RemoveProcedure drops proc from the definition.
func (d *Def) RemoveProcedure(proc *Procedure) {
	d.Procedures = removeProcedure(d.Procedures, proc)
}

// SetLocaleDomain records the translation domain of the binary.
func (d *Def) SetLocaleDomain(domain, path string) {
	d.LocaleDomain = domain
	d.LocalePath = path
}

// SetHelpDomain records the help domain of the binary.
func (d *Def) SetHelpDomain(domain, uri string) {
	d.HelpDomain = domain
	d.HelpURI = uri
}

// SetMTime records the binary's modification time. Procedures belong to
// the same snapshot of the binary, so nothing else changes.
func (d *Def) SetMTime(mtime int64) {
	d.MTime = mtime
}

// rcDef converts the definition into its cache record. Procedures
// installed during init are installed again on every start and are left
// out.
func (d *Def) rcDef() *pluginrc.PlugInDef {
	rc := &pluginrc.PlugInDef{
		Prog:         d.Prog,
		MTime:        d.MTime,
		LocaleDomain: d.LocaleDomain,
		LocalePath:   d.LocalePath,
		HelpDomain:   d.HelpDomain,
		HelpURI:      d.HelpURI,
		HasInit:      d.HasInit,
	}
	for _, p := range d.Procedures {
		if p.InstalledDuringInit {
			continue
		}
		rc.Procedures = append(rc.Procedures, p.procDef())
	}
	return rc
}

// defFromRC rebuilds a definition from its cache record.
func defFromRC(rc *pluginrc.PlugInDef) (*Def, error) {
	d := &Def{
		Prog:         rc.Prog,
		MTime:        rc.MTime,
		LocaleDomain: rc.LocaleDomain,
		LocalePath:   rc.LocalePath,
		HelpDomain:   rc.HelpDomain,
		HelpURI:      rc.HelpURI,
		HasInit:      rc.HasInit,
	}
	for _, pd := range rc.Procedures {
		proc, err := procedureFromDef(rc.Prog, pd)
		if err != nil {
			return nil, err
		}
		d.AddProcedure(proc)
	}
	return d, nil
}
