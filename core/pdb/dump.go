package pdb

import (
	"bufio"
	"io"
	"strconv"
)

// Dump writes every registered procedure as a register-procedure form, in
// name order. Deprecated aliases are not included.
func (p *PDB) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, name := range p.Names() {
		proc := p.Lookup(name)
		if proc == nil {
			continue
		}
		writeProcedure(bw, proc)
	}
	return bw.Flush()
}

func writeProcedure(w *bufio.Writer, proc *Procedure) {
	w.WriteString("(register-procedure ")
	w.WriteString(strconv.Quote(proc.Name))
	for _, s := range []string{proc.Blurb, proc.Help, proc.Author, proc.Copyright, proc.Date, proc.Type.String()} {
		w.WriteString("\n  ")
		w.WriteString(strconv.Quote(s))
	}
	writeSpecs(w, proc.Args)
	writeSpecs(w, proc.Values)
	w.WriteString(")\n\n")
}

func writeSpecs(w *bufio.Writer, specs []ParamSpec) {
	w.WriteString("\n  (")
	for _, spec := range specs {
		w.WriteString("\n    (")
		w.WriteString(strconv.Quote(spec.Name))
		w.WriteString(" ")
		w.WriteString(strconv.Quote("PICMAN_PDB_" + ArgTypeFromValueType(spec.Type).String()))
		w.WriteString(" ")
		w.WriteString(strconv.Quote(spec.Desc))
		w.WriteString(")")
	}
	w.WriteString(")")
}
