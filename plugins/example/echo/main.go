// Plugin echo is a minimal plug-in that shows the whole life cycle: it
// installs a procedure that returns its text argument, an extension that
// serves a temporary procedure, and reports progress while it runs.
//
// Copy it into a plug-in directory and run `picman-pdb restore`.
package main

import (
	"os"
	"strings"

	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/plugins/ipc"
)

const (
	echoProc      = "plug-in-echo"
	extensionProc = "extension-echo"
	tempProc      = "echo-upper"
)

func main() {
	os.Exit(ipc.Main(ipc.Info{
		Query: query,
		Run:   run,
	}))
}

func query(p *ipc.PlugIn) error {
	err := p.Install(ipc.ProcDef{
		Name:      echoProc,
		Blurb:     "Return the text it was given",
		Help:      "Returns its text argument unchanged. Useful to test a plug-in setup.",
		Author:    "Picman Team",
		Copyright: "Picman Team",
		Date:      "2024",
		MenuLabel: "_Echo...",
		Type:      pdb.PlugIn,
		Params: []ipc.Param{
			{Type: pdb.ArgInt32, Name: "run-mode", Desc: "The run mode { RUN-INTERACTIVE (0), RUN-NONINTERACTIVE (1) }"},
			{Type: pdb.ArgString, Name: "text", Desc: "Text to echo"},
		},
		Returns: []ipc.Param{
			{Type: pdb.ArgString, Name: "text", Desc: "The same text"},
		},
	})
	if err != nil {
		return err
	}
	if err := p.MenuRegister(echoProc, "<Image>/Filters/Generic"); err != nil {
		return err
	}

	return p.Install(ipc.ProcDef{
		Name:      extensionProc,
		Blurb:     "Serve the echo-upper temporary procedure",
		Author:    "Picman Team",
		Copyright: "Picman Team",
		Date:      "2024",
		Type:      pdb.Extension,
	})
}

func run(p *ipc.PlugIn, name string, args pdb.ValueArray) pdb.ValueArray {
	switch pdb.CanonicalizeIdentifier(name) {
	case echoProc:
		if len(args) < 2 {
			return ipc.Failure(pdb.CallingError, "echo needs a run mode and a text")
		}
		_ = p.ProgressInit("Echoing")
		_ = p.ProgressUpdate(1)
		return ipc.Success(pdb.String(args[1].Str))

	case extensionProc:
		err := p.InstallTemp(ipc.ProcDef{
			Name:   tempProc,
			Blurb:  "Upper-case a text",
			Params: []ipc.Param{{Type: pdb.ArgString, Name: "text", Desc: "Text"}},
			Returns: []ipc.Param{
				{Type: pdb.ArgString, Name: "text", Desc: "Upper-cased text"},
			},
		}, func(_ *ipc.PlugIn, _ string, args pdb.ValueArray) pdb.ValueArray {
			return ipc.Success(pdb.String(strings.ToUpper(args[0].Str)))
		})
		if err != nil {
			return ipc.Failure(pdb.ExecutionError, err.Error())
		}
		if err := p.ExtensionAck(); err != nil {
			return ipc.Failure(pdb.ExecutionError, err.Error())
		}
		_ = p.ExtensionLoop()
		return ipc.Success()
	}
	return ipc.Failure(pdb.CallingError, "unknown procedure "+name)
}
