package ipc

import (
	"fmt"

	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/protocol"
)

// Param declares one argument or return value of an installed procedure.
type Param struct {
	Type pdb.ArgType
	Name string
	Desc string
}

// ProcDef describes a procedure to install.
type ProcDef struct {
	Name      string
	Blurb     string
	Help      string
	Author    string
	Copyright string
	Date      string
	// MenuLabel is the label, or a full "<Prefix>/..." menu path.
	MenuLabel  string
	ImageTypes string
	Type       pdb.ProcType
	Params     []Param
	Returns    []Param
}

func paramDefs(params []Param) []protocol.ParamDef {
	defs := make([]protocol.ParamDef, len(params))
	for i, p := range params {
		defs[i] = protocol.ParamDef{Type: p.Type, Name: p.Name, Description: p.Desc}
	}
	return defs
}

// Install registers a procedure with the host. Plug-in and extension
// procedures are installed during query or init; temporary ones with
// InstallTemp.
func (p *PlugIn) Install(def ProcDef) error {
	if def.Name == "" {
		return fmt.Errorf("cannot install a procedure without a name")
	}
	return p.send(protocol.MsgProcInstall, &protocol.ProcInstall{
		Name:       def.Name,
		Blurb:      def.Blurb,
		Help:       def.Help,
		Author:     def.Author,
		Copyright:  def.Copyright,
		Date:       def.Date,
		MenuPath:   def.MenuLabel,
		ImageTypes: def.ImageTypes,
		Type:       def.Type,
		Params:     paramDefs(def.Params),
		ReturnVals: paramDefs(def.Returns),
	})
}

// InstallTemp installs a temporary procedure served by fn. It lives until
// Uninstall or the end of the process.
func (p *PlugIn) InstallTemp(def ProcDef, fn RunFunc) error {
	def.Type = pdb.Temporary
	if err := p.Install(def); err != nil {
		return err
	}
	p.mu.Lock()
	p.temp[pdb.CanonicalizeIdentifier(def.Name)] = fn
	p.mu.Unlock()
	return nil
}

// Uninstall removes a temporary procedure.
func (p *PlugIn) Uninstall(name string) error {
	p.mu.Lock()
	delete(p.temp, pdb.CanonicalizeIdentifier(name))
	p.mu.Unlock()
	return p.send(protocol.MsgProcUninstall, &protocol.ProcUninstall{Name: name})
}

// HasInit asks the host to run this plug-in in init mode on every start.
// It is only honored during query.
func (p *PlugIn) HasInit() error {
	return p.send(protocol.MsgHasInit, nil)
}

// Call runs a procedure in the host and waits for its return values.
// Temporary procedure runs that arrive while waiting are served.
func (p *PlugIn) Call(name string, args ...pdb.Value) (pdb.ValueArray, error) {
	if p.closed() {
		return nil, ErrQuit
	}
	if err := p.send(protocol.MsgProcRun, &protocol.ProcRun{Name: name, Params: args}); err != nil {
		return nil, err
	}
	msg, err := p.expect(protocol.MsgProcReturn)
	if err != nil {
		return nil, err
	}
	defer p.registry.Destroy(msg)
	return msg.Data.(*protocol.ProcReturn).Params, nil
}

// CallChecked is Call that turns a non-success status into an error.
func (p *PlugIn) CallChecked(name string, args ...pdb.Value) (pdb.ValueArray, error) {
	vals, err := p.Call(name, args...)
	if err != nil {
		return nil, err
	}
	if s := pdb.StatusOf(vals); s != pdb.Success {
		if msg := pdb.MessageOf(vals); msg != "" {
			return vals, fmt.Errorf("%s: %s", name, msg)
		}
		return vals, fmt.Errorf("%s: %s", name, s)
	}
	return vals, nil
}

// RegisterLoadHandler declares name a file load procedure.
func (p *PlugIn) RegisterLoadHandler(name, extensions, prefixes string) error {
	_, err := p.CallChecked("picman-register-load-handler",
		pdb.String(name), pdb.String(extensions), pdb.String(prefixes))
	return err
}

// RegisterMagicLoadHandler declares name a file load procedure that also
// matches by content.
func (p *PlugIn) RegisterMagicLoadHandler(name, extensions, prefixes, magics string) error {
	_, err := p.CallChecked("picman-register-magic-load-handler",
		pdb.String(name), pdb.String(extensions), pdb.String(prefixes), pdb.String(magics))
	return err
}

// RegisterSaveHandler declares name a file save procedure.
func (p *PlugIn) RegisterSaveHandler(name, extensions, prefixes string) error {
	_, err := p.CallChecked("picman-register-save-handler",
		pdb.String(name), pdb.String(extensions), pdb.String(prefixes))
	return err
}

// RegisterMimeType sets the MIME type of a file procedure.
func (p *PlugIn) RegisterMimeType(name, mimeType string) error {
	_, err := p.CallChecked("picman-register-file-handler-mime", pdb.String(name), pdb.String(mimeType))
	return err
}

// MenuRegister adds a menu path to an installed procedure.
func (p *PlugIn) MenuRegister(name, menuPath string) error {
	_, err := p.CallChecked("picman-plugin-menu-register", pdb.String(name), pdb.String(menuPath))
	return err
}

// DomainRegister names the translation domain of this plug-in.
func (p *PlugIn) DomainRegister(domain, path string) error {
	_, err := p.CallChecked("picman-plugin-domain-register", pdb.String(domain), pdb.String(path))
	return err
}

// HelpRegister names the help domain of this plug-in.
func (p *PlugIn) HelpRegister(domain, uri string) error {
	_, err := p.CallChecked("picman-plugin-help-register", pdb.String(domain), pdb.String(uri))
	return err
}

// ProgressInit starts the caller's progress display.
func (p *PlugIn) ProgressInit(message string) error {
	_, err := p.CallChecked("picman-progress-init",
		pdb.String(message), pdb.ObjectID(pdb.ValueDisplayID, -1))
	return err
}

// ProgressUpdate sets the progress to fraction, between 0 and 1.
func (p *PlugIn) ProgressUpdate(fraction float64) error {
	_, err := p.CallChecked("picman-progress-update", pdb.Float(fraction))
	return err
}

// ProgressEnd ends the progress display.
func (p *PlugIn) ProgressEnd() error {
	_, err := p.CallChecked("picman-progress-end")
	return err
}
