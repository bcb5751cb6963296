package plugins

import (
	"context"
	"fmt"

	"github.com/FocuswithJustin/picman/core/errors"
	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/pluginrc"
)

func strArg(name, desc string) pdb.ParamSpec {
	return pdb.ParamSpec{Type: pdb.ValueString, Name: name, Desc: desc}
}

func intArg(name, desc string) pdb.ParamSpec {
	return pdb.ParamSpec{Type: pdb.ValueInt32, Name: name, Desc: desc}
}

func enumArg(name, desc string, lo, hi int) pdb.ParamSpec {
	return pdb.ParamSpec{Type: pdb.ValueEnum, Name: name, Desc: desc, HasRange: true, Min: float64(lo), Max: float64(hi)}
}

func idArg(t pdb.ValueType, name, desc string, noneOK bool) pdb.ParamSpec {
	return pdb.ParamSpec{Type: t, Name: name, Desc: desc, NoneOK: noneOK}
}

type internalProc struct {
	name   string
	blurb  string
	args   []pdb.ParamSpec
	values []pdb.ParamSpec
	run    pdb.MarshalFunc
}

// registerInternalProcs installs the host procedures plug-ins call to
// register themselves, report progress and manage their call state.
func registerInternalProcs(m *Manager) {
	for _, ip := range m.internalProcs() {
		proc := pdb.NewProcedure(ip.name, pdb.Internal)
		proc.Blurb = ip.blurb
		proc.Author = "Picman Team"
		proc.Copyright = "Picman Team"
		proc.Date = "2024"
		proc.Args = ip.args
		proc.Values = ip.values
		proc.Marshal = ip.run
		m.pdb.Register(proc)
	}
}

// callerPlugIn finds the plug-in a call comes from. Most of these
// procedures only make sense when called by one.
func (m *Manager) callerPlugIn(ctx context.Context, proc *pdb.Procedure) (*PlugIn, error) {
	p := m.plugInFor(ctx)
	if p == nil {
		return nil, fmt.Errorf("procedure '%s' can only be called by a plug-in", proc.Name)
	}
	return p, nil
}

// callerFrame is like callerPlugIn but also requires the process to be
// running.
func (m *Manager) callerFrame(ctx context.Context, proc *pdb.Procedure) (*PlugIn, *Frame, error) {
	p, err := m.callerPlugIn(ctx, proc)
	if err != nil {
		return nil, nil, err
	}
	if !p.IsOpen() {
		return nil, nil, errors.NewPlugIn(p.prog, "not running", errors.ErrPlugInClosed)
	}
	return p, p.currentFrame(), nil
}

func (m *Manager) queryingPlugIn(ctx context.Context, proc *pdb.Procedure) (*PlugIn, *Def, error) {
	p, err := m.callerPlugIn(ctx, proc)
	if err != nil {
		return nil, nil, err
	}
	p.mu.Lock()
	mode, def := p.mode, p.def
	p.mu.Unlock()
	if mode != CallQuery || def == nil {
		return nil, nil, errors.NewPlugIn(p.prog,
			fmt.Sprintf("procedure '%s' can only be called during query()", proc.Name), nil)
	}
	return p, def, nil
}

func (m *Manager) lookupImage(id int32) (Image, error) {
	if m.images != nil && id >= 0 {
		if img := m.images.Image(id); img != nil && img.ID() == id {
			return img, nil
		}
	}
	return nil, errors.NewNotFound("image", fmt.Sprint(id))
}

func (m *Manager) lookupDrawable(id int32) (Drawable, error) {
	if m.images != nil && id >= 0 {
		if d := m.images.Drawable(id); d != nil && d.ID() == id {
			return d, nil
		}
	}
	return nil, errors.NewNotFound("drawable", fmt.Sprint(id))
}

func (m *Manager) internalProcs() []internalProc {
	return []internalProc{
		{
			name:  "picman-register-load-handler",
			blurb: "Registers a file load handler procedure.",
			args: []pdb.ParamSpec{
				strArg("procedure-name", "The name of the procedure to be used for loading"),
				strArg("extensions", "comma separated list of extensions this handler can load (i.e. \"jpg,jpeg\")"),
				strArg("prefixes", "comma separated list of prefixes this handler can load (i.e. \"http:,ftp:\")"),
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				if err := m.RegisterLoadHandler(ctx, args[0].Str, args[1].Str, args[2].Str, ""); err != nil {
					return nil, err
				}
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-register-magic-load-handler",
			blurb: "Registers a file load handler procedure that matches files by content.",
			args: []pdb.ParamSpec{
				strArg("procedure-name", "The name of the procedure to be used for loading"),
				strArg("extensions", "comma separated list of extensions this handler can load (i.e. \"jpg,jpeg\")"),
				strArg("prefixes", "comma separated list of prefixes this handler can load (i.e. \"http:,ftp:\")"),
				strArg("magics", "comma separated list of magic file information this handler can load (i.e. \"0,string,GIF\")"),
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				if err := m.RegisterLoadHandler(ctx, args[0].Str, args[1].Str, args[2].Str, args[3].Str); err != nil {
					return nil, err
				}
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-register-save-handler",
			blurb: "Registers a file save handler procedure.",
			args: []pdb.ParamSpec{
				strArg("procedure-name", "The name of the procedure to be used for saving"),
				strArg("extensions", "comma separated list of extensions this handler can save (i.e. \"jpg,jpeg\")"),
				strArg("prefixes", "comma separated list of prefixes this handler can save (i.e. \"http:,ftp:\")"),
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				if err := m.RegisterSaveHandler(ctx, args[0].Str, args[1].Str, args[2].Str); err != nil {
					return nil, err
				}
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-register-file-handler-mime",
			blurb: "Associates a MIME type with a file handler procedure.",
			args: []pdb.ParamSpec{
				strArg("procedure-name", "The name of the procedure to associate a MIME type with."),
				strArg("mime-type", "A single MIME type, like for example \"image/jpeg\"."),
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				if err := m.RegisterMimeType(ctx, args[0].Str, args[1].Str); err != nil {
					return nil, err
				}
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-register-file-handler-uri",
			blurb: "Registers a file handler procedure as capable of handling URIs.",
			args: []pdb.ParamSpec{
				strArg("procedure-name", "The name of the procedure to enable URIs for."),
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				if err := m.RegisterHandlesURI(ctx, args[0].Str); err != nil {
					return nil, err
				}
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-register-thumbnail-loader",
			blurb: "Associates a thumbnail loader with a file load procedure.",
			args: []pdb.ParamSpec{
				strArg("load-proc", "The name of the procedure the thumbnail loader with."),
				strArg("thumb-proc", "The name of the thumbnail load procedure."),
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				if err := m.RegisterThumbnailLoader(ctx, args[0].Str, args[1].Str); err != nil {
					return nil, err
				}
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-plugin-menu-register",
			blurb: "Register an additional menu path for a plug-in procedure.",
			args: []pdb.ParamSpec{
				strArg("procedure-name", "The procedure for which to install the menu path."),
				strArg("menu-path", "The procedure's additional menu path."),
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				p, err := m.callerPlugIn(ctx, proc)
				if err != nil {
					return nil, err
				}
				if err := p.MenuRegister(args[0].Str, args[1].Str); err != nil {
					return nil, err
				}
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-plugin-menu-branch-register",
			blurb: "Register a sub-menu.",
			args: []pdb.ParamSpec{
				strArg("menu-path", "The sub-menu's menu path."),
				strArg("menu-name", "The name of the sub-menu."),
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				p, err := m.callerPlugIn(ctx, proc)
				if err != nil {
					return nil, err
				}
				m.AddMenuBranch(p.prog, args[0].Str, args[1].Str)
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-plugin-domain-register",
			blurb: "Registers a textdomain for localisation.",
			args: []pdb.ParamSpec{
				strArg("domain-name", "The name of the textdomain (must be unique)."),
				strArg("domain-path", "The absolute path to the compiled message catalog (may be empty)."),
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				_, def, err := m.queryingPlugIn(ctx, proc)
				if err != nil {
					return nil, err
				}
				def.SetLocaleDomain(args[0].Str, args[1].Str)
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-plugin-help-register",
			blurb: "Register a help path for a plug-in.",
			args: []pdb.ParamSpec{
				strArg("domain-name", "The XML namespace of the plug-in's help pages."),
				strArg("domain-uri", "The root URI of the plug-in's help pages."),
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				_, def, err := m.queryingPlugIn(ctx, proc)
				if err != nil {
					return nil, err
				}
				def.SetHelpDomain(args[0].Str, args[1].Str)
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-plugin-icon-register",
			blurb: "Register an icon for a plug-in procedure.",
			args: []pdb.ParamSpec{
				strArg("procedure-name", "The procedure for which to install the icon."),
				enumArg("icon-type", "The type of the icon { STOCK-ID (0), IMAGE-FILE (1), INLINE-PIXBUF (2) }", 0, 2),
				{Type: pdb.ValueInt32, Name: "icon-data-length", Desc: "The length of 'icon-data'", HasRange: true, Min: 1, Max: 1 << 30},
				{Type: pdb.ValueInt8Array, Name: "icon-data", Desc: "The procedure's icon. The format depends on the 'icon_type' parameter"},
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				p, def, err := m.queryingPlugIn(ctx, proc)
				if err != nil {
					return nil, err
				}
				target := FindProcedure(def.Procedures, pdb.CanonicalizeIdentifier(args[0].Str))
				if target == nil {
					return nil, errors.NewPlugIn(p.prog,
						fmt.Sprintf("attempted to register an icon for the procedure %q it has not installed", args[0].Str), nil)
				}
				data := args[3].Bytes
				if n := int(args[2].Int); n < len(data) {
					data = data[:n]
				}
				target.SetIcon(pluginrc.IconType(args[1].Int), data)
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-plugin-set-pdb-error-handler",
			blurb: "Sets an error handler for procedure calls.",
			args: []pdb.ParamSpec{
				enumArg("handler", "Who is responsible for handling procedure call errors { INTERNAL (0), PLUGIN (1) }", 0, 1),
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				p, err := m.callerPlugIn(ctx, proc)
				if err != nil {
					return nil, err
				}
				p.SetErrorHandler(ErrorHandler(args[0].Int))
				return proc.Success(), nil
			},
		},
		{
			name:   "picman-plugin-get-pdb-error-handler",
			blurb:  "Retrieves the active error handler for procedure calls.",
			values: []pdb.ParamSpec{enumArg("handler", "Who is responsible for handling procedure call errors", 0, 1)},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, _ pdb.ValueArray) (pdb.ValueArray, error) {
				p, err := m.callerPlugIn(ctx, proc)
				if err != nil {
					return nil, err
				}
				return proc.Success(pdb.Enum(int32(p.GetErrorHandler()))), nil
			},
		},
		{
			name:  "picman-plugin-enable-precision",
			blurb: "Switches this plug-in to using the real bit depth of drawables.",
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, _ pdb.ValueArray) (pdb.ValueArray, error) {
				p, err := m.callerPlugIn(ctx, proc)
				if err != nil {
					return nil, err
				}
				if p.Mode() != CallRun {
					return nil, errors.NewPlugIn(p.prog, "precision can only be enabled while running", nil)
				}
				p.EnablePrecision()
				return proc.Success(), nil
			},
		},
		{
			name:   "picman-plugin-precision-enabled",
			blurb:  "Whether this plug-in is using the real bit depth of drawables.",
			values: []pdb.ParamSpec{{Type: pdb.ValueBoolean, Name: "enabled", Desc: "Whether precision is enabled"}},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, _ pdb.ValueArray) (pdb.ValueArray, error) {
				p, err := m.callerPlugIn(ctx, proc)
				if err != nil {
					return nil, err
				}
				return proc.Success(pdb.Bool(p.PrecisionEnabled())), nil
			},
		},
		{
			name:  "picman-progress-init",
			blurb: "Initializes the progress bar for the current plug-in.",
			args: []pdb.ParamSpec{
				strArg("message", "Message to use in the progress dialog"),
				idArg(pdb.ValueDisplayID, "gdisplay", "PicmanDisplay to update progressbar in, or -1 for a separate window", true),
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				_, f, err := m.callerFrame(ctx, proc)
				if err != nil {
					return nil, err
				}
				f.progressStart(args[0].Str)
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-progress-update",
			blurb: "Updates the progress bar for the current plug-in.",
			args: []pdb.ParamSpec{
				{Type: pdb.ValueFloat, Name: "percentage", Desc: "Percentage of progress completed which must be between 0.0 and 1.0",
					HasRange: true, Min: -1e6, Max: 1e6},
			},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				_, f, err := m.callerFrame(ctx, proc)
				if err != nil {
					return nil, err
				}
				v := args[0].Float
				if v < 0 {
					v = 0
				} else if v > 1 {
					v = 1
				}
				f.progressSetValue(v)
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-progress-pulse",
			blurb: "Pulses the progress bar for the current plug-in.",
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, _ pdb.ValueArray) (pdb.ValueArray, error) {
				_, f, err := m.callerFrame(ctx, proc)
				if err != nil {
					return nil, err
				}
				f.progressPulse()
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-progress-set-text",
			blurb: "Changes the text in the progress bar for the current plug-in.",
			args:  []pdb.ParamSpec{strArg("message", "Message to use in the progress dialog")},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				_, f, err := m.callerFrame(ctx, proc)
				if err != nil {
					return nil, err
				}
				f.progressSetText(args[0].Str)
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-progress-end",
			blurb: "Ends the progress bar for the current plug-in.",
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, _ pdb.ValueArray) (pdb.ValueArray, error) {
				_, f, err := m.callerFrame(ctx, proc)
				if err != nil {
					return nil, err
				}
				f.progressEnd()
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-context-push",
			blurb: "Pushes a context to the top of the plug-in's context stack.",
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, _ pdb.ValueArray) (pdb.ValueArray, error) {
				_, f, err := m.callerFrame(ctx, proc)
				if err != nil {
					return nil, err
				}
				cur := f.Context()
				if parent, ok := cur.(interface{ NewChild() pdb.Context }); ok {
					cur = parent.NewChild()
				}
				f.PushContext(cur)
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-context-pop",
			blurb: "Pops the topmost context from the plug-in's context stack.",
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, _ pdb.ValueArray) (pdb.ValueArray, error) {
				p, f, err := m.callerFrame(ctx, proc)
				if err != nil {
					return nil, err
				}
				if !f.PopContext() {
					return nil, errors.NewPlugIn(p.prog, "context stack underflow", nil)
				}
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-image-undo-group-start",
			blurb: "Starts a group undo.",
			args:  []pdb.ParamSpec{idArg(pdb.ValueImageID, "image", "The ID of the image in which to open an undo group", false)},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				img, err := m.lookupImage(args[0].Int)
				if err != nil {
					return nil, err
				}
				desc := ""
				if p := m.plugInFor(ctx); p != nil {
					f := p.currentFrame()
					f.AddUndoGroup(img)
					if f.Procedure != nil {
						desc = f.Procedure.Label()
					}
					if desc == "" {
						desc = p.name
					}
				}
				if !img.UndoGroupStart(desc) {
					return nil, fmt.Errorf("cannot open an undo group on image %d", args[0].Int)
				}
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-image-undo-group-end",
			blurb: "Finish a group undo.",
			args:  []pdb.ParamSpec{idArg(pdb.ValueImageID, "image", "The ID of the image in which to close an undo group", false)},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				img, err := m.lookupImage(args[0].Int)
				if err != nil {
					return nil, err
				}
				if p := m.plugInFor(ctx); p != nil {
					if !p.currentFrame().RemoveUndoGroup(img) {
						return nil, errors.NewPlugIn(p.prog,
							fmt.Sprintf("closed an undo group on image %d it never opened", args[0].Int), nil)
					}
				}
				if !img.UndoGroupEnd() {
					return nil, fmt.Errorf("cannot close an undo group on image %d", args[0].Int)
				}
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-drawable-free-shadow",
			blurb: "Free the specified drawable's shadow data (if it exists).",
			args:  []pdb.ParamSpec{idArg(pdb.ValueDrawableID, "drawable", "The drawable", false)},
			run: func(ctx context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				d, err := m.lookupDrawable(args[0].Int)
				if err != nil {
					return nil, err
				}
				if p := m.plugInFor(ctx); p != nil {
					p.currentFrame().RemoveShadow(d)
				}
				d.FreeShadow()
				return proc.Success(), nil
			},
		},
		{
			name:  "picman-procedural-db-proc-info",
			blurb: "Queries the procedural database for information on the specified procedure.",
			args:  []pdb.ParamSpec{strArg("procedure-name", "The procedure name")},
			values: []pdb.ParamSpec{
				strArg("blurb", "A short blurb"),
				strArg("help", "Detailed procedure help"),
				strArg("author", "Author(s) of the procedure"),
				strArg("copyright", "The copyright"),
				strArg("date", "Copyright date"),
				enumArg("proc-type", "The procedure type { INTERNAL (0), PLUGIN (1), EXTENSION (2), TEMPORARY (3) }", 0, 3),
				intArg("num-args", "The number of input arguments"),
				intArg("num-values", "The number of return values"),
			},
			run: func(_ context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				info, err := m.pdb.ProcInfo(pdb.CanonicalizeIdentifier(args[0].Str))
				if err != nil {
					return nil, err
				}
				return proc.Success(
					pdb.String(info.Blurb),
					pdb.String(info.Help),
					pdb.String(info.Author),
					pdb.String(info.Copyright),
					pdb.String(info.Date),
					pdb.Enum(int32(info.Type)),
					pdb.Int32(int32(len(info.Args))),
					pdb.Int32(int32(len(info.Values))),
				), nil
			},
		},
		{
			name:   "picman-procedural-db-temp-name",
			blurb:  "Generates a unique temporary PDB name.",
			values: []pdb.ParamSpec{strArg("temp-name", "A unique temporary name for a temporary PDB entry")},
			run: func(_ context.Context, _ pdb.Caller, proc *pdb.Procedure, _ pdb.ValueArray) (pdb.ValueArray, error) {
				return proc.Success(pdb.String(m.pdb.TempName())), nil
			},
		},
		{
			name:   "picman-procedural-db-proc-exists",
			blurb:  "Checks if the specified procedure exists in the procedural database",
			args:   []pdb.ParamSpec{strArg("procedure-name", "The procedure name")},
			values: []pdb.ParamSpec{{Type: pdb.ValueBoolean, Name: "exists", Desc: "Whether a procedure of that name is registered"}},
			run: func(_ context.Context, _ pdb.Caller, proc *pdb.Procedure, args pdb.ValueArray) (pdb.ValueArray, error) {
				return proc.Success(pdb.Bool(m.pdb.Exists(pdb.CanonicalizeIdentifier(args[0].Str)))), nil
			},
		},
	}
}
