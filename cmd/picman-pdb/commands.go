package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/pluginrc"
	"github.com/FocuswithJustin/picman/core/plugins"
	"github.com/FocuswithJustin/picman/core/protocol"
	"github.com/FocuswithJustin/picman/core/sqlite"
	"github.com/FocuswithJustin/picman/internal/historydb"
	"github.com/FocuswithJustin/picman/internal/logging"
	"github.com/FocuswithJustin/picman/internal/monitor"
)

// session is a ready plug-in manager plus the collaborators the command
// line provides for it.
type session struct {
	m      *plugins.Manager
	images *memStore
}

func (g *Globals) config() (plugins.Config, error) {
	cfg := plugins.DefaultConfig()
	if g.PlugInPath != "" {
		cfg.PlugInPath = plugins.SplitPath(g.PlugInPath)
	}
	if g.EnvironPath != "" {
		cfg.EnvironPath = plugins.SplitPath(g.EnvironPath)
	}
	if g.InterpreterPath != "" {
		cfg.InterpreterPath = plugins.SplitPath(g.InterpreterPath)
	}
	if g.PluginRC != "" {
		cfg.PluginRC = g.PluginRC
	}
	if g.HistorySize > 0 {
		cfg.HistorySize = g.HistorySize
	}
	if g.NoShm {
		cfg.UseShm = false
	}
	mode, err := plugins.ParseStackTraceMode(g.StackTrace)
	if err != nil {
		return cfg, err
	}
	cfg.StackTraceMode = mode
	return cfg, nil
}

func (g *Globals) initLogging(k *kong.Context) {
	logging.InitLoggerTo(k.Stderr, logging.ParseLevel(g.LogLevel), logging.ParseFormat(g.LogFormat))
}

// open sets up a manager without searching for plug-ins yet.
func (g *Globals) open(ctx context.Context, k *kong.Context) (*session, error) {
	g.initLogging(k)
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	compat, err := pdb.ParseCompatMode(g.Compat)
	if err != nil {
		return nil, err
	}

	s := &session{images: newMemStore(cfg.TileWidth, cfg.TileHeight)}
	opts := []plugins.Option{plugins.WithImageStore(s.images)}
	if g.History != "" {
		store, err := historydb.Open(g.History)
		if err != nil {
			return nil, err
		}
		opts = append(opts, plugins.WithHistoryStore(store))
	}
	s.m = plugins.NewManager(cfg, pdb.New(compat), opts...)
	if err := s.m.Initialize(ctx); err != nil {
		s.m.Exit(ctx)
		return nil, err
	}
	return s, nil
}

// restore opens a session and loads every plug-in procedure.
func (g *Globals) restore(ctx context.Context, k *kong.Context) (*session, error) {
	s, err := g.open(ctx, k)
	if err != nil {
		return nil, err
	}
	if err := s.m.Restore(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	// The caller's context may already be cancelled; plug-ins still need
	// to be shut down.
	if err := s.m.Exit(context.Background()); err != nil {
		logging.Warn("shutting down plug-in manager", "error", err)
	}
}

// RestoreCmd searches, queries and initializes plug-ins.
type RestoreCmd struct{}

func (c *RestoreCmd) Run(ctx context.Context, k *kong.Context, g *Globals) error {
	s, err := g.restore(ctx, k)
	if err != nil {
		return err
	}
	defer s.close()

	defs := s.m.Defs()
	fmt.Fprintf(k.Stdout, "%d plug-ins, %d procedures\n", len(defs), len(s.m.Procedures()))
	for _, def := range defs {
		fmt.Fprintf(k.Stdout, "  %s (%d)\n", def.Prog, len(def.Procedures))
	}
	fmt.Fprintf(k.Stdout, "cache: %s\n", s.m.Config().PluginRC)
	return nil
}

// ListCmd lists procedure names.
type ListCmd struct {
	Name   string `arg:"" optional:"" help:"Regular expression matched against the name."`
	Blurb  string `help:"Regular expression matched against the blurb."`
	Author string `help:"Regular expression matched against the author."`
	Type   string `help:"Regular expression matched against the procedure type."`
	Long   bool   `short:"l" help:"Show the blurb next to each name."`
}

func (c *ListCmd) Run(ctx context.Context, k *kong.Context, g *Globals) error {
	s, err := g.restore(ctx, k)
	if err != nil {
		return err
	}
	defer s.close()

	db := s.m.PDB()
	names, err := db.Query(pdb.Query{Name: c.Name, Blurb: c.Blurb, Author: c.Author, ProcType: c.Type})
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(k.Stdout, 0, 4, 2, ' ', 0)
	for _, name := range names {
		if !c.Long {
			fmt.Fprintln(tw, name)
			continue
		}
		proc, err := db.ProcInfo(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, proc.Type, proc.Blurb)
	}
	return tw.Flush()
}

// InfoCmd prints one procedure.
type InfoCmd struct {
	Name string `arg:"" help:"Procedure name; deprecated names resolve to their replacement."`
}

func (c *InfoCmd) Run(ctx context.Context, k *kong.Context, g *Globals) error {
	s, err := g.restore(ctx, k)
	if err != nil {
		return err
	}
	defer s.close()

	proc, err := lookup(s.m.PDB(), c.Name)
	if err != nil {
		return err
	}
	writeInfo(k, proc, s.m.FindProcedure(proc.Name))
	return nil
}

// lookup finds a procedure by the name as typed, then by its canonical
// spelling.
func lookup(db *pdb.PDB, name string) (*pdb.Procedure, error) {
	proc, err := db.ProcInfo(name)
	if err == nil {
		return proc, nil
	}
	if canon := pdb.CanonicalizeIdentifier(name); canon != name {
		if proc, cerr := db.ProcInfo(canon); cerr == nil {
			return proc, nil
		}
	}
	return nil, err
}

func writeInfo(k *kong.Context, proc *pdb.Procedure, plugInProc *plugins.Procedure) {
	w := tabwriter.NewWriter(k.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "Name:\t%s\n", proc.Name)
	if proc.OriginalName != "" && proc.OriginalName != proc.Name {
		fmt.Fprintf(w, "Registered as:\t%s\n", proc.OriginalName)
	}
	fmt.Fprintf(w, "Type:\t%s\n", proc.Type)
	for _, f := range []struct{ label, value string }{
		{"Blurb", proc.Blurb},
		{"Help", proc.Help},
		{"Author", proc.Author},
		{"Copyright", proc.Copyright},
		{"Date", proc.Date},
	} {
		if f.value != "" {
			fmt.Fprintf(w, "%s:\t%s\n", f.label, f.value)
		}
	}
	if proc.Deprecated != "" {
		fmt.Fprintf(w, "Deprecated:\tuse %s\n", proc.Deprecated)
	}
	if plugInProc != nil {
		fmt.Fprintf(w, "Plug-in:\t%s\n", plugInProc.Prog)
		if label := plugInProc.Label(); label != "" {
			fmt.Fprintf(w, "Label:\t%s\n", label)
		}
		for _, p := range plugInProc.MenuPaths {
			fmt.Fprintf(w, "Menu:\t%s\n", p)
		}
		if plugInProc.ImageTypes != "" {
			fmt.Fprintf(w, "Image types:\t%s\n", plugInProc.ImageTypes)
		}
		if f := plugInProc.File; f != nil {
			fmt.Fprintf(w, "Extensions:\t%s\n", strings.Join(f.ExtensionList, ", "))
			if f.MimeType != "" {
				fmt.Fprintf(w, "MIME type:\t%s\n", f.MimeType)
			}
		}
	}
	fmt.Fprintf(w, "Arguments:\t%d\n", len(proc.Args))
	for i, a := range proc.Args {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", i+1, a.Name, a.Type, a.Desc)
	}
	fmt.Fprintf(w, "Return values:\t%d\n", len(proc.Values))
	for i, v := range proc.Values {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", i+1, v.Name, v.Type, v.Desc)
	}
}

// RunCmd runs a procedure and prints its return values.
type RunCmd struct {
	Name     string        `arg:"" help:"Procedure name."`
	Args     []string      `arg:"" optional:"" help:"Arguments; arrays and colors are comma separated."`
	NewImage string        `name:"new-image" placeholder:"WxH[xBPP]" help:"Create a blank image first; it gets id 1 and its drawable id 2."`
	Timeout  time.Duration `help:"Give up after this long (0 waits forever)."`
}

func (c *RunCmd) Run(ctx context.Context, k *kong.Context, g *Globals) error {
	s, err := g.restore(ctx, k)
	if err != nil {
		return err
	}
	defer s.close()

	if c.NewImage != "" {
		var w, h, bpp int
		n, _ := fmt.Sscanf(strings.ToLower(c.NewImage), "%dx%dx%d", &w, &h, &bpp)
		if n < 2 || w <= 0 || h <= 0 {
			return fmt.Errorf("invalid image size %q", c.NewImage)
		}
		if n == 2 {
			bpp = 3
		}
		img, drw := s.images.NewImage(w, h, bpp)
		fmt.Fprintf(k.Stderr, "created image %d with drawable %d\n", img, drw)
	}

	db := s.m.PDB()
	proc, err := lookup(db, c.Name)
	if err != nil {
		return err
	}
	args, err := parseArgs(proc, c.Args)
	if err != nil {
		return err
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	caller := pdb.Caller{Context: namedContext("command-line"), Progress: newTextProgress(k.Stderr), Display: -1}
	vals, err := db.ExecuteByName(ctx, caller, proc.Name, args)
	if p := s.m.FindProcedure(proc.Name); p != nil && pdb.StatusOf(vals) == pdb.Success {
		s.m.HistoryAdd(ctx, p)
	}
	writeValues(k, proc, vals)
	if err != nil {
		return err
	}
	if st := pdb.StatusOf(vals); st != pdb.Success {
		return fmt.Errorf("%s returned %s", proc.Name, st)
	}
	return nil
}

func writeValues(k *kong.Context, proc *pdb.Procedure, vals pdb.ValueArray) {
	if len(vals) == 0 {
		return
	}
	fmt.Fprintf(k.Stdout, "status: %s\n", pdb.StatusOf(vals))
	if pdb.StatusOf(vals) != pdb.Success {
		return
	}
	for i, v := range vals[1:] {
		name := fmt.Sprintf("value-%d", i+1)
		if i < len(proc.Values) {
			name = proc.Values[i].Name
		}
		fmt.Fprintf(k.Stdout, "%s: %s\n", name, v)
	}
}

// DumpCmd writes the whole procedure database.
type DumpCmd struct {
	Output string `short:"o" help:"Write to this file instead of standard output." type:"path"`
}

func (c *DumpCmd) Run(ctx context.Context, k *kong.Context, g *Globals) error {
	s, err := g.restore(ctx, k)
	if err != nil {
		return err
	}
	defer s.close()

	if c.Output == "" {
		return s.m.PDB().Dump(k.Stdout)
	}
	f, err := os.Create(c.Output)
	if err != nil {
		return err
	}
	if err := s.m.PDB().Dump(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// PluginrcCmd prints a procedure cache in canonical form.
type PluginrcCmd struct {
	File string `arg:"" optional:"" help:"Cache file; defaults to the configured one." type:"path"`
}

func (c *PluginrcCmd) Run(k *kong.Context, g *Globals) error {
	g.initLogging(k)
	path := c.File
	if path == "" {
		cfg, err := g.config()
		if err != nil {
			return err
		}
		path = cfg.PluginRC
	}
	defs, err := pluginrc.Load(path)
	if err != nil {
		return err
	}
	return pluginrc.Write(k.Stdout, defs)
}

// HistoryCmd shows the persisted history.
type HistoryCmd struct {
	Clear bool `help:"Forget every entry."`
}

func (c *HistoryCmd) Run(ctx context.Context, k *kong.Context, g *Globals) error {
	g.initLogging(k)
	if g.History == "" {
		return errors.New("no history database configured (--history)")
	}
	store, err := historydb.Open(g.History)
	if err != nil {
		return err
	}
	defer store.Close()

	if c.Clear {
		return store.Save(nil)
	}
	entries, err := store.Entries(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(k.Stdout, "%s  %s\n", e.UsedAt.Format(time.RFC3339), e.Name)
	}
	return nil
}

// MonitorCmd restores the plug-ins and serves their events until
// interrupted.
type MonitorCmd struct {
	Listen      string   `default:"127.0.0.1:8090" help:"Address to listen on."`
	AllowOrigin []string `name:"allow-origin" help:"Browser origins allowed to connect."`
}

func (c *MonitorCmd) Run(ctx context.Context, k *kong.Context, g *Globals) error {
	s, err := g.open(ctx, k)
	if err != nil {
		return err
	}
	defer s.close()

	hub := monitor.NewHub(monitor.Config{AllowedOrigins: c.AllowOrigin})
	go hub.Run(ctx)
	detach := hub.Attach(s.m)
	defer detach()

	ln, err := net.Listen("tcp", c.Listen)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: logging.Middleware(c.routes(hub, s.m)), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logging.ServerStartup("monitor", ln.Addr().String())
	fmt.Fprintf(k.Stdout, "serving events on ws://%s/events\n", ln.Addr())

	if err := s.m.Restore(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("restore failed", "error", err)
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}

func (c *MonitorCmd) routes(hub *monitor.Hub, m *plugins.Manager) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/events", hub)
	mux.HandleFunc("/procedures", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.PDB().Names())
	})
	return mux
}

// VersionCmd prints build information.
type VersionCmd struct{}

func (c *VersionCmd) Run(k *kong.Context) error {
	info := sqlite.GetInfo()
	fmt.Fprintf(k.Stdout, "picman-pdb %s\n", version)
	fmt.Fprintf(k.Stdout, "protocol version 0x%04x, pluginrc file version %d\n", protocol.Version, pluginrc.FileVersion)
	fmt.Fprintf(k.Stdout, "sqlite driver %s (%s, %s)\n", info.DriverName, info.DriverType, info.Package)
	return nil
}
