// Command picman-pdb inspects and drives the plug-in procedure database
// without the rest of the application: it finds plug-ins, queries them,
// lists and runs their procedures and serves a live event stream.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
)

const version = "0.1.0"

// Globals are the settings every command shares. Each can also come from
// the JSON configuration file or the environment.
type Globals struct {
	Config kong.ConfigFlag `help:"JSON configuration file." type:"path"`

	PlugInPath      string `name:"plugin-path" env:"PICMAN_PLUGIN_PATH" help:"Plug-in directories, separated by the path list separator."`
	EnvironPath     string `name:"environ-path" env:"PICMAN_ENVIRON_PATH" help:"Directories holding *.env files."`
	InterpreterPath string `name:"interpreter-path" env:"PICMAN_INTERPRETER_PATH" help:"Directories holding *.interp files."`
	PluginRC        string `name:"pluginrc" env:"PICMAN_PLUGINRC" help:"Procedure cache file; a .xz suffix compresses it." type:"path"`
	History         string `name:"history" env:"PICMAN_HISTORY_DB" help:"SQLite file keeping the recently used procedures." type:"path"`
	HistorySize     int    `name:"history-size" default:"10" help:"Number of recently used procedures kept."`

	Compat     string `name:"compat" env:"PICMAN_COMPAT_MODE" enum:"off,on,warn" default:"on" help:"Treatment of deprecated procedure names (${enum})."`
	StackTrace string `name:"stack-trace" env:"PICMAN_STACK_TRACE_MODE" enum:"never,query,always" default:"never" help:"When plug-ins print stack traces (${enum})."`
	NoShm      bool   `name:"no-shm" help:"Send tile data through the pipes instead of shared memory."`

	LogLevel  string `name:"log-level" env:"PICMAN_LOG_LEVEL" enum:"debug,info,warn,error" default:"warn" help:"Log level (${enum})."`
	LogFormat string `name:"log-format" enum:"text,json" default:"text" help:"Log format (${enum})."`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Restore  RestoreCmd  `cmd:"" help:"Find and query plug-ins, then rewrite the procedure cache."`
	List     ListCmd     `cmd:"" help:"List procedures matching regular expressions."`
	Info     InfoCmd     `cmd:"" help:"Show a procedure's documentation and signature."`
	Run      RunCmd      `cmd:"" help:"Run a procedure with arguments parsed by their declared types."`
	Dump     DumpCmd     `cmd:"" help:"Write every procedure as an s-expression."`
	Pluginrc PluginrcCmd `cmd:"" help:"Print the parsed procedure cache."`
	History  HistoryCmd  `cmd:"" help:"Show or clear the recently used procedures."`
	Monitor  MonitorCmd  `cmd:"" help:"Serve procedure database events over a websocket."`
	Version  VersionCmd  `cmd:"" help:"Print version information."`
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	opts = append([]kong.Option{
		kong.Name("picman-pdb"),
		kong.Description("Plug-in procedure database tool"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Configuration(kong.JSON, "/etc/picman/picman-pdb.json", "~/.config/picman/picman-pdb.json"),
	}, opts...)
	return kong.New(cli, opts...)
}

func main() {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		panic(err)
	}
	k, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	k.BindTo(ctx, (*context.Context)(nil))
	err = k.Run(&cli.Globals)
	k.FatalIfErrorf(err)
}
