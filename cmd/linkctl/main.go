package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/linkctl/cmd/linkctl/console"
	"github.com/temoto/linkctl/cmd/linkctl/probe"
	"github.com/temoto/linkctl/cmd/linkctl/run"
	"github.com/temoto/linkctl/cmd/linkctl/subcmd"
	"github.com/temoto/linkctl/log2"
	"github.com/temoto/linkctl/state"
)

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	run.Mod,
	console.Mod,
	probe.Mod,
}

func main() {
	flagset := flag.NewFlagSet("linkctl", flag.ExitOnError)
	flagConfig := flagset.String("config", "linkctl.hcl", "config file, .hcl or .yaml")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "Usage: linkctl [-config linkctl.hcl] command\n\nCommands:\n%s\n\nFlags:\n", subcmd.Usage(modules))
		flagset.PrintDefaults()
	}
	_ = flagset.Parse(os.Args[1:])

	mod, err := subcmd.Parse(flagset.Arg(0), modules)
	if err != nil {
		fmt.Fprintln(flagset.Output(), err)
		flagset.Usage()
		os.Exit(2)
	}

	if subcmd.SdNotify("start") {
		// under systemd, journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	ctx, g := state.NewContext(log)
	config, err := state.ReadConfig(log, state.NewOsFullReader(), *flagConfig)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	if !config.Link.LogDebug {
		log.SetLevel(log2.LInfo)
	}
	log.Debugf("config target=%s:%d auto_connect=%t tele=%t", config.Target.Host, config.Target.Port, config.Link.AutoConnect, config.Tele.Enabled)

	if err := mod.Main(ctx, config); err != nil {
		g.Stop()
		log.Fatal(errors.ErrorStack(err))
	}
}
