// Package console is interactive link control for debugging.
package console

import (
	"context"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/linkctl/cmd/linkctl/subcmd"
	"github.com/temoto/linkctl/frame"
	"github.com/temoto/linkctl/helpers/cli"
	"github.com/temoto/linkctl/link"
	"github.com/temoto/linkctl/state"
)

const modName = "console"

var Mod = subcmd.Mod{Name: modName, Usage: "interactive prompt, type help", Main: Main}

const help = `commands:
- send LOCO STATE      send control frame
- connect [HOST PORT]  one attempt to configured or given endpoint
- disconnect
- auto [HOST PORT]     enable auto-connect
- noauto               disable auto-connect
- target HOST PORT     change endpoint for future attempts
- pause | resume       suspend auto-connect attempts
- status
- probe                socket liveness and endpoint reachability now
- help`

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.OnTelemetryLine = func(line string) { g.Log.Infof("telemetry %s", line) }
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "init")
	}
	g.Start()
	defer g.Stop()

	g.Log.Infof("console: target=%s type help", g.Client.Endpoint().Load().String())
	cli.MainLoop(modName, newExecutor(ctx), newCompleter(ctx), g.Stop)
	return nil
}

func newCompleter(ctx context.Context) func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "send", Description: "LOCO STATE"},
		{Text: "connect", Description: "[HOST PORT]"},
		{Text: "disconnect"},
		{Text: "auto", Description: "[HOST PORT]"},
		{Text: "noauto"},
		{Text: "target", Description: "HOST PORT"},
		{Text: "pause"},
		{Text: "resume"},
		{Text: "status"},
		{Text: "probe"},
		{Text: "help"},
	}
	return func(d prompt.Document) []prompt.Suggest {
		if strings.Contains(d.TextBeforeCursor(), " ") {
			return nil
		}
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctx context.Context) func(string) {
	g := state.GetGlobal(ctx)
	return func(line string) {
		if err := execLine(ctx, line); err != nil {
			g.Log.Errorf("console: %s err=%v", line, err)
		}
	}
}

func execLine(ctx context.Context, line string) error {
	g := state.GetGlobal(ctx)
	c := g.Client
	words := strings.Fields(line)
	if len(words) == 0 {
		return nil
	}
	args := words[1:]
	switch words[0] {
	case "help", "?":
		g.Log.Info(help)

	case "send":
		if len(args) != 2 {
			return errors.NotValidf("send arguments")
		}
		loco, st, err := parsePair(args[0], args[1])
		if err != nil {
			return err
		}
		if !c.SendControl(loco, st) {
			return errors.Annotatef(link.ErrNotConnected, "send %s", frame.ControlFrameHex(loco, st))
		}
		g.Log.Infof("sent %s", frame.ControlFrameHex(loco, st))

	case "connect":
		host, port, err := hostPort(g, args)
		if err != nil {
			return err
		}
		if !c.Connect(host, port) {
			g.Log.Infof("connect ignored state=%s", c.State())
		}

	case "disconnect":
		c.Disconnect()

	case "auto":
		host, port, err := hostPort(g, args)
		if err != nil {
			return err
		}
		c.EnableAutoConnect(host, port)

	case "noauto":
		c.DisableAutoConnect()

	case "target":
		if len(args) != 2 {
			return errors.NotValidf("target arguments")
		}
		host, port, err := hostPort(g, args)
		if err != nil {
			return err
		}
		c.UpdateTarget(host, port)

	case "pause":
		c.PauseAuto(true)
	case "resume":
		c.PauseAuto(false)

	case "status":
		g.Log.Infof("status state=%s searching=%t target=%s last_recv=%v",
			c.State(), c.Searching(), c.Endpoint().Load().String(), c.SinceLastRecv())

	case "probe":
		connected, reachable := g.Monitor.Check("console")
		g.Log.Infof("probe connected=%t reachable=%t", connected, reachable)

	default:
		return errors.NotFoundf("command")
	}
	return nil
}

func hostPort(g *state.Global, args []string) (string, int, error) {
	switch len(args) {
	case 0:
		t := g.Client.Endpoint().Load()
		return t.Host, t.Port, nil
	case 2:
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return "", 0, errors.Annotate(err, "port")
		}
		return args[0], port, nil
	default:
		return "", 0, errors.NotValidf("expected HOST PORT")
	}
}

func parsePair(a, b string) (int, int, error) {
	x, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, errors.Annotate(err, "loco")
	}
	y, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, errors.Annotate(err, "state")
	}
	return x, y, nil
}
