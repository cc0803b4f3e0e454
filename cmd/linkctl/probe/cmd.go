package probe

import (
	"context"

	"github.com/juju/errors"
	"github.com/temoto/linkctl/cmd/linkctl/subcmd"
	"github.com/temoto/linkctl/state"
)

var Mod = subcmd.Mod{Name: "probe", Usage: "check target endpoint reachability, exit code 0 or 1", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	config.Tele.Enabled = false
	config.Link.AutoConnect = false
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "init")
	}
	defer g.Stop()

	target := g.Client.Endpoint().Load()
	if !target.Valid() {
		return errors.NotValidf("target host=%q port=%d", target.Host, target.Port)
	}
	timeout := config.ProbeTimeout()
	if !g.Client.IsEndpointReachable(timeout) {
		return errors.Errorf("probe target=%s timeout=%v unreachable", target.String(), timeout)
	}
	g.Log.Infof("probe target=%s reachable", target.String())
	return nil
}
