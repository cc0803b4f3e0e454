package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/linkctl/link"
	"github.com/temoto/linkctl/log2"
	"github.com/temoto/linkctl/tele"
)

// Global owns process wide components, built by Init from Config.
type Global struct {
	Alive    *alive.Alive
	Config   *Config
	Log      *log2.Log
	Registry *prometheus.Registry
	Metrics  *link.Metrics
	Client   *link.Client
	Monitor  *link.Monitor
	Tele     *tele.Bridge

	// OnTelemetryLine is optional extra consumer, set before Init.
	OnTelemetryLine func(string)

	stopOnce sync.Once
}

const ContextKey = "run/state-global"

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}
	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
		Tele:  new(tele.Bridge),
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if g.Tele == nil {
		g.Tele = new(tele.Bridge)
	}

	g.Registry = prometheus.NewRegistry()
	g.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	g.Metrics = link.NewMetrics(g.Registry)

	linkLog := g.Log.Clone(log2.LInfo)
	if cfg.Link.LogDebug {
		linkLog.SetLevel(log2.LDebug)
	}
	g.Client = link.NewClient(link.Options{
		Log:            linkLog,
		Metrics:        g.Metrics,
		Endpoint:       link.NewEndpoint(cfg.Target.Host, cfg.Target.Port),
		ConnectTimeout: cfg.ConnectTimeout(),
		Tick:           cfg.Tick(),
		ReadChunk:      cfg.Link.ReadChunk,
		BufferSize:     cfg.Link.BufferSize,
		SendQueue:      cfg.Link.SendQueue,
		LogFrames:      cfg.Link.LogDebug,

		OnConnectingStarted: func() { g.Tele.Searching(true) },
		OnConnectingStopped: func() { g.Tele.Searching(false) },
		OnTelemetryLine:     g.onTelemetryLine,
		OnError:             g.Tele.Error,
		OnStatus: func(s link.Status) {
			g.Log.Infof("link: status=%s target=%s", s, g.Client.Endpoint().Load().String())
			g.Tele.Status(s)
		},
	})
	g.Monitor = link.NewMonitor(g.Client, link.MonitorOptions{
		Log:      linkLog,
		Metrics:  g.Metrics,
		Interval: cfg.ProbeInterval(),
		Timeout:  cfg.ProbeTimeout(),
		OnChange: g.Tele.Reachable,
	})

	// tele is remote error reporting, must be ready before link starts
	if err := g.Tele.Init(ctx, g.Log, cfg.Tele, g.Client); err != nil {
		return errors.Annotate(err, "tele init")
	}
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

// Start runs liveness monitor and, when configured, auto-connect.
func (g *Global) Start() {
	if g.Config.Link.AutoConnect {
		g.Client.EnableAutoConnect(g.Config.Target.Host, g.Config.Target.Port)
	}
	g.Monitor.Start()
}

// Stop closes components in reverse order. Safe to call multiple times.
func (g *Global) Stop() {
	g.stopOnce.Do(func() {
		g.Alive.Stop()
		if g.Monitor != nil {
			g.Monitor.Stop()
		}
		if g.Client != nil {
			if err := g.Client.Close(); err != nil {
				g.Log.Error(errors.Annotate(err, "link close"))
			}
		}
		g.Tele.Close()
	})
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Errorf("%s", errors.ErrorStack(err))
		g.Tele.Error(err)
	}
}

func (g *Global) onTelemetryLine(line string) {
	g.Log.Debugf("link: telemetry %s", line)
	g.Tele.TelemetryLine(line)
	if g.OnTelemetryLine != nil {
		g.OnTelemetryLine(line)
	}
}
