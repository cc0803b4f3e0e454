// Package run is the daemon: keeps link connected, mirrors it to MQTT, serves metrics.
package run

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/temoto/linkctl/cmd/linkctl/subcmd"
	"github.com/temoto/linkctl/state"
)

var Mod = subcmd.Mod{Name: "run", Usage: "daemon, stops on SIGINT/SIGTERM", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "init")
	}

	var srv *http.Server
	if config.Metrics.Listen != "" {
		srv = NewMetricsServer(g, config.Metrics.Listen)
		g.Alive.Add(1)
		go func() {
			defer g.Alive.Done()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				g.Error(err, "metrics listen=%s", config.Metrics.Listen)
				g.Alive.Stop()
			}
		}()
	}

	g.Start()
	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("run: started target=%s:%d", config.Target.Host, config.Target.Port)

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigch)
	select {
	case sig := <-sigch:
		g.Log.Infof("run: signal=%v stopping", sig)
	case <-g.Alive.StopChan():
	}

	subcmd.SdNotify(daemon.SdNotifyStopping)
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			g.Log.Error(errors.Annotate(err, "metrics shutdown"))
		}
	}
	g.Stop()
	g.Alive.Wait()
	return nil
}

func NewMetricsServer(g *state.Global, listen string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g.Registry, promhttp.HandlerOpts{
		ErrorLog: g.Log,
	}))
	return &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
