package core

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"gosock/internal/metrics"
	"gosock/internal/server"
	"gosock/util"
)

// ServeMode runs the gosock server and, when MetricsAddr is set, the
// Prometheus endpoint beside it.  Either failing stops both.
type ServeMode struct {
	Options     server.Options
	Handler     server.Handler // nil serves server.DefaultRouter
	MetricsAddr string
	Metrics     *metrics.Collector
	Logger      *util.Logger

	// OnListen, if set, is called with the bound address once the
	// listener is up.
	OnListen func(net.Addr)
}

// Run binds the listener and serves until ctx is cancelled.
func (m *ServeMode) Run(ctx context.Context) error {
	srv := server.New(m.Options, m.Handler, m.Logger, m.Metrics)
	if err := srv.Listen(); err != nil {
		return err
	}
	if m.OnListen != nil {
		m.OnListen(srv.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)
	if m.MetricsAddr != "" {
		g.Go(func() error {
			m.Logger.Info("metrics on http://%s/metrics", m.MetricsAddr)
			if err := m.Metrics.Serve(gctx, m.MetricsAddr); err != nil {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error { return srv.Serve(gctx) })
	return g.Wait()
}
