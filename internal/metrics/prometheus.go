package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gosock"

// ── Prometheus export ────────────────────────────────────────────────

// Collectors returns Prometheus views over c.  They read the atomics
// at scrape time, so the event loop never touches Prometheus types.
func (c *Collector) Collectors() []prometheus.Collector {
	counter := func(name, help string, f func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help,
		}, func() float64 { return float64(f()) })
	}
	gauge := func(name, help string, f func() int64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help,
		}, func() float64 { return float64(f()) })
	}

	return []prometheus.Collector{
		gauge("connections_active", "Clients currently holding a pool slot.", c.ActiveConnections),
		counter("connections_total", "Clients accepted since start.", c.TotalConnections),
		counter("connections_rejected_total", "Clients refused at accept time.", c.RejectedConnections),
		counter("connections_dead_total", "Clients dropped for heartbeat timeout.", c.DeadConnections),
		counter("received_bytes_total", "Bytes read from clients.", c.TotalBytesIn),
		counter("sent_bytes_total", "Bytes written to clients.", c.TotalBytesOut),
		counter("writes_total", "Socket writes issued by flushes.", c.Writes),
		counter("received_messages_total", "Messages decoded from clients.", c.MessagesIn),
		counter("sent_messages_total", "Messages queued to clients.", c.MessagesOut),
		counter("timed_flushes_total", "Flushes triggered by the send-age deadline.", c.TimedFlushes),
		counter("accept_pauses_total", "Times the listener was parked after accept failures.", c.AcceptPauses),
		counter("errors_total", "Errors recorded by the server.", c.ErrorCount),
	}
}

// Registry returns a registry holding c's metrics plus the standard Go
// runtime and process collectors.
func (c *Collector) Registry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	all := append(c.Collectors(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, col := range all {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Handler serves /metrics in the Prometheus text format and /stats as
// the JSON snapshot.
func (c *Collector) Handler() (http.Handler, error) {
	reg, err := c.Registry()
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, c.JSON()) //nolint:errcheck
	})
	return mux, nil
}

// Serve runs the metrics endpoint on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	h, err := c.Handler()
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
