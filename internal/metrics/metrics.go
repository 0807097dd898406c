package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"skoll/internal/engine"
)

const namespace = "skoll"

// StatsSource is read on every scrape.
type StatsSource interface {
	Stats() engine.Stats
}

// GatewaySource reports connected gateway clients and how many of them
// wait for a worker.
type GatewaySource interface {
	Sessions() int
	Pending() int
}

// Register adds the engine collectors, and the gateway gauges when gateway
// is not nil, to reg.
func Register(reg prometheus.Registerer, stats StatsSource, gateway GatewaySource) error {
	counter := func(name, help string, read func(engine.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(stats.Stats())) })
	}

	collectors := []prometheus.Collector{
		counter("requests_total", "Requests applied to the book.", func(s engine.Stats) uint64 { return s.Requests }),
		counter("trades_total", "Trades executed.", func(s engine.Stats) uint64 { return s.Trades }),
		counter("rejected_total", "Requests that failed.", func(s engine.Stats) uint64 { return s.Rejected }),
		counter("queue_full_total", "Requests refused because the queue was full.", func(s engine.Stats) uint64 { return s.QueueFull }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "queue_depth",
			Help:      "Requests waiting for the matcher.",
		}, func() float64 { return float64(stats.Stats().QueueDepth) }),
	}
	if gateway != nil {
		collectors = append(collectors,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "sessions",
				Help:      "Connected clients.",
			}, func() float64 { return float64(gateway.Sessions()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "pending_sessions",
				Help:      "Sessions waiting for a worker.",
			}, func() float64 { return float64(gateway.Pending()) }),
		)
	}

	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Serve exposes reg on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("metrics server shutdown")
		}
	}()

	log.Info().Str("address", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
