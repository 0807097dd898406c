package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"skoll/internal/config"
	"skoll/internal/engine"
	"skoll/internal/journal"
	"skoll/internal/logging"
	"skoll/internal/metrics"
	"skoll/internal/net"
	"skoll/internal/sink"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	opts := cfg.EngineOptions()
	reporters := sink.Multi{sink.NewLogReporter(log.Logger)}

	if cfg.Kafka.Enabled {
		kafka := sink.NewKafkaReporter(cfg.Kafka.Brokers, cfg.Kafka.TradeTopic, cfg.Kafka.OrderTopic)
		defer closeQuietly("kafka", kafka.Close)
		reporters = append(reporters, kafka)
	}
	if cfg.Journal.Dir != "" {
		j, err := journal.Open(cfg.Journal.Dir, journal.WithSync(cfg.Journal.Sync))
		if err != nil {
			return err
		}
		defer closeQuietly("journal", j.Close)

		// Carry on numbering after whatever the journal already holds.
		if opts.Sequences, err = j.Sequences(); err != nil {
			return err
		}
		event := log.Info().
			Str("dir", cfg.Journal.Dir).
			Uint64("last_order_id", opts.Sequences.OrderID).
			Uint64("last_trade", opts.Sequences.Trade)
		last, ok, err := j.LastTrade()
		if err != nil {
			return err
		}
		if ok {
			event = event.Str("last_price", cfg.TickSize().FormatPrice(last.Price))
		}
		event.Msg("journal opened")
		reporters = append(reporters, j)
	}

	// Setup the matching engine and everything listening to it.
	eng := engine.New(opts, reporters)

	// Setup the TCP server in front of it.
	srv := net.New(cfg.Server.Address, cfg.Server.Port, eng, cfg.Server.Workers, cfg.Server.MaxSessions)
	eng.SetReporter(srv)

	eng.Start(ctx)
	if err := srv.Start(ctx); err != nil {
		eng.Stop()
		return errors.Join(err, eng.Wait())
	}
	log.Info().
		Str("instrument", cfg.Instrument.Symbol).
		Str("tick", cfg.Instrument.TickSize).
		Msg("exchange ready")

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		if err := metrics.Register(reg, eng, srv); err != nil {
			return err
		}
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address, reg); err != nil {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	// Block until asked to stop, then drain the gateway before the engine
	// so every event still reaches the reporters.
	<-ctx.Done()
	srv.Shutdown()
	srvErr := srv.Wait()
	eng.Stop()
	engErr := eng.Wait()
	if errors.Is(engErr, context.Canceled) {
		engErr = nil
	}
	log.Info().Interface("stats", eng.Stats()).Msg("exchange stopped")
	return errors.Join(srvErr, engErr)
}

func closeQuietly(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Error().Err(err).Str("component", name).Msg("close failed")
	}
}
