package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"skoll/internal/common"
	"skoll/internal/engine"
	"skoll/internal/logging"
	"skoll/internal/replay"
)

func main() {
	file := flag.String("file", "", "Order file to replay; generated when empty")
	n := flag.Int("n", 500_000, "Resting asks (and matching bids) in the generated workload")
	out := flag.String("write", "", "Write the generated workload to this file first")
	tickStr := flag.String("tick", "1", "Tick size prices are expressed in")
	paranoid := flag.Bool("paranoid", false, "Check book invariants after every order")
	flag.Parse()

	if err := logging.Setup("info", true); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	tick, err := common.NewTickSize(*tickStr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid tick size")
	}

	records, err := load(*file, *n, *out)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load orders")
	}

	result, err := replay.Run(records, tick, engine.WithParanoid(*paranoid))
	if err != nil {
		log.Fatal().Err(err).Msg("replay failed")
	}

	log.Info().
		Int("orders", result.Orders).
		Int("rejected", result.Rejected).
		Int("trades", result.Trades).
		Int64("volume", int64(result.Volume)).
		Msg("replay finished")
	log.Info().
		Dur("total", result.Total).
		Dur("avg", result.Average).
		Dur("max", result.Max).
		Msg("time to place orders")
	log.Info().
		Int("bid_levels", result.BidLevels).
		Int("bid_orders", result.BidOrders).
		Int("ask_levels", result.AskLevels).
		Int("ask_orders", result.AskOrders).
		Msg("book")
	for _, level := range result.Book.Asks {
		log.Info().Str("price", tick.FormatPrice(level.Price)).Int64("qty", int64(level.Quantity)).Msg("ask")
	}
	for _, level := range result.Book.Bids {
		log.Info().Str("price", tick.FormatPrice(level.Price)).Int64("qty", int64(level.Quantity)).Msg("bid")
	}
}

func load(path string, n int, out string) ([]replay.Record, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		start := time.Now()
		records, err := replay.Read(f)
		log.Info().Dur("took", time.Since(start)).Int("orders", len(records)).Msg("read order file")
		return records, err
	}

	records := replay.Generate(n)
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		start := time.Now()
		if err := replay.Write(f, records); err != nil {
			return nil, err
		}
		log.Info().Dur("took", time.Since(start)).Str("file", out).Msg("wrote order file")
	}
	return records, nil
}
