package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"skoll/internal/common"
	"skoll/internal/logging"
	skollNet "skoll/internal/net"
)

func main() {
	// 1. CLI Parameter Parsing
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'modify', 'snapshot']")
	tickStr := flag.String("tick", "0.01", "Instrument tick size")
	wait := flag.Duration("wait", 0, "How long to listen for reports, 0 until interrupted")

	// Order Parameters
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit', 'market', 'ioc', 'fok' or 'postonly'")
	priceStr := flag.String("price", "100.00", "Limit price")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	// Cancel / Modify Parameters
	id := flag.Uint64("id", 0, "Id of the order to cancel or modify")
	depth := flag.Uint("depth", 10, "Snapshot depth")

	flag.Parse()

	if err := logging.Setup("info", true); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	tick, err := common.NewTickSize(*tickStr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid tick size")
	}

	// Connect to Server
	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatal().Err(err).Str("server", *serverAddr).Msg("failed to connect to server")
	}
	defer conn.Close()
	log.Info().Str("server", *serverAddr).Msg("connected")

	// Start Listening for Reports (Async)
	done := make(chan struct{})
	go readReports(conn, tick, done)

	ref := uint64(time.Now().UnixNano())
	switch strings.ToLower(*action) {
	case "place":
		side, err := parseSide(*sideStr)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid side")
		}
		orderType, err := parseOrderType(*typeStr)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid order type")
		}
		var price common.Price
		if orderType != common.MarketOrder {
			if price, err = tick.ParsePrice(*priceStr); err != nil {
				log.Fatal().Err(err).Msg("invalid price")
			}
		}
		for _, q := range parseQuantities(*qtyStr) {
			ref++
			send(conn, skollNet.EncodeNewOrder(skollNet.NewOrderMessage{
				ClientRef: ref,
				OrderType: orderType,
				Side:      side,
				Price:     price,
				Quantity:  q,
			}))
			log.Info().
				Uint64("ref", ref).
				Str("side", side.String()).
				Str("type", orderType.String()).
				Int64("qty", int64(q)).
				Str("price", tick.FormatPrice(price)).
				Msg("sent order")
		}

	case "cancel":
		requireID(*id)
		send(conn, skollNet.EncodeCancelOrder(skollNet.CancelOrderMessage{ClientRef: ref, OrderID: common.OrderID(*id)}))
		log.Info().Uint64("id", *id).Msg("sent cancel")

	case "modify":
		requireID(*id)
		msg := skollNet.ModifyOrderMessage{ClientRef: ref, OrderID: common.OrderID(*id)}
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "price":
				price, err := tick.ParsePrice(*priceStr)
				if err != nil {
					log.Fatal().Err(err).Msg("invalid price")
				}
				msg.Flags |= skollNet.ModifyPrice
				msg.Price = price
			case "qty":
				quantities := parseQuantities(*qtyStr)
				if len(quantities) != 1 {
					log.Fatal().Msg("modify takes a single quantity")
				}
				msg.Flags |= skollNet.ModifyQuantity
				msg.Quantity = quantities[0]
			}
		})
		if msg.Flags == 0 {
			log.Fatal().Msg("modify needs -price and/or -qty")
		}
		send(conn, skollNet.EncodeModifyOrder(msg))
		log.Info().Uint64("id", *id).Msg("sent modify")

	case "snapshot":
		send(conn, skollNet.EncodeSnapshotRequest(skollNet.SnapshotRequestMessage{ClientRef: ref, Depth: uint16(*depth)}))

	default:
		log.Fatal().Str("action", *action).Msg("unknown action")
	}

	// Keep the client alive to receive execution reports
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *wait)
		defer cancel()
	}
	log.Info().Msg("listening for reports... (Press Ctrl+C to exit)")
	select {
	case <-ctx.Done():
	case <-done:
	}
}

func requireID(id uint64) {
	if id == 0 {
		log.Fatal().Msg("-id is required")
	}
}

func send(conn net.Conn, frame []byte) {
	if _, err := conn.Write(frame); err != nil {
		log.Fatal().Err(err).Msg("failed to send request")
	}
}

func parseSide(s string) (common.Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return common.Buy, nil
	case "sell":
		return common.Sell, nil
	}
	return 0, fmt.Errorf("%w: %q", common.ErrInvalidSide, s)
}

func parseOrderType(s string) (common.OrderType, error) {
	switch strings.ToLower(s) {
	case "limit":
		return common.LimitOrder, nil
	case "market":
		return common.MarketOrder, nil
	case "ioc":
		return common.ImmediateOrCancel, nil
	case "fok":
		return common.FillOrKill, nil
	case "postonly":
		return common.PostOnly, nil
	}
	return 0, fmt.Errorf("%w: %q", common.ErrInvalidOrderType, s)
}

// parseQuantities splits a comma-separated string into quantities
func parseQuantities(input string) []common.Quantity {
	var result []common.Quantity
	for _, p := range strings.Split(input, ",") {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseInt(p, 10, 64); err == nil {
			result = append(result, common.Quantity(val))
		} else {
			log.Warn().Str("qty", p).Msg("invalid quantity, skipping")
		}
	}
	return result
}

// readReports continuously reads and prints reports from the server
func readReports(conn net.Conn, tick common.TickSize, done chan<- struct{}) {
	defer close(done)
	for {
		payload, err := skollNet.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Error().Err(err).Msg("connection lost")
			}
			return
		}
		report, err := skollNet.ParseReport(payload)
		if err != nil {
			log.Error().Err(err).Msg("unreadable report")
			continue
		}

		switch r := report.(type) {
		case skollNet.AckReport:
			log.Info().
				Uint64("ref", r.ClientRef).
				Uint64("id", uint64(r.OrderID)).
				Str("status", r.Status.String()).
				Str("price", tick.FormatPrice(r.Price)).
				Int64("filled", int64(r.Filled)).
				Int64("remaining", int64(r.Remaining)).
				Msg("[ACK]")
		case skollNet.ExecutionReport:
			liquidity := "maker"
			if r.Liquidity == skollNet.Taker {
				liquidity = "taker"
			}
			log.Info().
				Uint64("id", uint64(r.OrderID)).
				Str("side", r.Side.String()).
				Int64("qty", int64(r.Quantity)).
				Str("price", tick.FormatPrice(r.Price)).
				Str("liquidity", liquidity).
				Msg("[EXECUTION]")
		case skollNet.ErrorReport:
			log.Warn().Uint64("ref", r.ClientRef).Str("error", r.Err).Msg("[SERVER ERROR]")
		case skollNet.SnapshotReport:
			fmt.Printf("\n%-12s %-10s | %-12s %-10s\n", "BID", "QTY", "ASK", "QTY")
			for i := 0; i < max(len(r.Bids), len(r.Asks)); i++ {
				bid, bidQty, ask, askQty := "", "", "", ""
				if i < len(r.Bids) {
					bid, bidQty = tick.FormatPrice(r.Bids[i].Price), strconv.FormatInt(int64(r.Bids[i].Quantity), 10)
				}
				if i < len(r.Asks) {
					ask, askQty = tick.FormatPrice(r.Asks[i].Price), strconv.FormatInt(int64(r.Asks[i].Quantity), 10)
				}
				fmt.Printf("%-12s %-10s | %-12s %-10s\n", bid, bidQty, ask, askQty)
			}
		}
	}
}
