// Command agoradump inspects a simulation sink database: recent settled
// trades and per-good volume totals, or an HTTP inspection API with
// -serve.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/talgya/agora/internal/api"
	"github.com/talgya/agora/internal/persistence"
)

func main() {
	dbPath := flag.String("db", "data/agora.db", "path to the sink database")
	limit := flag.Int("limit", 20, "number of recent trades to show")
	serve := flag.String("serve", "", "serve the database over HTTP on this address instead of printing")
	flag.Parse()

	level := slog.LevelWarn
	if *serve != "" {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	conn, err := persistence.OpenReadOnly(*dbPath)
	if err != nil {
		slog.Error("open failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if *serve != "" {
		srv := &api.Server{DB: conn, Addr: *serve}
		srv.Start()
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		if err := srv.Stop(); err != nil {
			slog.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
		return
	}

	vols, err := persistence.Volumes(conn)
	if err != nil {
		slog.Error("volume query failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("traded volume by good:")
	for _, v := range vols {
		fmt.Printf("  %-12s %12s over %s trades\n",
			v.Good,
			humanize.CommafWithDigits(v.Quantity, 2),
			humanize.Comma(int64(v.Trades)),
		)
	}

	trades, err := persistence.RecentTrades(conn, *limit)
	if err != nil {
		slog.Error("trade query failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("\nlast %d trades:\n", len(trades))
	for _, t := range trades {
		fmt.Printf("  round %4d  %-12s %s -> %s  %s @ %s\n",
			t.Round, t.Good, t.Seller, t.Buyer,
			humanize.CommafWithDigits(t.Quantity, 3),
			humanize.CommafWithDigits(t.Price, 3),
		)
	}
}
