// Command kraken-ticker ingests the Kraken WebSocket v2 ticker channel
// (Level 1) for one or more symbols and persists it as CSV, per §6.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/gw/kraken-feed/internal/cliutil"
	"github.com/gw/kraken-feed/internal/config"
	"github.com/gw/kraken-feed/internal/ingest"
	"github.com/gw/kraken-feed/internal/model"
	"github.com/gw/kraken-feed/internal/parser"
	"github.com/gw/kraken-feed/internal/writer"
)

func main() {
	app := &cli.App{
		Name:  "kraken-ticker",
		Usage: "ingest the Kraken v2 ticker (L1) channel to CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pairs", Aliases: []string{"p"}, Required: true, Usage: "comma list, text file[:N], or csv file:<col>[:N]"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "ticker.csv", Usage: "output CSV file"},
			&cli.IntFlag{Name: "flush-interval", Aliases: []string{"f"}, Value: 30, Usage: "flush interval in seconds, 0 disables"},
			&cli.Uint64Flag{Name: "memory-threshold", Aliases: []string{"m"}, Value: 10 * 1024 * 1024, Usage: "memory threshold in bytes, 0 disables"},
			&cli.BoolFlag{Name: "hourly", Usage: "rotate output hourly (UTC)"},
			&cli.BoolFlag{Name: "daily", Usage: "rotate output daily (UTC)"},
			&cli.BoolFlag{Name: "separate-files", Usage: "write one file per symbol"},
			&cli.BoolFlag{Name: "compress-rotated", Usage: "gzip segment files once rotated away"},
			&cli.BoolFlag{Name: "fast-parser", Usage: "use the jsonparser-based zero-copy backend"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "kraken-ticker: "+err.Error())
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cliutil.SetupLogging(c.Bool("debug"))
	env := config.Load()

	symbols, err := cliutil.ParsePairs(c.String("pairs"))
	if err != nil {
		return fmt.Errorf("pairs: %w", err)
	}

	mode, err := cliutil.ResolveSegmentMode(c.Bool("hourly"), c.Bool("daily"))
	if err != nil {
		return err
	}
	outputPath := cliutil.ResolveOutputPath(env.OutputDir, c.String("output"))
	cfg := cliutil.BuildFlushConfig(outputPath, c.Int("flush-interval"), c.Uint64("memory-threshold"), mode, c.Bool("compress-rotated"))

	var w ingest.RecordWriter[model.TickerRecord]
	if c.Bool("separate-files") {
		w = writer.NewMultiCSVWriter(cfg)
	} else {
		cw, err := writer.NewCSVWriter(cfg)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		w = cw
	}

	p := selectParser(c.Bool("fast-parser"))
	slog.Info("kraken-ticker starting", "symbols", symbols, "output", outputPath, "parser", p.Name())

	client := ingest.NewTickerClient(env.WSURL, symbols, p, w)

	client.SetConnectionCallback(func(connected bool, err error) {
		if connected {
			slog.Info("connected")
			return
		}
		if err != nil {
			slog.Warn("disconnected", "err", err)
		}
	})
	client.SetErrorCallback(func(err error) { slog.Warn("ingest error", "err", err) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	client.Start()
	<-ctx.Done()

	client.Stop()
	slog.Info("shutdown complete", "records", len(client.GetHistory()))
	return nil
}

func selectParser(fast bool) parser.Parser {
	if fast {
		return parser.NewFast()
	}
	return parser.NewReflective()
}
