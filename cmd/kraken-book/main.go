// Command kraken-book ingests the Kraken WebSocket v2 book channel
// (Level 2, aggregated) for one or more symbols, maintains live order-book
// state, and persists it as JSONL, per §6.
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
		Name:  "kraken-book",
		Usage: "ingest the Kraken v2 book (L2) channel to JSONL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pairs", Aliases: []string{"p"}, Required: true, Usage: "comma list, text file[:N], or csv file:<col>[:N]"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "book.jsonl", Usage: "output JSONL file"},
			&cli.IntFlag{Name: "flush-interval", Aliases: []string{"f"}, Value: 30, Usage: "flush interval in seconds, 0 disables"},
			&cli.Uint64Flag{Name: "memory-threshold", Aliases: []string{"m"}, Value: 10 * 1024 * 1024, Usage: "memory threshold in bytes, 0 disables"},
			&cli.BoolFlag{Name: "hourly", Usage: "rotate output hourly (UTC)"},
			&cli.BoolFlag{Name: "daily", Usage: "rotate output daily (UTC)"},
			&cli.BoolFlag{Name: "separate-files", Usage: "write one file per symbol"},
			&cli.BoolFlag{Name: "compress-rotated", Usage: "gzip segment files once rotated away"},
			&cli.IntFlag{Name: "depth", Aliases: []string{"d"}, Value: 10, Usage: "book depth: 10, 25, 100, 500, or 1000"},
			&cli.BoolFlag{Name: "skip-validation", Usage: "do not log checksum-mismatch warnings"},
			&cli.BoolFlag{Name: "strict", Usage: "treat a checksum mismatch as fatal"},
			&cli.BoolFlag{Name: "fast-parser", Usage: "use the jsonparser-based zero-copy backend"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "kraken-book: "+err.Error())
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

	depth := c.Int("depth")
	if !parser.ValidDepth(parser.ChannelBook, depth) {
		return fmt.Errorf("invalid depth %d for book channel: must be one of 10, 25, 100, 500, 1000", depth)
	}

	mode, err := cliutil.ResolveSegmentMode(c.Bool("hourly"), c.Bool("daily"))
	if err != nil {
		return err
	}
	outputPath := cliutil.ResolveOutputPath(env.OutputDir, c.String("output"))
	cfg := cliutil.BuildFlushConfig(outputPath, c.Int("flush-interval"), c.Uint64("memory-threshold"), mode, c.Bool("compress-rotated"))

	var w ingest.RecordWriter[model.OrderBookRecord]
	if c.Bool("separate-files") {
		w = writer.NewMultiL2Writer(cfg)
	} else {
		jw, err := writer.NewL2Writer(cfg)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		w = jw
	}

	p := selectParser(c.Bool("fast-parser"))
	strict := c.Bool("strict")
	skipValidation := c.Bool("skip-validation")
	slog.Info("kraken-book starting", "symbols", symbols, "depth", depth, "output", outputPath, "parser", p.Name(), "strict", strict)

	client := ingest.NewL2Client(env.WSURL, symbols, depth, strict, p, w)
	if !skipValidation {
		client.ChecksumWarning = func(symbol string, err error) {
			slog.Warn("checksum mismatch", "symbol", symbol, "err", err)
		}
	}

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
