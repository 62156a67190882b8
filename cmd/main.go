package main

import (
	"bufio"
	"chat-sync/auth"
	"chat-sync/internal"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the client, then reads commands until quit, EOF or a signal.
// Every deferred cleanup runs before main exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	config, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB) and search index (Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}

	// 3. Components, from the store up to the engine
	app, err := newApp(log, db, writer, config, auth.DefaultHasher)
	if err != nil {
		_ = writer.Close()
		return err
	}
	defer app.close()

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	app.startReporter(ctx, config.MetricInterval)

	// 5. Shell, restoring the saved session
	sh := newShell(app, os.Stdout, config.SessionFilepath, config.SearchLimit)
	sh.start(ctx)
	defer sh.stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println(color.Bold.Sprint("chat-sync, type help"))
	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down gracefully...")
			return nil
		case line, ok := <-lines:
			if !ok {
				stop()
				return nil
			}
			quit, err := sh.execute(ctx, line)
			if err != nil {
				fmt.Println(color.Red.Sprint(err))
			}
			if quit {
				// the reporter runs until ctx is done, the store waits for it
				stop()
				return nil
			}
		}
	}
}
