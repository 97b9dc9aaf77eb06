// Command corecache-server runs the cache server: parses CLI flags into a
// config.Config, wires up logging and storage, and runs one worker per
// logical CPU (or --workers) until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/ehrlich-b/corecache"
	"github.com/ehrlich-b/corecache/internal/config"
	"github.com/ehrlich-b/corecache/internal/logging"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "corecache-server: %v\n", err)
		os.Exit(2)
	}

	logConfig := logging.DefaultConfig()
	logConfig.Level = levelFor(cfg.LogLevel)
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := corecache.New(cfg, &corecache.Options{Context: ctx, Logger: logger})
	if err != nil {
		logger.Error("failed to build server", "err", err)
		os.Exit(1)
	}

	go dumpStacksOnSIGUSR1(logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", "signal", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown did not complete cleanly", "err", err)
		}
	}()

	fmt.Printf("corecache listening on %s (protocol=%s runtime=%s workers=%d)\n",
		cfg.Listen, cfg.Protocol, cfg.Runtime, server.NumWorkers())

	if err := server.Run(); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
	logger.Info("corecache stopped")
}

func levelFor(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// dumpStacksOnSIGUSR1 writes every goroutine's stack to stderr and a
// timestamped file, for diagnosing a stuck worker in production without
// restarting the process.
func dumpStacksOnSIGUSR1(logger *logging.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	for range ch {
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])

		filename := fmt.Sprintf("corecache-stacks-%d.txt", time.Now().Unix())
		if f, err := os.Create(filename); err == nil {
			fmt.Fprintf(f, "stack dump at %s, pid %d\n\n", time.Now().Format(time.RFC3339), os.Getpid())
			f.Write(buf[:n])
			fmt.Fprintf(f, "\n=== GOROUTINE PROFILE ===\n")
			pprof.Lookup("goroutine").WriteTo(f, 2)
			f.Close()
			logger.Info("stack dump written", "file", filename)
		}
	}
}
