// Command kvs-server runs the storage engine behind a TCP listener.
// Argument parsing stays on the standard library's flag package: it
// carries no domain behavior, so there is nothing here for a
// third-party CLI framework to usefully replace.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dc0d/onexit"
	"go.uber.org/zap"

	"github.com/wanjiru/kvs/internal/server"
)

func main() {
	var (
		addr      = flag.String("addr", server.DefaultAddr, "address to bind (host:port)")
		dir       = flag.String("dir", ".", "directory to store data in")
		engine    = flag.String("engine", "", "engine backend to use (kvs or sled); defaults to whatever the directory already uses")
		verbose   = flag.Bool("verbose", false, "enable debug logging")
		threshold = flag.Uint64("compaction-threshold", 0, "uncompacted-byte watermark that triggers compaction; 0 uses the engine default")
	)
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "kvs-server: failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	srv, err := server.Open(server.Config{
		Addr:                *addr,
		Dir:                 *dir,
		EngineName:          *engine,
		CompactionThreshold: *threshold,
	})
	if err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	onexit.Register(func() {
		if err := srv.Close(); err != nil {
			logger.Warn("error while shutting down", zap.Error(err))
		}
	})

	go waitForSignal(logger)

	logger.Info("kvs-server ready", zap.String("addr", srv.Addr()), zap.String("dir", *dir))

	if err := srv.Serve(); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func waitForSignal(logger *zap.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	sig := <-sigs
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	onexit.Exit(0)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
