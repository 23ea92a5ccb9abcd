package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"corsserve/config"
	"corsserve/logger"
	"corsserve/server"

	"github.com/anacrolix/tagflag"
)

const usage = `Usage: corsserve [port]

Serves the current directory on http://localhost:<port> (default 8000)
with permissive CORS headers and caching disabled.`

type args struct {
	tagflag.StartPos
	Port string `arity:"?" help:"TCP port to listen on, default 8000"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit status: 0 after a clean shutdown, 1 when the
// arguments are invalid or the port cannot be bound.
func run(argv []string) int {
	log := logger.GetLogger()

	var a args
	if err := tagflag.ParseErr(&a, argv); err != nil {
		if errors.Is(err, tagflag.ErrDefaultHelp) {
			fmt.Println(usage)
			return 0
		}
		log.Error("Invalid arguments", map[string]interface{}{
			"error": err.Error(),
		})
		return 1
	}

	cfg, err := config.FromArgs(a.Port)
	if err != nil {
		log.Error("Invalid configuration", map[string]interface{}{
			"error": err.Error(),
			"port":  a.Port,
		})
		return 1
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("Received shutdown signal", map[string]interface{}{
				"signal": sig.String(),
			})
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := server.New(cfg)
	if err := srv.Run(ctx); err != nil {
		log.Error("Server error", map[string]interface{}{
			"error": err.Error(),
			"addr":  cfg.Addr(),
		})
		return 1
	}

	log.Info("Shutdown complete", nil)
	return 0
}
