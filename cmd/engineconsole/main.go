// Command engineconsole runs an enginehost.Host with an interactive
// operator console, the same shape as the teacher's server/console but
// against a fixed, built-in command set instead of a pluggable registry.
//
// The console is the host's sole driver: every tick happens inside the
// "step" command, on the console's own goroutine, so nothing ever touches
// Host concurrently with Host.Step and none of its state needs its own
// locking.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rivenoak/engine/enginehost"
	"github.com/rivenoak/engine/gridgoblin"
)

func main() {
	configPath := flag.String("config", "engine.toml", "path to the host's TOML config")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(*configPath, log); err != nil {
		log.Error("engineconsole exiting", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, log *slog.Logger) error {
	uc, err := enginehost.LoadUserConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg, err := uc.Config(log)
	if err != nil {
		return fmt.Errorf("convert config: %w", err)
	}

	host, err := enginehost.NewHost(cfg, gridgoblin.NopBinder{}, nil)
	if err != nil {
		return fmt.Errorf("start host: %w", err)
	}
	defer host.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	console := New(host, log)
	console.Run(ctx)
	return nil
}
