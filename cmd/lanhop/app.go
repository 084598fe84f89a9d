package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lanhop/pkg/config"
	"lanhop/pkg/events"
	"lanhop/pkg/node"
	"lanhop/pkg/observability"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

var cli app

// setup loads configuration and installs the global logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	a.cfg, a.logger = cfg, logger
	zap.L().Debug("effective configuration", zap.String("command", cmd.Name()), zap.Any("config", cfg))
	return nil
}

func (a *app) teardown(*cobra.Command, []string) {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// serve runs a node until interrupted, printing every event.
func serve(ctx context.Context, cfg *config.Config) error {
	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	defer n.Close()

	port, err := n.Start(ctx)
	if err != nil {
		return err
	}
	addr, _ := n.Address()
	zap.L().Info("lanhop started", zap.String("version", version), zap.String("address", addr), zap.Int("port", port))
	fmt.Printf("listening as %s on port %d\n", addr, port)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("stopping")
			return nil
		case ev, ok := <-n.Events().C():
			if !ok {
				return nil
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev events.Event) {
	ts := ev.Time.Format("15:04:05")
	switch ev.Kind {
	case events.Received:
		e := ev.Envelope
		switch {
		case e.Undecryptable:
			fmt.Printf("%s %s %q from %s (%d bytes, different code)\n", ts, e.Kind, e.Name, e.SenderAddress, e.FileSize)
		case e.Kind.Binary():
			fmt.Printf("%s %s %q from %s (%d bytes)\n", ts, e.Kind, e.Name, e.SenderAddress, len(e.Payload))
		default:
			fmt.Printf("%s %s from %s: %s\n", ts, e.Kind, e.SenderAddress, e.Text)
		}
	case events.Error:
		fmt.Printf("%s error: %s: %v\n", ts, ev.Message, ev.Err)
	default:
		fmt.Printf("%s %s\n", ts, ev.Message)
	}
}
