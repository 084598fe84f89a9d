package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lanhop/pkg/address"
	"lanhop/pkg/capture"
	"lanhop/pkg/node"
	"lanhop/pkg/protocol"
	"lanhop/pkg/transfer"
)

var rootCmd = &cobra.Command{
	Use:               "lanhop",
	Short:             "Send files, text and screen streams to peers on the local network",
	SilenceUsage:      true,
	PersistentPreRunE: cli.setup,
	PersistentPostRun: cli.teardown,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of lanhop",
	// skip config loading
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("lanhop " + version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive transfers until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return serve(ctx, cli.cfg)
	},
}

var sendFlags struct {
	text       string
	link       string
	files      []string
	collection bool
	passphrase string
}

var sendCmd = &cobra.Command{
	Use:   "send TARGET...",
	Short: "Send a file, text or link to one or more word addresses",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, targets []string) error {
		if sendFlags.passphrase != "" {
			cli.cfg.Obfuscation.Enabled, cli.cfg.Obfuscation.Passphrase = true, sendFlags.passphrase
		}
		n, err := node.New(cli.cfg)
		if err != nil {
			return err
		}
		defer n.Close()
		ctx, cancel := signalContext()
		defer cancel()

		if sendFlags.collection {
			return sendCollection(ctx, n, targets)
		}
		env, err := buildEnvelope()
		if err != nil {
			return err
		}
		ok, err := n.SendToMany(ctx, targets, env)
		fmt.Printf("sent %s to %d of %d target(s)\n", env.Kind, ok, len(targets))
		return err
	},
}

func buildEnvelope() (protocol.Envelope, error) {
	switch {
	case sendFlags.text != "":
		return protocol.NewText(sendFlags.text), nil
	case sendFlags.link != "":
		return protocol.NewLink(sendFlags.link), nil
	case len(sendFlags.files) == 1:
		data, err := os.ReadFile(sendFlags.files[0])
		if err != nil {
			return protocol.Envelope{}, err
		}
		return protocol.NewFile(filepath.Base(sendFlags.files[0]), data), nil
	case len(sendFlags.files) > 1:
		return protocol.Envelope{}, errors.New("several files need --collection")
	}
	return protocol.Envelope{}, errors.New("nothing to send: use --text, --link or --file")
}

func sendCollection(ctx context.Context, n *node.Node, targets []string) error {
	if len(sendFlags.files) == 0 {
		return errors.New("--collection needs at least one --file")
	}
	files := make([]transfer.File, 0, len(sendFlags.files))
	for _, p := range sendFlags.files {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, transfer.File{Name: filepath.Base(p), Data: data})
	}
	var errs []error
	for _, t := range targets {
		id, sent, err := n.SendCollection(ctx, t, files)
		fmt.Printf("%s: collection %s, %d of %d file(s)\n", t, id, sent, len(files))
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var streamFlags struct {
	source   string
	interval time.Duration
	duration time.Duration
}

var streamCmd = &cobra.Command{
	Use:   "stream TARGET",
	Short: "Stream an image source to a peer at a fixed interval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := streamFlags.source
		if src == "" {
			src = cli.cfg.Stream.Source
		}
		if src == "" {
			return errors.New("no image source: set --source or stream.source")
		}
		n, err := node.New(cli.cfg, node.WithCapture(capture.FileSource{Path: src}))
		if err != nil {
			return err
		}
		defer n.Close()

		ctx, cancel := signalContext()
		defer cancel()
		if streamFlags.duration > 0 {
			ctx, cancel = context.WithTimeout(ctx, streamFlags.duration)
			defer cancel()
		}
		id, err := n.StartStream(ctx, args[0], streamFlags.interval)
		if err != nil {
			return err
		}
		fmt.Printf("streaming %s to %s as %s\n", src, args[0], id)
		<-ctx.Done()
		n.StopStream()
		return nil
	},
}

var addrCmd = &cobra.Command{
	Use:   "addr [ADDRESS|IP]...",
	Short: "Show the local word address or translate addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			a, err := address.Local(nil)
			if err != nil {
				return err
			}
			ip, _ := address.LocalIPv4()
			fmt.Printf("%s (%s)\n", a, ip)
			return nil
		}
		local, err := address.LocalIPv4()
		if err != nil {
			return err
		}
		for _, arg := range args {
			if ip := parseIPv4(arg); ip != nil {
				fmt.Printf("%s -> %s\n", arg, address.FromIP(ip))
				continue
			}
			a := address.Parse(arg)
			if !a.Valid() {
				fmt.Printf("%s: not a word address\n", arg)
				continue
			}
			ip, err := a.Resolve(local)
			if err != nil {
				fmt.Printf("%s: %v\n", arg, err)
				continue
			}
			fmt.Printf("%s -> %s\n", a, ip)
		}
		return nil
	},
}

var peersWait time.Duration

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Listen for presence beacons and list the peers heard",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli.cfg.Discovery.Enabled = true
		n, err := node.New(cli.cfg)
		if err != nil {
			return err
		}
		defer n.Close()
		ctx, cancel := signalContext()
		defer cancel()
		if _, err := n.Start(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
		case <-time.After(peersWait):
		}
		peers := n.Discovery().Peers()
		if len(peers) == 0 {
			fmt.Println("no peers heard")
		}
		for _, p := range peers {
			fmt.Printf("%-20s %-32s %s:%d\n", p.Name, p.Address, p.IP, p.Port)
		}
		return nil
	},
}

func parseIPv4(s string) net.IP {
	if strings.Count(s, ".") != 3 {
		return nil
	}
	return net.ParseIP(s).To4()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cli.configPath, "config", "", "Path to YAML config file")

	sendCmd.Flags().StringVar(&sendFlags.text, "text", "", "text to send")
	sendCmd.Flags().StringVar(&sendFlags.link, "link", "", "URL to send")
	sendCmd.Flags().StringArrayVarP(&sendFlags.files, "file", "f", nil, "file to send; repeat with --collection")
	sendCmd.Flags().BoolVar(&sendFlags.collection, "collection", false, "send the files as one collection")
	sendCmd.Flags().StringVar(&sendFlags.passphrase, "passphrase", "", "obfuscate with this passphrase")
	sendCmd.MarkFlagsMutuallyExclusive("text", "link", "file")

	streamCmd.Flags().StringVar(&streamFlags.source, "source", "", "image file re-read for every frame")
	streamCmd.Flags().DurationVar(&streamFlags.interval, "interval", 0, "time between frames (250ms to 10s)")
	streamCmd.Flags().DurationVar(&streamFlags.duration, "for", 0, "stop after this long; 0 runs until interrupted")

	peersCmd.Flags().DurationVar(&peersWait, "wait", 12*time.Second, "how long to listen")

	rootCmd.AddCommand(versionCmd, serveCmd, sendCmd, streamCmd, addrCmd, peersCmd)
}
