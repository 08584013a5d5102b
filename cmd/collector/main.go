package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dumpgw/internal/collector"
	"dumpgw/internal/dump"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	listenAddr  string
	framing     string
	readTimeout time.Duration
	console     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "collector",
		Short: "Receive dump records sent by the gateway's network sink",
		Long: `collector listens for framed exchange records and logs each one.

Examples:
  # Default u32 framing on the gateway's default port
  collector --listen 127.0.0.1:1575

  # Records sent with DUMP_FRAMING=java-utf
  collector --framing java-utf`,
		SilenceUsage: true,
		RunE:         run,
	}
	rootCmd.Flags().StringVarP(&listenAddr, "listen", "l", fmt.Sprintf("%s:%d", dump.DefaultAddress, dump.DefaultPort), "address to listen on")
	rootCmd.Flags().StringVarP(&framing, "framing", "f", string(dump.FramingU32), "frame format: u32 or java-utf")
	rootCmd.Flags().DurationVar(&readTimeout, "read-timeout", 10*time.Second, "per-connection read timeout")
	rootCmd.Flags().BoolVar(&console, "console", false, "human readable log output")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := log.Logger
	if console {
		logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	f, err := dump.ParseFraming(framing)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", listenAddr, err)
	}
	logger.Info().Str("addr", ln.Addr().String()).Str("framing", string(f)).Msg("collector listening")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := &collector.Server{Framing: f, ReadTimeout: readTimeout, Logger: logger}
	if err := s.Serve(ctx, ln); err != nil {
		return err
	}
	logger.Info().Msg("collector stopped")
	return nil
}
