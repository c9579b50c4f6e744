package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"swotrace/internal/config"
	"swotrace/internal/keys"
	"swotrace/internal/metrics"
	"swotrace/internal/probe"
	"swotrace/internal/stream"
	"swotrace/internal/tcl"
	"swotrace/internal/webview"
	"swotrace/pkg/itm"
	"swotrace/pkg/outputlog"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	// level is logLevel parsed by the root command.
	level slog.Level

	host       string
	port       int
	recordPath string
	httpListen string
	noKeys     bool

	chunkSize     int
	encodeChannel uint8
	noNewline     bool
	showChannel   int
)

var rootCmd = &cobra.Command{
	Use:   "swotrace",
	Short: "swotrace - ITM trace viewer for OpenOCD",
	Long: `swotrace reads ITM software trace packets that OpenOCD forwards over its Tcl
server, splits them into up to 32 channels and prints them line by line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		level, err = parseLevel(logLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

// loadConfig loads the config file and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = host
	}
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("record") {
		cfg.Record.Path = recordPath
	}
	if flags.Changed("http") {
		cfg.HTTP.Listen = httpListen
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var runCmd = &cobra.Command{
	Use:   "run [cpu-clock]",
	Short: "Connect to OpenOCD and print the trace output",
	Long: `Connect to the OpenOCD Tcl server, enable SWO tracing and print every
configured channel. The optional argument overrides the CPU clock in Hz.

While running, single keys control the target:
  Ctrl-F  (re-)program the flash
  Ctrl-R  reset the chip
  Ctrl-L  lock the flash
  Ctrl-U  unlock the flash
  Ctrl-C  quit`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			clock, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || clock <= 0 {
				return fmt.Errorf("invalid cpu clock %q", args[0])
			}
			cfg.CPUClock = clock
		}
		return runTrace(cmd.Context(), cfg)
	},
}

func runTrace(parent context.Context, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := tcl.Dial(ctx, cfg.Addr(), tcl.DialOptions{
		MaxElapsed: time.Duration(cfg.ConnectRetrySeconds) * time.Second,
		Timeout:    5 * time.Second,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	var out io.Writer = os.Stdout
	restore := func() {}
	if !noKeys {
		var raw bool
		restore, raw, err = keys.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return err
		}
		var errOut io.Writer
		out, errOut = keys.ConsoleWriters(raw, os.Stdout, os.Stderr)
		if raw {
			slog.SetDefault(slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level})))
		}
	}
	defer restore()

	console := stream.NewConsoleSink(out)
	m := metrics.New()
	sinks := sinkSet{
		console: console,
		echo:    stream.SinkFunc(client.Echo),
	}

	if cfg.Record.Path != "" {
		record, closeRecord, err := openRecord(cfg.Record.Path)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeRecord(); err != nil {
				slog.Error("Failed to close record file", "error", err)
			}
		}()
		sinks.record = record
	} else if cfg.UsesSink(config.SinkRecord) {
		slog.Warn("Channels use the record sink but no record path is set")
	}

	if cfg.HTTP.Listen != "" {
		hub := webview.NewHub(webview.DefaultBacklog)
		sinks.web = hub.Sink
		srv := webview.NewServer(hub, m.Handler(), webview.Legend(cfg.Channels))
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.HTTP.Listen); err != nil {
				slog.Error("Web viewer stopped", "error", err)
			}
		}()
	}

	d := buildDemux(cfg, sinks, m)
	session := probe.NewSession(client, d, m)
	if err := session.EnableTrace(cfg.CPUClock); err != nil {
		return err
	}

	console.Printf("CPU clock: %g MHz\n", float64(cfg.CPUClock)/1e6)
	if !noKeys {
		for _, line := range keys.Help() {
			console.Printf("%s\n", line)
		}
		dispatcher := keys.NewDispatcher(client, cfg.Flash, func(msg string) {
			console.Printf("%s\n", msg)
		})
		go func() {
			err := keys.Run(ctx, os.Stdin, dispatcher)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, keys.ErrQuit) {
				slog.Error("Key input stopped", "error", err)
			}
			if errors.Is(err, keys.ErrQuit) {
				console.Printf("Terminating...\n")
				cancel()
			}
		}()
	}

	err = session.Run(ctx)
	if errors.Is(err, tcl.ErrConnectionClosed) {
		console.Printf("Connection Closed\n")
		return nil
	}
	return err
}

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode a raw ITM capture",
	Long: `Decode raw ITM bytes from a file (or stdin) and print the configured
channels. The input is fed in chunks, exactly as a live session would.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		in := cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open capture: %w", err)
			}
			defer f.Close()
			in = f
		}

		sinks := sinkSet{console: stream.NewConsoleSink(cmd.OutOrStdout())}
		if cfg.Record.Path != "" {
			record, closeRecord, err := openRecord(cfg.Record.Path)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeRecord(); err != nil {
					slog.Error("Failed to close record file", "error", err)
				}
			}()
			sinks.record = record
		}

		return decodeStream(in, buildDemuxForDecode(cfg, sinks), chunkSize)
	},
}

// buildDemuxForDecode sends every configured channel to the console, and to
// the record when one is open, since an offline decode has no other
// consumers.
func buildDemuxForDecode(cfg *config.Config, sinks sinkSet) ingester {
	offline := *cfg
	offline.Channels = make([]config.Channel, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		ch.Sinks = []string{config.SinkConsole, config.SinkRecord}
		offline.Channels[i] = ch
	}
	return buildDemux(&offline, sinks, nil)
}

type ingester interface {
	Ingest(raw []byte)
}

func decodeStream(r io.Reader, d ingester, size int) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			d.Ingest(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read capture: %w", err)
		}
	}
}

var encodeCmd = &cobra.Command{
	Use:   "encode text...",
	Short: "Encode text as ITM packets",
	Long:  `Write the arguments as one byte ITM packets for a channel to stdout. Useful to build test captures.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := ""
		for i, arg := range args {
			if i > 0 {
				text += " "
			}
			text += arg
		}
		if !noNewline {
			text += "\n"
		}
		buf, err := itm.AppendText(nil, encodeChannel, text)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(buf)
		return err
	},
}

var showCmd = &cobra.Command{
	Use:   "show file",
	Short: "Print a recorded output log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open record: %w", err)
		}
		defer f.Close()
		return showRecord(f, cmd.OutOrStdout(), showChannel)
	},
}

// showRecord prints the lines of r. A negative channel prints all channels
// with their stream name.
func showRecord(r io.Reader, w io.Writer, channel int) error {
	rd := outputlog.NewReader(r)
	for {
		chunk, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}
		if channel >= 0 {
			ch, ok := outputlog.ParseStreamName(chunk.Stream)
			if !ok || int(ch) != channel {
				continue
			}
			fmt.Fprintf(w, "%s\n", chunk.Line)
			continue
		}
		fmt.Fprintf(w, "%s %s %s\n", chunk.Timestamp.Format(time.RFC3339Nano), chunk.Stream, chunk.Line)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file (default: built-in channel layout)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	runCmd.Flags().StringVar(&host, "host", "localhost", "OpenOCD Tcl server host")
	runCmd.Flags().IntVarP(&port, "port", "p", 6666, "OpenOCD Tcl server port")
	runCmd.Flags().StringVar(&recordPath, "record", "", "Append lines of channels with the record sink to this output log")
	runCmd.Flags().StringVar(&httpListen, "http", "", "Serve the web viewer and metrics on this address, e.g. localhost:8080")
	runCmd.Flags().BoolVar(&noKeys, "no-keys", false, "Do not read key commands from the terminal")

	decodeCmd.Flags().IntVar(&chunkSize, "chunk-size", tcl.DefaultReadSize, "Bytes fed to the decoder per step")
	decodeCmd.Flags().StringVar(&recordPath, "record", "", "Also append the decoded lines to this output log")

	encodeCmd.Flags().Uint8Var(&encodeChannel, "channel", 0, "ITM channel (0-31)")
	encodeCmd.Flags().BoolVarP(&noNewline, "no-newline", "n", false, "Do not append a newline")

	showCmd.Flags().IntVar(&showChannel, "channel", -1, "Only print this channel")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
