// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"drinksync/config"
	"drinksync/internal/core"
	"drinksync/internal/metrics"
	"drinksync/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X drinksync/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives --version, --dry-run and --status output.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// Execute parses args and runs the selected drinksync mode.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage(newFlagSet(config.Default(), &cliOnly{}))
		return nil
	}

	// Flags override the config file, so the file is read first and
	// its values become the flag defaults.
	cfg, err := config.Load(configPath(args))
	if err != nil {
		return err
	}

	var cli cliOnly
	fs := newFlagSet(cfg, &cli)

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cli.help {
		printUsage(fs)
		return nil
	}
	if cli.version {
		fmt.Fprintf(stdout, "drinksync %s\n", version)
		return nil
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Resolve(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DryRun {
		fmt.Fprintln(stdout, summary(cfg))
		return nil
	}

	// ── build components ─────────────────────────────────────────
	level := cfg.Verbose + cli.verbose
	if cli.quiet {
		level = 0
	}
	logger := util.NewLogger(level)
	if cfg.LogFile != "" {
		logger.RotateTo(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	}
	defer logger.Sync() //nolint:errcheck

	m := metrics.New()
	mode, err := core.Build(cfg, logger, m)
	if err != nil {
		return err
	}
	if st, ok := mode.(*core.StatusMode); ok {
		st.Stdout = stdout
	}
	logger.Verbose("%s", summary(cfg))

	err = mode.Run(ctx)
	logger.Debug("metrics: %s", m.JSON())
	return err
}

// cliOnly holds flags that steer the CLI rather than the session.
type cliOnly struct {
	config  string
	verbose int
	quiet   bool
	help    bool
	version bool
}

func newFlagSet(cfg *config.Config, cli *cliOnly) *flag.FlagSet {
	fs := flag.NewFlagSet("drinksync", flag.ContinueOnError)

	// ── mode ─────────────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Listen under the service identity")
	fs.BoolVarP(&cfg.KeepOpen, "keep-open", "k", cfg.KeepOpen, "Keep listening after a peer leaves (with -l)")
	fs.StringVar(&cfg.Reply, "reply", cfg.Reply, "Reply policy in listen mode: none, echo, sync")
	fs.StringVar(&cfg.Watch, "watch", cfg.Watch, "Stream data points appended to `FILE`")
	fs.DurationVar(&cfg.Linger, "linger", cfg.Linger, "Wait this long for replies after stdin ends")

	// ── transport ────────────────────────────────────────────────
	fs.StringVarP(&cfg.Transport, "transport", "t", cfg.Transport, "Transport: rfcomm, tcp, ssh")
	fs.StringVar(&cfg.ServiceName, "service-name", cfg.ServiceName, "Service name advertised in listen mode")
	fs.StringVar(&cfg.ServiceUUID, "service-uuid", cfg.ServiceUUID, "Service UUID shared by both sides")
	fs.IntVar(&cfg.Channel, "channel", cfg.Channel, "RFCOMM channel (1-30)")
	fs.StringVar(&cfg.Bind, "bind", cfg.Bind, "Listen address for tcp")
	fs.DurationVarP(&cfg.Timeout, "wait", "w", cfg.Timeout, "Connect/accept timeout (0 = none)")
	fs.IntVar(&cfg.ReadBuffer, "read-buffer", cfg.ReadBuffer, "Receive chunk size in bytes")

	// ── reconnect ────────────────────────────────────────────────
	fs.BoolVarP(&cfg.Reconnect, "reconnect", "r", cfg.Reconnect, "Reconnect with backoff after failures")
	fs.IntVar(&cfg.MaxReconnects, "max-reconnects", cfg.MaxReconnects, "Reconnect attempts in a row (0 = unlimited)")

	// ── SSH gateway ──────────────────────────────────────────────
	fs.StringVarP(&cfg.Tunnel, "tunnel", "T", cfg.Tunnel, "Reach a tcp device through [user@]gateway[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify the gateway host key")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.DurationVar(&cfg.KeepAlive, "keep-alive", cfg.KeepAlive, "SSH keepalive interval (0 = off)")

	// ── hydration ────────────────────────────────────────────────
	fs.StringVar(&cfg.StatePath, "state", cfg.StatePath, "Persist intake and streak in `FILE`")
	fs.IntVar(&cfg.Goal, "goal", cfg.Goal, "Daily goal in ounces")
	fs.BoolVar(&cfg.Notifications, "notifications", cfg.Notifications, "Print goal and streak milestones")
	fs.BoolVar(&cfg.Status, "status", false, "Print intake, streak and achievements, then exit")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cli.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&cli.quiet, "quiet", "q", false, "Only print errors")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write logs to a rotated `FILE`")

	fs.StringVar(&cli.config, "config", "", "Config file (default ./drinksync.yaml, ~/.drinksync/drinksync.yaml)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&cli.version, "version", false, "Print version and exit")
	fs.BoolVarP(&cli.help, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }
	return fs
}

// configPath picks --config out of args before the full parse.
func configPath(args []string) string {
	pre := flag.NewFlagSet("drinksync", flag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.Usage = func() {}
	path := pre.String("config", "", "")
	_ = pre.Parse(args)
	return *path
}

// ── helpers ──────────────────────────────────────────────────────────

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.Listen {
		if len(remaining) > 0 {
			return fmt.Errorf("unexpected argument %q in listen mode", remaining[0])
		}
		return nil
	}

	switch len(remaining) {
	case 0: // peer may come from the config file
	case 1:
		cfg.Peer = remaining[0]
	default:
		return fmt.Errorf("too many arguments: expected one peer, got %s", strings.Join(remaining, " "))
	}
	return nil
}

// summary describes what a run with cfg would do.
func summary(cfg *config.Config) string {
	var b strings.Builder
	switch {
	case cfg.Status:
		b.WriteString("show hydration status")
		if cfg.StatePath != "" {
			fmt.Fprintf(&b, " from %s", cfg.StatePath)
		}
		return b.String()
	case cfg.Listen:
		fmt.Fprintf(&b, "listen as %s (%s) over %s", cfg.ServiceName, cfg.ServiceUUID, cfg.Transport)
		if cfg.Transport == config.TransportTCP {
			fmt.Fprintf(&b, " on %s", cfg.Bind)
		}
		fmt.Fprintf(&b, ", reply %s", cfg.Reply)
		if cfg.KeepOpen {
			b.WriteString(", keep open")
		}
	case cfg.Watch != "":
		fmt.Fprintf(&b, "stream %s to %s over %s", cfg.Watch, cfg.Peer, cfg.Transport)
	default:
		fmt.Fprintf(&b, "connect to %s over %s", cfg.Peer, cfg.Transport)
	}

	switch cfg.Transport {
	case config.TransportRFCOMM:
		fmt.Fprintf(&b, " (channel %d)", cfg.Channel)
	case config.TransportSSH:
		fmt.Fprintf(&b, " via %s@%s:%d", cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
	}
	if cfg.Reconnect && !cfg.Listen {
		b.WriteString(", reconnecting")
	}
	if cfg.StatePath != "" {
		fmt.Fprintf(&b, ", state %s", cfg.StatePath)
	}
	return b.String()
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `drinksync - hydration device link v%s

Talks to a smart bottle or scale over Bluetooth RFCOMM or TCP, one peer
at a time.

Usage:
  drinksync [options] <peer>                  Connect, send stdin lines
  drinksync -l [options]                      Listen for the phone
  drinksync --watch FILE [options] <peer>     Stream data points from FILE
  drinksync -T user@gateway -t tcp <peer>     Through an SSH gateway
  drinksync --status --state FILE             Show intake and streak

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  echo 8 | drinksync AA:BB:CC:DD:EE:FF              Log 8 oz on the bottle
  echo Sync | drinksync --linger 2s AA:BB:CC:DD:EE:FF
  drinksync -l -k --reply echo                      Act as the scale
  drinksync -t tcp --watch data.txt 10.0.0.5:7777   Forward scale readings
  drinksync -T pi@scale-gw 127.0.0.1:7777           Reach the Pi's bridge
`)
}
