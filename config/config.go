// Package config defines the runtime configuration for drinksync and the
// helpers for parsing gateway specifications.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	ncerr "drinksync/internal/errors"
)

// Transport names accepted by --transport.
const (
	TransportTCP    = "tcp"
	TransportRFCOMM = "rfcomm"
	TransportSSH    = "ssh"
)

// Reply policies for listen mode.
const (
	ReplyNone = "none"
	ReplyEcho = "echo"
	ReplySync = "sync"
)

// Config holds every tuneable for a drinksync run.  The mapstructure
// tags are the keys used in drinksync.yaml and, upper-cased with the
// DRINKSYNC_ prefix, in the environment.
type Config struct {
	// ── Mode ─────────────────────────────────────────────────────────
	Peer     string `mapstructure:"peer"`
	Listen   bool   `mapstructure:"listen"`
	KeepOpen bool   `mapstructure:"keep_open"`
	Reply    string `mapstructure:"reply"`
	Watch    string `mapstructure:"watch"`

	// Linger keeps a client session open after stdin ends so late
	// replies are still printed.
	Linger time.Duration `mapstructure:"linger"`

	// ── Transport ────────────────────────────────────────────────────
	Transport   string        `mapstructure:"transport"`
	ServiceName string        `mapstructure:"service_name"`
	ServiceUUID string        `mapstructure:"service_uuid"`
	Channel     int           `mapstructure:"channel"`
	Bind        string        `mapstructure:"bind"`
	Timeout     time.Duration `mapstructure:"timeout"`
	ReadBuffer  int           `mapstructure:"read_buffer"`

	// ── Reconnect ────────────────────────────────────────────────────
	Reconnect     bool `mapstructure:"reconnect"`
	MaxReconnects int  `mapstructure:"max_reconnects"`

	// ── SSH gateway ──────────────────────────────────────────────────
	Tunnel         string        `mapstructure:"tunnel"` // raw user@host[:port] from -T
	TunnelUser     string        `mapstructure:"-"`
	TunnelHost     string        `mapstructure:"-"`
	TunnelPort     int           `mapstructure:"-"`
	SSHKeyPath     string        `mapstructure:"ssh_key"`
	SSHPassword    bool          `mapstructure:"ssh_password"`
	UseSSHAgent    bool          `mapstructure:"ssh_agent"`
	StrictHostKey  bool          `mapstructure:"strict_hostkey"`
	KnownHostsPath string        `mapstructure:"known_hosts"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`

	// ── Hydration ────────────────────────────────────────────────────
	StatePath     string `mapstructure:"state"`
	Goal          int    `mapstructure:"goal"`
	Notifications bool   `mapstructure:"notifications"`

	// Status prints the stored hydration status instead of opening a
	// session.
	Status bool `mapstructure:"-"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose       int    `mapstructure:"verbose"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	DryRun        bool   `mapstructure:"-"`
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Reply:         DefaultReply,
		Transport:     DefaultTransport,
		ServiceName:   DefaultServiceName,
		ServiceUUID:   DefaultServiceUUID,
		Channel:       DefaultChannel,
		Bind:          DefaultBind,
		ReadBuffer:    DefaultReadBuffer,
		MaxReconnects: DefaultMaxReconnects,
		KeepAlive:     DefaultKeepAlive,
		Goal:          DefaultGoal,
		Notifications: DefaultNotifications,
		Verbose:       DefaultVerbosity,
		LogMaxSizeMB:  DefaultLogMaxSizeMB,
		LogMaxBackups: DefaultLogMaxBackups,
	}
}

// ── Gateway-spec parser ──────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "pi@scale-gw.local:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid gateway spec %q, expected [user@]host[:port]", spec)
	}
	user, host, port = m[1], m[2], DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid gateway port %q", m[3])
		}
	}
	return user, host, port, nil
}

// Resolve fills the derived gateway fields from Tunnel.  A gateway spec
// selects the ssh transport; the user falls back to $USER.
func (c *Config) Resolve() error {
	if c.Tunnel == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.Tunnel)
	if err != nil {
		return &ncerr.ConfigError{
			Field:   "tunnel",
			Value:   c.Tunnel,
			Message: err.Error(),
			Hint:    "use -T pi@scale-gw.local or -T pi@10.0.0.5:2222",
		}
	}
	if user == "" {
		user = os.Getenv("USER")
	}
	c.TunnelUser, c.TunnelHost, c.TunnelPort = user, host, port
	c.Transport = TransportSSH
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Failures are *errors.ConfigError values naming the offending flag.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportTCP, TransportRFCOMM:
	case TransportSSH:
		if c.TunnelHost == "" {
			return &ncerr.ConfigError{
				Field:   "tunnel",
				Message: "the ssh transport needs a gateway",
				Hint:    "pass -T user@gateway[:port]",
			}
		}
	default:
		return &ncerr.ConfigError{
			Field:   "transport",
			Value:   c.Transport,
			Message: "unknown transport",
			Hint:    "choose one of tcp, rfcomm, ssh",
		}
	}

	if c.Listen {
		if c.Transport == TransportSSH {
			return &ncerr.ConfigError{
				Field:   "listen",
				Message: "listening through an SSH gateway is not supported",
				Hint:    "run the listener on the gateway host itself with -t tcp",
			}
		}
		if c.Watch != "" {
			return &ncerr.ConfigError{
				Field:   "watch",
				Value:   c.Watch,
				Message: "cannot be combined with -l",
			}
		}
	} else {
		if c.Peer == "" && !c.Status {
			return &ncerr.ConfigError{
				Field:   "peer",
				Message: "required in connect mode",
				Hint:    "give the device address, e.g. AA:BB:CC:DD:EE:FF or 10.0.0.5:7777",
			}
		}
		if c.KeepOpen {
			return &ncerr.ConfigError{
				Field:   "keep-open",
				Message: "only applies to listen mode",
				Hint:    "add -l, or use -r to reconnect as a client",
			}
		}
	}

	switch c.Reply {
	case "", ReplyNone, ReplyEcho, ReplySync:
	default:
		return &ncerr.ConfigError{
			Field:   "reply",
			Value:   c.Reply,
			Message: "unknown reply policy",
			Hint:    "choose one of none, echo, sync",
		}
	}

	if c.Transport == TransportRFCOMM && (c.Channel < 1 || c.Channel > 30) {
		return &ncerr.ConfigError{
			Field:   "channel",
			Value:   c.Channel,
			Message: "out of range 1-30",
			Hint:    "RFCOMM channels are numbered 1 to 30",
		}
	}

	if c.ServiceUUID != "" {
		if _, err := uuid.Parse(c.ServiceUUID); err != nil {
			return &ncerr.ConfigError{
				Field:   "service-uuid",
				Value:   c.ServiceUUID,
				Message: "not a UUID",
				Hint:    "both sides must use the same UUID, default " + DefaultServiceUUID,
			}
		}
	}

	if c.Goal <= 0 {
		return &ncerr.ConfigError{Field: "goal", Value: c.Goal, Message: "must be positive"}
	}
	if c.Timeout < 0 {
		return &ncerr.ConfigError{Field: "wait", Value: c.Timeout, Message: "must not be negative"}
	}
	if c.Linger < 0 {
		return &ncerr.ConfigError{Field: "linger", Value: c.Linger, Message: "must not be negative"}
	}
	if c.ReadBuffer < 0 {
		return &ncerr.ConfigError{Field: "read-buffer", Value: c.ReadBuffer, Message: "must not be negative"}
	}
	if c.MaxReconnects < 0 {
		return &ncerr.ConfigError{Field: "max-reconnects", Value: c.MaxReconnects, Message: "must not be negative"}
	}
	return nil
}
