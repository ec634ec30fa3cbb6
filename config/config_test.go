package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncerr "drinksync/internal/errors"
)

// ── ParseTunnelSpec ──────────────────────────────────────────────────

func TestParseTunnelSpec(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"full", "pi@scale-gw.local:2222", "pi", "scale-gw.local", 2222, false},
		{"no port", "pi@raspberrypi", "pi", "raspberrypi", 22, false},
		{"no user", "scale-gw:2200", "", "scale-gw", 2200, false},
		{"host only", "10.0.0.5", "", "10.0.0.5", 22, false},
		{"bad port", "pi@host:999999", "", "", 0, true},
		{"empty", "", "", "", 0, true},
		{"colon only", ":", "", "", 0, true},
		{"two users", "a@b@host", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, host, port, err := ParseTunnelSpec(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, user)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

// ── Resolve ──────────────────────────────────────────────────────────

func TestResolve_TunnelSelectsSSH(t *testing.T) {
	cfg := Default()
	cfg.Transport = TransportTCP
	cfg.Tunnel = "pi@scale-gw.local"

	require.NoError(t, cfg.Resolve())
	assert.Equal(t, TransportSSH, cfg.Transport)
	assert.Equal(t, "pi", cfg.TunnelUser)
	assert.Equal(t, "scale-gw.local", cfg.TunnelHost)
	assert.Equal(t, 22, cfg.TunnelPort)
}

func TestResolve_UserFromEnvironment(t *testing.T) {
	t.Setenv("USER", "hydrate")
	cfg := Default()
	cfg.Tunnel = "gw:2222"

	require.NoError(t, cfg.Resolve())
	assert.Equal(t, "hydrate", cfg.TunnelUser)
	assert.Equal(t, TransportSSH, cfg.Transport)
	assert.Equal(t, 2222, cfg.TunnelPort)
}

func TestResolve_NoTunnel(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Resolve())
	assert.Empty(t, cfg.TunnelHost)
}

func TestResolve_BadSpec(t *testing.T) {
	cfg := Default()
	cfg.Tunnel = "pi@gw:0"

	err := cfg.Resolve()
	var ce *ncerr.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "tunnel", ce.Field)
	assert.NotEmpty(t, ce.Hint)
}

// ── Validate ─────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	valid := func(mut func(*Config)) *Config {
		c := Default()
		c.Peer = "AA:BB:CC:DD:EE:FF"
		mut(c)
		return c
	}

	tests := []struct {
		name      string
		cfg       *Config
		wantField string // empty means valid
	}{
		{"rfcomm client", valid(func(*Config) {}), ""},
		{"tcp listener", valid(func(c *Config) {
			c.Peer, c.Listen, c.Transport, c.KeepOpen, c.Reply = "", true, TransportTCP, true, ReplySync
		}), ""},
		{"ssh client", valid(func(c *Config) {
			c.Transport, c.TunnelHost, c.Peer = TransportSSH, "gw", "127.0.0.1:7777"
		}), ""},
		{"watch client", valid(func(c *Config) { c.Watch = "/tmp/data.txt" }), ""},
		{"unknown transport", valid(func(c *Config) { c.Transport = "udp" }), "transport"},
		{"ssh without gateway", valid(func(c *Config) { c.Transport = TransportSSH }), "tunnel"},
		{"listen over ssh", valid(func(c *Config) {
			c.Listen, c.Transport, c.TunnelHost = true, TransportSSH, "gw"
		}), "listen"},
		{"listen with watch", valid(func(c *Config) { c.Listen, c.Watch = true, "f" }), "watch"},
		{"no peer", valid(func(c *Config) { c.Peer = "" }), "peer"},
		{"status needs no peer", valid(func(c *Config) { c.Peer, c.Status = "", true }), ""},
		{"keep-open without listen", valid(func(c *Config) { c.KeepOpen = true }), "keep-open"},
		{"bad reply", valid(func(c *Config) { c.Reply = "shout" }), "reply"},
		{"channel zero", valid(func(c *Config) { c.Channel = 0 }), "channel"},
		{"channel 31", valid(func(c *Config) { c.Channel = 31 }), "channel"},
		{"channel ignored for tcp", valid(func(c *Config) { c.Transport, c.Channel = TransportTCP, 0 }), ""},
		{"bad uuid", valid(func(c *Config) { c.ServiceUUID = "not-a-uuid" }), "service-uuid"},
		{"zero goal", valid(func(c *Config) { c.Goal = 0 }), "goal"},
		{"negative timeout", valid(func(c *Config) { c.Timeout = -time.Second }), "wait"},
		{"negative linger", valid(func(c *Config) { c.Linger = -time.Second }), "linger"},
		{"negative read buffer", valid(func(c *Config) { c.ReadBuffer = -1 }), "read-buffer"},
		{"negative reconnects", valid(func(c *Config) { c.MaxReconnects = -1 }), "max-reconnects"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ce *ncerr.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantField, ce.Field)
			assert.True(t, strings.HasPrefix(err.Error(), "config: --"+tt.wantField))
		})
	}
}

func TestValidate_HintsAreActionable(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hint:")
}
