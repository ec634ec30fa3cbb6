package tunnel

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "drinksync/internal/errors"
	"drinksync/util"
)

// SSHConfig describes the gateway and how to authenticate to it.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// KeepAlive sends an OpenSSH keepalive request at this interval
	// and drops the tunnel when one goes unanswered.  Zero disables it.
	KeepAlive time.Duration
}

// Addr returns host:port of the gateway.
func (c *SSHConfig) Addr() string {
	return util.FormatAddr(c.Host, c.Port)
}

// SSHTunnel implements Tunnel over golang.org/x/crypto/ssh.
type SSHTunnel struct {
	config *SSHConfig
	logger *util.Logger

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool
	stop   chan struct{}
}

// NewSSHTunnel returns a tunnel ready to Connect.
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHTunnel{config: cfg, logger: logger}
}

// Connect dials the gateway and completes the SSH handshake.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	cfg := t.config

	auth, err := BuildAuthMethods(cfg)
	if err != nil {
		return ncerr.WrapSSH("auth", cfg.Host, cfg.Port, err)
	}
	hostKeys, err := hostKeyCallback(cfg)
	if err != nil {
		return ncerr.WrapSSH("hostkey", cfg.Host, cfg.Port, err)
	}

	addr := cfg.Addr()
	t.logger.Debug("ssh: dialing gateway %s as %s", addr, cfg.User)

	dialer := net.Dialer{Timeout: cfg.ConnTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ncerr.Wrap("dial", addr, err)
	}

	conn, chans, reqs, err := ssh.NewClientConn(raw, addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         cfg.ConnTimeout,
	})
	if err != nil {
		raw.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			err = fmt.Errorf("%w: %v", ncerr.ErrAuthFailed, err)
		}
		return ncerr.WrapSSH("handshake", cfg.Host, cfg.Port, err)
	}
	client := ssh.NewClient(conn, chans, reqs)

	stop := make(chan struct{})
	t.mu.Lock()
	prevClient, prevStop := t.client, t.stop
	t.client = client
	t.alive = true
	t.stop = stop
	t.mu.Unlock()

	// A reconnect replaces a dead gateway connection; release it and
	// stop its keepalive.
	if prevStop != nil {
		close(prevStop)
	}
	if prevClient != nil {
		prevClient.Close()
	}

	go t.watch(client)
	if cfg.KeepAlive > 0 {
		go t.keepAlive(client, cfg.KeepAlive, stop)
	}
	return nil
}

// Dial opens address through the gateway.  It honours ctx even though
// the SSH channel open itself cannot be interrupted.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	t.mu.RLock()
	client, alive := t.client, t.alive
	t.mu.RUnlock()
	if !alive || client == nil {
		return nil, ncerr.ErrTunnelClosed
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := client.Dial(network, address)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("via %s: %w", t.config.Addr(), r.err)
		}
		t.logger.Debug("ssh: opened %s %s", network, address)
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close shuts the gateway connection down.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

// IsAlive reports whether the gateway connection is up.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// watch flips alive off once the SSH connection ends.
func (t *SSHTunnel) watch(client *ssh.Client) {
	err := client.Wait()

	t.mu.Lock()
	if t.client == client {
		t.alive = false
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("ssh: gateway connection closed: %v", err)
	} else {
		t.logger.Debug("ssh: gateway connection closed")
	}
}

func (t *SSHTunnel) keepAlive(client *ssh.Client, every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				t.logger.Warn("ssh: keepalive to %s failed: %v", t.config.Addr(), err)
				client.Close()
				return
			}
		}
	}
}
