package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	ncerr "drinksync/internal/errors"
	"drinksync/internal/retry"
	"drinksync/tunnel"
	"drinksync/util"
)

// SSH reaches a TCP-bridged device through an SSH gateway, typically
// the Pi the scale is wired to.  The tunnel is connected lazily on the
// first Dial and torn down on Close.
type SSH struct {
	// Retry paces tunnel establishment.  Nil uses three quick attempts.
	Retry *retry.Backoff

	tunnel    tunnel.Tunnel
	config    *tunnel.SSHConfig
	logger    *util.Logger
	mu        sync.Mutex
	connected bool
}

// NewSSH creates a transport that forwards connections through an SSH
// tunnel.  The tunnel is not connected until the first Dial.
func NewSSH(cfg *tunnel.SSHConfig, logger *util.Logger) *SSH {
	return &SSH{
		tunnel: tunnel.NewSSHTunnel(cfg, logger),
		config: cfg,
		logger: logger,
	}
}

// connect establishes the SSH tunnel if not already connected, or
// re-establishes it after the gateway dropped.
func (s *SSH) connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected && s.tunnel.IsAlive() {
		return nil
	}

	s.logger.Verbose("establishing SSH tunnel to %s@%s:%d",
		s.config.User, s.config.Host, s.config.Port)

	err := s.backoff().Do(ctx, func(attempt int) error {
		if attempt > 1 {
			s.logger.Verbose("SSH tunnel attempt %d", attempt)
		}
		return s.tunnel.Connect(ctx)
	})
	if err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}

	s.connected = true
	s.logger.Verbose("SSH tunnel established")
	return nil
}

// backoff retries transient gateway failures a few times.  Auth and
// host-key failures are not retryable and surface immediately.
func (s *SSH) backoff() *retry.Backoff {
	if s.Retry != nil {
		return s.Retry
	}
	return &retry.Backoff{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		MaxAttempts:  3,
		Jitter:       true,
		Retryable:    ncerr.IsRetryable,
	}
}

// Dial connects to peer (host:port as seen from the gateway).
func (s *SSH) Dial(ctx context.Context, peer string) (Handle, error) {
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	conn, err := s.tunnel.Dial(ctx, "tcp", peer)
	if err != nil {
		return nil, ncerr.Wrap("dial", peer, err)
	}
	return newConnHandle(conn, peer), nil
}

// Listen is not offered through a gateway.
func (s *SSH) Listen(_ context.Context, svc ServiceIdentity) (Listener, error) {
	return nil, ncerr.Wrap("listen", svc.String(), ncerr.ErrUnsupported)
}

// Close tears down the underlying SSH tunnel.
func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		s.connected = false
		return s.tunnel.Close()
	}
	return nil
}
