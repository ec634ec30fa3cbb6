package core

import (
	"fmt"
	"time"

	"drinksync/config"
	"drinksync/internal/capability"
	"drinksync/internal/hydration"
	"drinksync/internal/metrics"
	"drinksync/internal/retry"
	"drinksync/internal/session"
	"drinksync/internal/transport"
	"drinksync/tunnel"
	"drinksync/util"
)

// Build constructs the Mode for a validated configuration.  m may be
// nil when no metrics are wanted.
func Build(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	tracker, err := buildTracker(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Status {
		return &StatusMode{Tracker: tracker}, nil
	}
	tr, err := buildTransport(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts := buildSessionOptions(cfg, logger, m)

	switch {
	case cfg.Listen:
		svc, err := buildService(cfg)
		if err != nil {
			return nil, err
		}
		return &ListenMode{
			Transport: tr,
			Service:   svc,
			Session:   opts,
			KeepOpen:  cfg.KeepOpen,
			Reply:     cfg.Reply,
			Tracker:   tracker,
			Logger:    logger,
		}, nil

	case cfg.Watch != "":
		return &MonitorMode{
			Transport: tr,
			Peer:      cfg.Peer,
			Path:      cfg.Watch,
			Session:   opts,
			Reconnect: buildBackoff(cfg),
			Breaker:   buildBreaker(logger),
			Tracker:   tracker,
			Metrics:   m,
			Logger:    logger,
		}, nil

	default:
		return &ConnectMode{
			Transport: tr,
			Peer:      cfg.Peer,
			Session:   opts,
			Reconnect: buildBackoff(cfg),
			Breaker:   buildBreaker(logger),
			Linger:    cfg.Linger,
			Tracker:   tracker,
			Metrics:   m,
			Logger:    logger,
		}, nil
	}
}

// ── builders ─────────────────────────────────────────────────────────

func buildTransport(cfg *config.Config, logger *util.Logger) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportTCP:
		return &transport.TCP{Timeout: cfg.Timeout}, nil
	case config.TransportRFCOMM:
		return &transport.RFCOMM{Channel: uint8(cfg.Channel), Timeout: cfg.Timeout}, nil
	case config.TransportSSH:
		return transport.NewSSH(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.Timeout,
			KeepAlive:     cfg.KeepAlive,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func buildService(cfg *config.Config) (transport.ServiceIdentity, error) {
	svc, err := transport.NewService(cfg.ServiceName, cfg.ServiceUUID)
	if err != nil {
		return svc, err
	}
	if cfg.Channel > 0 {
		svc.Channel = uint8(cfg.Channel)
	}
	if cfg.Bind != "" {
		svc.BindAddr = cfg.Bind
	}
	return svc, nil
}

// buildChecker probes the Bluetooth adapter for RFCOMM.  Stream
// transports need no permission beyond opening a socket.
func buildChecker(cfg *config.Config) capability.Checker {
	if cfg.Transport == config.TransportRFCOMM {
		return capability.RadioProbe{}
	}
	return capability.Granted
}

func buildSessionOptions(cfg *config.Config, logger *util.Logger, m *metrics.Collector) []session.Option {
	opts := []session.Option{
		session.WithLogger(logger),
		session.WithMetrics(m),
		session.WithChecker(buildChecker(cfg)),
	}
	if cfg.ReadBuffer > 0 {
		opts = append(opts, session.WithReadBufferSize(cfg.ReadBuffer))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, session.WithConnectTimeout(cfg.Timeout))
	}
	return opts
}

func buildBackoff(cfg *config.Config) *retry.Backoff {
	if !cfg.Reconnect {
		return nil
	}
	b := retry.DefaultBackoff()
	b.MaxAttempts = cfg.MaxReconnects
	return b
}

func buildBreaker(logger *util.Logger) *retry.CircuitBreaker {
	return retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
		OnStateChange: func(from, to retry.State) {
			logger.Verbose("reconnect breaker %s -> %s", from, to)
		},
	})
}

// buildTracker opens the persisted settings when --state is given and
// keeps them in memory otherwise, then closes any days that ended since
// the last run.
func buildTracker(cfg *config.Config, logger *util.Logger) (*hydration.Tracker, error) {
	var store hydration.Store = hydration.NewMemStore()
	if cfg.StatePath != "" {
		fs, err := hydration.OpenFileStore(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("opening state: %w", err)
		}
		store = fs
	}

	t := hydration.NewTracker(store)
	if cfg.Goal > 0 && cfg.Goal != t.Goal() {
		if err := t.SetGoal(cfg.Goal); err != nil {
			return nil, fmt.Errorf("setting goal: %w", err)
		}
	}
	if cfg.Notifications != t.Notifications() {
		if err := t.SetNotifications(cfg.Notifications); err != nil {
			return nil, fmt.Errorf("setting notifications: %w", err)
		}
	}
	rollover(t, time.Now(), logger)
	return t, nil
}
