package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// Shared by the CLI flags, the config file and environment loading.

const (
	DefaultTransport   = TransportRFCOMM
	DefaultReply       = ReplyNone
	DefaultServiceName = "DrinkSyncApp"
	DefaultServiceUUID = "94f39d29-7d6d-437d-973b-fba39e49d4ee"
	DefaultChannel     = 1
	DefaultBind        = ":7777"

	// DefaultReadBuffer matches the chunk the scale firmware reads.
	DefaultReadBuffer = 1024

	// DefaultGoal is the daily intake goal in ounces.
	DefaultGoal = 64

	// DefaultNotifications prints goal and streak milestones.
	DefaultNotifications = true

	DefaultSSHPort   = 22
	DefaultKeepAlive = 30 * time.Second

	// DefaultMaxReconnects bounds -r; zero means retry until interrupted.
	DefaultMaxReconnects = 10

	DefaultVerbosity     = 1
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3

	// ConfigEnv names a config file, overriding the search path.
	ConfigEnv = "DRINKSYNC_CONFIG"
	envPrefix = "DRINKSYNC"
)
