package config

// loader.go - configuration loading from file and environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. DRINKSYNC_* environment variables
//   3. drinksync.yaml
//   4. Defaults   (defaults.go)

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the configuration.  path names an explicit YAML file; when
// empty, $DRINKSYNC_CONFIG is used, else drinksync.yaml is looked up in
// the working directory and ~/.drinksync.  A missing file is not an
// error unless it was named explicitly.
func Load(path string) (*Config, error) {
	v := newViper(Default())

	explicit := path
	if explicit == "" {
		explicit = os.Getenv(ConfigEnv)
	}
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("drinksync")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".drinksync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// newViper seeds every key so environment-only configuration works.
func newViper(d *Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("peer", d.Peer)
	v.SetDefault("listen", d.Listen)
	v.SetDefault("keep_open", d.KeepOpen)
	v.SetDefault("reply", d.Reply)
	v.SetDefault("watch", d.Watch)
	v.SetDefault("linger", d.Linger)

	v.SetDefault("transport", d.Transport)
	v.SetDefault("service_name", d.ServiceName)
	v.SetDefault("service_uuid", d.ServiceUUID)
	v.SetDefault("channel", d.Channel)
	v.SetDefault("bind", d.Bind)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("read_buffer", d.ReadBuffer)

	v.SetDefault("reconnect", d.Reconnect)
	v.SetDefault("max_reconnects", d.MaxReconnects)

	v.SetDefault("tunnel", d.Tunnel)
	v.SetDefault("ssh_key", d.SSHKeyPath)
	v.SetDefault("ssh_password", d.SSHPassword)
	v.SetDefault("ssh_agent", d.UseSSHAgent)
	v.SetDefault("strict_hostkey", d.StrictHostKey)
	v.SetDefault("known_hosts", d.KnownHostsPath)
	v.SetDefault("keep_alive", d.KeepAlive)

	v.SetDefault("state", d.StatePath)
	v.SetDefault("goal", d.Goal)
	v.SetDefault("notifications", d.Notifications)

	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("log_max_size_mb", d.LogMaxSizeMB)
	v.SetDefault("log_max_backups", d.LogMaxBackups)
	return v
}
