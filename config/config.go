// Package config loads replica configuration from a file (YAML/JSON/TOML,
// via viper), environment variables (BFTCORE_ prefix), and command-line
// flags (via cobra), in that increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// TLSConfig holds paths to the PEM files needed for mTLS. When nil or all
// paths empty, the replica falls back to plain TCP.
type TLSConfig struct {
	CACert   string `mapstructure:"ca_cert"`
	NodeCert string `mapstructure:"node_cert"`
	NodeKey  string `mapstructure:"node_key"`
}

// Config holds every option a runnable replica needs. TimeoutDelay,
// SyncRetryDelay, QueueCapacity, and MaxPayloadSize are the four tunables
// named directly; the rest are the ambient fields every node needs to find
// its identity, its peers, and its storage. SyncRetryDelay and
// MaxPayloadSize are loaded and validated but cmd/replica does not pass
// them on: the synchronizer uses its own fixed 5s re-request window and
// mempool.Simple its own fixed cap of 500 batch digests per payload.
type Config struct {
	// NodeID names this replica's generated TLS certificate and key files
	// (see --gencerts); it is not the committee identity (that is the key
	// loaded from KeyFile).
	NodeID string `mapstructure:"node_id"`

	DataDir       string `mapstructure:"data_dir"`
	ListenAddr    string `mapstructure:"listen_addr"`
	CommitteeFile string `mapstructure:"committee_file"`
	KeyFile       string `mapstructure:"key_file"`

	TimeoutDelay   time.Duration `mapstructure:"timeout_delay"`
	SyncRetryDelay time.Duration `mapstructure:"sync_retry_delay"`
	QueueCapacity  int           `mapstructure:"queue_capacity"`
	MaxPayloadSize int           `mapstructure:"max_payload_size"`

	RPCAddr      string     `mapstructure:"rpc_addr"`
	RPCAuthToken string     `mapstructure:"rpc_auth_token"`
	TLS          *TLSConfig `mapstructure:"tls"`
}

// DefaultConfig returns the §5/§6 defaults for a single-node development
// setup.
func DefaultConfig() *Config {
	return &Config{
		NodeID:         "replica0",
		DataDir:        "./data",
		ListenAddr:     "127.0.0.1:30303",
		CommitteeFile:  "./committee.json",
		KeyFile:        "./replica.key",
		TimeoutDelay:   2 * time.Second,
		SyncRetryDelay: 5 * time.Second,
		QueueCapacity:  1000,
		MaxPayloadSize: 500,
		RPCAddr:        "127.0.0.1:8545",
	}
}

// BindFlags registers every Config field as a cobra flag on cmd, so that
// flags override environment variables, which override the config file,
// which overrides DefaultConfig. Call Load after cmd.Execute parses flags.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.String("node-id", "", "replica name used for generated TLS cert/key files")
	flags.String("data-dir", "", "on-disk store directory")
	flags.String("listen-addr", "", "address to accept peer connections on")
	flags.String("committee-file", "", "path to the committee JSON file")
	flags.String("key-file", "", "path to this replica's encrypted key file")
	flags.Duration("timeout-delay", 0, "pacemaker round timeout")
	flags.Duration("sync-retry-delay", 0, "synchronizer fetch retry delay (validated only; the synchronizer uses a fixed 5s window)")
	flags.Int("queue-capacity", 0, "inbound/commit channel capacity")
	flags.Int("max-payload-size", 0, "max batch digests per proposed block (validated only; the mempool uses a fixed cap of 500)")
	flags.String("rpc-addr", "", "reserved address; the replica serves no API on it")

	for _, name := range []string{
		"node-id", "data-dir", "listen-addr", "committee-file", "key-file",
		"timeout-delay", "sync-retry-delay", "queue-capacity", "max-payload-size",
		"rpc-addr",
	} {
		_ = v.BindPFlag(mapstructureKey(name), flags.Lookup(name))
	}
}

// mapstructureKey converts a kebab-case flag name to the snake_case key
// Config's mapstructure tags use.
func mapstructureKey(flag string) string {
	out := make([]byte, 0, len(flag))
	for _, r := range flag {
		if r == '-' {
			out = append(out, '_')
			continue
		}
		out = append(out, byte(r))
	}
	return string(out)
}

// Load builds a Config from path (if it exists), environment variables
// prefixed BFTCORE_, and v's bound flags (see BindFlags), in that
// increasing order of precedence over DefaultConfig. Pass a bare
// viper.New() for path-and-env-only loading, as tests do.
func Load(path string, v *viper.Viper) (*Config, error) {
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix("bftcore")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("node_id", d.NodeID)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("committee_file", d.CommitteeFile)
	v.SetDefault("key_file", d.KeyFile)
	v.SetDefault("timeout_delay", d.TimeoutDelay)
	v.SetDefault("sync_retry_delay", d.SyncRetryDelay)
	v.SetDefault("queue_capacity", d.QueueCapacity)
	v.SetDefault("max_payload_size", d.MaxPayloadSize)
	v.SetDefault("rpc_addr", d.RPCAddr)
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.CommitteeFile == "" {
		return fmt.Errorf("committee_file must not be empty")
	}
	if c.KeyFile == "" {
		return fmt.Errorf("key_file must not be empty")
	}
	if c.TimeoutDelay <= 0 {
		return fmt.Errorf("timeout_delay must be positive")
	}
	if c.SyncRetryDelay <= 0 {
		return fmt.Errorf("sync_retry_delay must be positive")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive")
	}
	if c.MaxPayloadSize <= 0 {
		return fmt.Errorf("max_payload_size must be positive")
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}
