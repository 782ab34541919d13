package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the single structured configuration block spec.md §6 names.
// Every field maps to one row of that section's option table.
type Config struct {
	// Role gates hosting of the Coordinator and Entries; empty means no
	// role restriction.
	Role string `mapstructure:"role"`
	// GuardianName is the name the registry is known under on this node.
	GuardianName string `mapstructure:"guardian-name"`

	CoordinatorFailureBackoff time.Duration `mapstructure:"coordinator-failure-backoff"`
	RetryInterval             time.Duration `mapstructure:"retry-interval"`
	BufferSize                int           `mapstructure:"buffer-size"`
	HandOffTimeout            time.Duration `mapstructure:"hand-off-timeout"`
	ShardStartTimeout         time.Duration `mapstructure:"shard-start-timeout"`
	ShardFailureBackoff       time.Duration `mapstructure:"shard-failure-backoff"`
	EntryRestartBackoff       time.Duration `mapstructure:"entry-restart-backoff"`
	RebalanceInterval         time.Duration `mapstructure:"rebalance-interval"`
	SnapshotInterval          time.Duration `mapstructure:"snapshot-interval"`

	LeastShardRebalanceThreshold       int `mapstructure:"least-shard-rebalance-threshold"`
	LeastShardMaxSimultaneousRebalance int `mapstructure:"least-shard-max-simultaneous-rebalance"`

	// RememberEntries turns on Shard Persistent State (spec.md §3).
	RememberEntries bool `mapstructure:"remember-entries"`

	// ListenAddr is this process's own HTTP listen address.
	ListenAddr string `mapstructure:"listen-addr"`
	// AdvertiseAddr is the RegionRef peers should use to reach this node;
	// defaults to ListenAddr when empty.
	AdvertiseAddr string `mapstructure:"advertise-addr"`
	// Seeds are existing cluster members to join through (clustermembership.GossipConfig.Seeds).
	Seeds []string `mapstructure:"seeds"`
	// JournalPath is where the bbolt-backed Journal stores its file, empty
	// meaning use the in-memory Journal instead.
	JournalPath string `mapstructure:"journal-path"`
}

// Defaults returns the baseline Config every loader starts from, matching
// the values spec.md's worked scenarios assume unless overridden.
func Defaults() Config {
	return Config{
		GuardianName:                        "sharding",
		CoordinatorFailureBackoff:           5 * time.Second,
		RetryInterval:                       2 * time.Second,
		BufferSize:                          1000,
		HandOffTimeout:                      5 * time.Second,
		ShardStartTimeout:                   3 * time.Second,
		ShardFailureBackoff:                 3 * time.Second,
		EntryRestartBackoff:                 2 * time.Second,
		RebalanceInterval:                   10 * time.Second,
		SnapshotInterval:                    30 * time.Second,
		LeastShardRebalanceThreshold:        3,
		LeastShardMaxSimultaneousRebalance:  1,
		RememberEntries:                     false,
		ListenAddr:                          ":8080",
	}
}

// BindFlags registers every Config field as a persistent flag on cmd and
// binds it into v, so the resolution order is flag > env > file > default,
// the same layering the rest of the pack's cobra/viper-based services use.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	d := Defaults()
	flags := cmd.PersistentFlags()

	flags.String("role", d.Role, "role that gates hosting of the coordinator and entries")
	flags.String("guardian-name", d.GuardianName, "name of the registry under the actor system")
	flags.Duration("coordinator-failure-backoff", d.CoordinatorFailureBackoff, "supervisor restart delay")
	flags.Duration("retry-interval", d.RetryInterval, "region register/home-retry cadence")
	flags.Int("buffer-size", d.BufferSize, "per-region and per-shard buffer cap")
	flags.Duration("hand-off-timeout", d.HandOffTimeout, "rebalance worker timeout")
	flags.Duration("shard-start-timeout", d.ShardStartTimeout, "coordinator HostShard resend delay")
	flags.Duration("shard-failure-backoff", d.ShardFailureBackoff, "shard persist-retry delay")
	flags.Duration("entry-restart-backoff", d.EntryRestartBackoff, "restart delay for entries stopped unexpectedly")
	flags.Duration("rebalance-interval", d.RebalanceInterval, "coordinator rebalance tick")
	flags.Duration("snapshot-interval", d.SnapshotInterval, "coordinator and shard snapshot tick")
	flags.Int("least-shard-rebalance-threshold", d.LeastShardRebalanceThreshold, "default strategy threshold")
	flags.Int("least-shard-max-simultaneous-rebalance", d.LeastShardMaxSimultaneousRebalance, "default strategy cap")
	flags.Bool("remember-entries", d.RememberEntries, "persist and recover the live entry set per shard")
	flags.String("listen-addr", d.ListenAddr, "this node's HTTP listen address")
	flags.String("advertise-addr", "", "address peers use to reach this node, defaults to listen-addr")
	flags.StringSlice("seeds", nil, "existing cluster members to join through")
	flags.String("journal-path", "", "bbolt file path for the journal, empty uses an in-memory journal")

	v.BindPFlags(flags)
	v.SetEnvPrefix("SHARDKIT")
	v.AutomaticEnv()
}

// Load resolves a Config from v, falling back to Defaults for anything
// neither flagged, nor set via env, nor present in a config file.
func Load(v *viper.Viper) (Config, error) {
	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.AdvertiseAddr == "" {
		cfg.AdvertiseAddr = cfg.ListenAddr
	}
	return cfg, nil
}
