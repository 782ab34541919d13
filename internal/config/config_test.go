package config_test

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardkit/internal/config"
)

func TestLoadUsesDefaultsWhenUnset(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	config.BindFlags(cmd, v)

	cfg, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.HandOffTimeout)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, ":8080", cfg.AdvertiseAddr)
}

func TestLoadHonorsFlagOverride(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	config.BindFlags(cmd, v)

	require.NoError(t, cmd.PersistentFlags().Set("buffer-size", "42"))
	require.NoError(t, cmd.PersistentFlags().Set("role", "shard"))

	cfg, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.BufferSize)
	assert.Equal(t, "shard", cfg.Role)
}

func TestLoadDerivesAdvertiseAddrFromListenAddr(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	config.BindFlags(cmd, v)
	require.NoError(t, cmd.PersistentFlags().Set("listen-addr", "localhost:9090"))

	cfg, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, "localhost:9090", cfg.ListenAddr)
	assert.Equal(t, "localhost:9090", cfg.AdvertiseAddr)
}

func TestLoadExplicitAdvertiseAddrOverridesDerivation(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	config.BindFlags(cmd, v)
	require.NoError(t, cmd.PersistentFlags().Set("listen-addr", "localhost:9090"))
	require.NoError(t, cmd.PersistentFlags().Set("advertise-addr", "node1.internal:9090"))

	cfg, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, "node1.internal:9090", cfg.AdvertiseAddr)
}
