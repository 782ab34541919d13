package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardkit/internal/config"
)

func TestNodeDefaultsToWorkerRole(t *testing.T) {
	cmd := &cobra.Command{Use: "node"}
	v := viper.New()
	config.BindFlags(cmd, v)
	require.NoError(t, cmd.PersistentFlags().Set("role", "worker"))

	cfg, err := config.Load(v)
	require.NoError(t, err)
	assert.Equal(t, "worker", cfg.Role)
}

func TestNodeRoleFlagOverridesDefault(t *testing.T) {
	cmd := &cobra.Command{Use: "node"}
	v := viper.New()
	config.BindFlags(cmd, v)
	require.NoError(t, cmd.PersistentFlags().Set("role", "worker"))
	require.NoError(t, cmd.PersistentFlags().Set("role", "edge"))

	cfg, err := config.Load(v)
	require.NoError(t, err)
	assert.Equal(t, "edge", cfg.Role)
}
