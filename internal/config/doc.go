// Package config is the structured configuration block spec.md §6 names:
// a single Config struct covering every externally-tunable knob, bound
// from command-line flags via github.com/spf13/cobra and resolved (flags,
// env, file, defaults) via github.com/spf13/viper, the same split the
// teacher's cmd/coordinator and cmd/node mains use for their own flags.
package config
