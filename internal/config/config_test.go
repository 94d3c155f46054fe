package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func loadedDefault(t *testing.T) Config {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(fs, v)
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := loadedDefault(t)
	require.Equal(t, Default(), cfg)
}

func TestBindFlagsOverridesDefault(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(fs, v)
	require.NoError(t, fs.Parse([]string{"--max-polyphony", "8", "--voice-stealing", "quietest"}))

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.MaxPolyphony)
	require.Equal(t, StealQuietest, cfg.VoiceStealing)
}

func TestLoadRejectsInvalidVoiceStealing(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(fs, v)
	require.NoError(t, fs.Parse([]string{"--voice-stealing", "random"}))

	_, err := Load(v)
	require.Error(t, err)
}

func TestLoadRejectsZeroPolyphony(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(fs, v)
	require.NoError(t, fs.Parse([]string{"--max-polyphony", "0"}))

	_, err := Load(v)
	require.Error(t, err)
}

func TestLoadRejectsReconnectMaxBelowInitial(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(fs, v)
	require.NoError(t, fs.Parse([]string{"--reconnect-initial-ms", "5000", "--reconnect-max-ms", "1000"}))

	_, err := Load(v)
	require.Error(t, err)
}
