package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"api"},
		{"train"},
		{"predict"},
		{"migrate"},
		{"seed"},
		{"models", "list"},
		{"scheduler", "start"},
		{"scheduler", "run"},
		{"scheduler", "status"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	assert.NotNil(t, predictCmd.Flags().Lookup("artifact"))
	assert.NotNil(t, apiCmd.Flags().Lookup("bootstrap"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestLoadConfig_Flags(t *testing.T) {
	t.Setenv("ENV", "development")
	env, verbose = "staging", true
	t.Cleanup(func() { env, verbose = "", false })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
}
