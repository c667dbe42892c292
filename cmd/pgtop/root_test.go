package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powa-team/pgtop/internal/config"
	pgerrors "github.com/powa-team/pgtop/internal/errors"
)

// parse runs flag parsing on a fresh root command and returns the resulting configuration.
func parse(t *testing.T, args ...string) (*config.Config, *options, error) {
	t.Helper()
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(args))

	var o options
	o.configPath, _ = cmd.Flags().GetString("config")
	o.user, _ = cmd.Flags().GetString("user")
	o.host, _ = cmd.Flags().GetString("host")
	o.port, _ = cmd.Flags().GetInt("port")
	o.password, _ = cmd.Flags().GetString("password")
	o.noReplicas, _ = cmd.Flags().GetBool("no-replicas")
	o.cycles, _ = cmd.Flags().GetInt64("cycles")
	o.debug, _ = cmd.Flags().GetBool("debug")

	cfg, err := loadConfig(cmd, &o, cmd.Flags().Args())
	return cfg, &o, err
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, _, err := parse(t)
	require.NoError(t, err)

	assert.Equal(t, "/tmp", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "postgres", cfg.Database.DBName)
	assert.True(t, cfg.Discovery.Replicas)
}

func TestLoadConfig_PsqlStyleFlags(t *testing.T) {
	cfg, _, err := parse(t, "-U", "monitor", "-h", "db1.internal", "-p", "6432", "-W", "secret", "orders")
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Database.User)
	assert.Equal(t, "db1.internal", cfg.Database.Host)
	assert.Equal(t, 6432, cfg.Database.Port)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "orders", cfg.Database.DBName)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pgtop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: 10.0.0.1
  user: fromfile
monitor:
  max_sql_lines: 3
`), 0o644))

	cfg, _, err := parse(t, "--config", path, "-U", "fromflag", "--no-replicas", "--debug")
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", cfg.Database.Host, "file value kept when the flag is absent")
	assert.Equal(t, "fromflag", cfg.Database.User)
	assert.Equal(t, 3, cfg.Monitor.MaxSQLLines)
	assert.False(t, cfg.Discovery.Replicas)
	assert.True(t, cfg.Log.Debug)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing file", args: []string{"--config", filepath.Join(os.TempDir(), "does-not-exist.yaml")}},
		{name: "bad port", args: []string{"-p", "70000"}},
		{name: "negative cycles", args: []string{"--cycles", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parse(t, tt.args...)
			require.Error(t, err)
			assert.True(t, pgerrors.IsCode(err, pgerrors.ErrConfig))
			assert.NotContains(t, err.Error(), "\n")
		})
	}
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()

	host := cmd.Flags().ShorthandLookup("h")
	require.NotNil(t, host, "-h selects the host")
	assert.Equal(t, "host", host.Name)
	assert.NotNil(t, cmd.Flags().Lookup("help"))

	err := cmd.Args(cmd, []string{"a", "b"})
	assert.Error(t, err, "at most one database name")
}

func TestIntervals(t *testing.T) {
	cfg := config.Default()

	poll, reconnect, err := intervals(&cfg.Monitor)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, poll)
	assert.Equal(t, 5*time.Second, reconnect)

	tests := []struct {
		name   string
		mutate func(*config.MonitorConfig)
		want   string
	}{
		{name: "unparsable poll", mutate: func(m *config.MonitorConfig) { m.PollInterval = "soon" }, want: "monitor.poll_interval"},
		{name: "zero poll", mutate: func(m *config.MonitorConfig) { m.PollInterval = "0s" }, want: "monitor.poll_interval"},
		{name: "negative reconnect", mutate: func(m *config.MonitorConfig) { m.ReconnectInterval = "-1s" }, want: "monitor.reconnect_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := config.Default().Monitor
			tt.mutate(&m)

			poll, reconnect, err := intervals(&m)

			require.Error(t, err)
			assert.True(t, pgerrors.IsCode(err, pgerrors.ErrConfig))
			assert.Contains(t, err.Error(), tt.want)
			assert.Zero(t, poll)
			assert.Zero(t, reconnect)
		})
	}
}
