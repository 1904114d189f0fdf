package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axondata/go-boxmgr"
)

func testParser(t *testing.T, cli *CLI, options ...kong.Option) *kong.Kong {
	t.Helper()
	options = append(options, kong.Vars{
		"version":        "testing",
		"control_listen": boxmgr.DefaultControlListen,
		"core_name":      boxmgr.DefaultCoreName,
	})
	parser, err := kong.New(cli, options...)
	require.NoError(t, err)
	return parser
}

func TestCLIDefaults(t *testing.T) {
	cli := new(CLI)
	parser := testParser(t, cli)

	kctx, err := parser.Parse([]string{"run"})
	require.NoError(t, err)
	assert.Equal(t, "run", kctx.Command())

	assert.Equal(t, "./data", cli.Globals.DataDir)
	assert.Equal(t, filepath.Join("data", "data.db"), filepath.Clean(cli.Globals.databasePath()))
	assert.Equal(t, "info", cli.Globals.LogLevel)
	assert.Equal(t, 5*time.Second, cli.Run.StopTimeout)
	assert.Equal(t, boxmgr.DefaultControlListen, cli.Run.ControlListen)
	assert.True(t, cli.Run.FollowCoreLogs)
}

func TestCLIWithConfig(t *testing.T) {
	config := `{
  "log_level": "debug",
  "log_file": "off",
  "data_dir": "/var/lib/boxmgr",
  "database": "/tmp/x.db",
  "metrics_listen": "127.0.0.1:9190",
  "watch_core": true
}`
	path := filepath.Join(t.TempDir(), "boxmgrd.json")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o644))

	cli := new(CLI)
	parser := testParser(t, cli, kong.Configuration(kong.JSON, path))

	_, err := parser.Parse([]string{"run"})
	require.NoError(t, err)

	assert.Equal(t, "debug", cli.Globals.LogLevel)
	assert.Equal(t, "off", cli.Globals.LogFile)
	assert.Equal(t, "/var/lib/boxmgr", cli.Globals.DataDir)
	assert.Equal(t, "/tmp/x.db", cli.Globals.databasePath())
	assert.Equal(t, "127.0.0.1:9190", cli.Run.MetricsListen)
	assert.True(t, cli.Run.WatchCore)
}

func TestCLIRejectsUnknownRunType(t *testing.T) {
	file := filepath.Join(t.TempDir(), "hook.sh")
	require.NoError(t, os.WriteFile(file, []byte("echo"), 0o644))

	cli := new(CLI)
	parser := testParser(t, cli)
	_, err := parser.Parse([]string{"script", "set", "sometime", file})
	assert.Error(t, err)

	_, err = parser.Parse([]string{"script", "set", "after-start", file, "--tag", "hook"})
	require.NoError(t, err)
	assert.Equal(t, "after-start", cli.Script.Set.RunType)
}

func TestConfigureLogger(t *testing.T) {
	logger, closer, err := configureLogger(GlobalLogger{LogLevel: "info", LogFile: "off"})
	require.NoError(t, err)
	assert.False(t, logger.Enabled(context.Background(), 0))
	require.NoError(t, closer.Close())

	file := filepath.Join(t.TempDir(), "logs", "boxmgrd.log")
	logger, closer, err = configureLogger(GlobalLogger{LogLevel: "debug", LogFile: file, LogJSON: true})
	require.NoError(t, err)
	logger.Info("hello", "k", "v")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestStoreCommands(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	globals := &Globals{DataDir: filepath.Join(dir, "data")}

	cfgFile := filepath.Join(dir, "home.json")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`{"log":{}}`), 0o644))
	require.NoError(t, ConfigImport{File: cfgFile, Activate: true}.Run(ctx, globals))

	hook := filepath.Join(dir, "hook.sh")
	require.NoError(t, os.WriteFile(hook, []byte("echo hi"), 0o644))
	require.NoError(t, ScriptSet{RunType: "before-start", File: hook}.Run(ctx, globals))
	require.NoError(t, AutoStart{State: "on"}.Run(ctx, globals))
	require.NoError(t, KVSet{Key: "note", Value: "plain words"}.Run(ctx, globals))

	store, err := globals.openStore()
	require.NoError(t, err)
	defer store.Close()

	cfg, err := store.ActiveConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "home", cfg.Tag)

	sc, err := store.Script(ctx, boxmgr.RunBeforeStart)
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.Equal(t, "hook.sh", sc.Tag)
	assert.Equal(t, "echo hi", sc.Content)

	on, err := store.AutoStart(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	var note string
	ok, err := store.Get(ctx, "note", &note)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "plain words", note)
}
