package main

import (
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/axondata/go-boxmgr/internal/sqlitestore"
)

type Globals struct {
	GlobalLogger `group:"Logger Configuration"`

	Config   kong.ConfigFlag  `help:"Configuration file to load" placeholder:"./boxmgrd.json"`
	Version  kong.VersionFlag `help:"Print version information"`
	DataDir  string           `name:"data-dir" default:"./data" env:"BOXMGR_DATA_DIR" help:"Directory holding the database and uploaded cores"`
	Database string           `name:"database" env:"BOXMGR_DATABASE" help:"SQLite database path; defaults to <data-dir>/data.db"`
}

type GlobalLogger struct {
	LogLevel      string `name:"log-level" default:"info" short:"l" help:"Set log level" enum:"error,warn,info,debug,trace"`
	LogFile       string `name:"log-file" default:"stdout" help:"Log sink: stdout, stderr, off or a file path (rotated)"`
	LogJSON       bool   `name:"log-json" default:"false" help:"Enable JSON formatted logs"`
	LogColor      bool   `name:"log-color" default:"false" help:"Enable colorized logs"`
	LogTimeFormat string `name:"log-timefmt" default:"DateTime" help:"Time format for log messages" enum:"DateTime,TimeOnly,RFC3339"`
}

type CLI struct {
	Globals Globals `embed:""`

	Run       Run       `cmd:"" default:"1" help:"Run the supervisor"`
	Config    ConfigCmd `cmd:"" help:"Manage stored core configurations"`
	Core      CoreCmd   `cmd:"" help:"Manage the core binary"`
	Script    ScriptCmd `cmd:"" help:"Manage lifecycle scripts"`
	AutoStart AutoStart `cmd:"" name:"auto-start" help:"Start the core when the daemon boots"`
	KV        KVCmd     `cmd:"" name:"kv" help:"Read and write raw settings"`
}

// databasePath resolves the sqlite file, defaulting into the data dir
func (g *Globals) databasePath() string {
	if g.Database != "" {
		return g.Database
	}
	return filepath.Join(g.DataDir, "data.db")
}

func (g *Globals) openStore() (*sqlitestore.Store, error) {
	if err := ensureDir(g.DataDir); err != nil {
		return nil, err
	}
	return sqlitestore.Open(g.databasePath())
}
