package main

import (
	"context"
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/axondata/go-boxmgr"
)

var (
	COMMIT = "development"
)

func main() {
	cli := new(CLI)
	ctx := kong.Parse(cli,
		kong.Name("boxmgrd"),
		kong.Description("Supervises a sing-box core process"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true, FlagsLast: true}),
		kong.Configuration(kong.JSON, "/etc/boxmgr/boxmgrd.json", "~/.config/boxmgr/boxmgrd.json"),
		kong.Vars{
			"version":        fmt.Sprintf("%s [%s]", boxmgr.Version, COMMIT),
			"control_listen": boxmgr.DefaultControlListen,
			"core_name":      boxmgr.DefaultCoreName,
		},
	)

	ctx.BindTo(context.Background(), (*context.Context)(nil))
	ctx.Bind(&cli.Globals)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
