package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/raknampuna/anchor/config"
)

var CLI struct {
	Chat  ChatCmd  `cmd:"" help:"Chat with Anchor in the terminal." default:"withargs"`
	Serve ServeCmd `cmd:"" help:"Run the Discord bot and scheduled jobs."`
	Purge PurgeCmd `cmd:"" help:"Delete contexts older than the retention window."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("anchor"),
		kong.Description("One important task a day"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	if err := ctx.Run(config.Load()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
