package command

import (
	"github.com/urfave/cli/v2"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect server configuration",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Get a configuration parameter (dir, dbfilename)",
				ArgsUsage: "PARAMETER",
				Action:    configGet,
			},
		},
	}
}

func configGet(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("error: config get requires exactly one parameter", 1)
	}
	return run(c, "CONFIG", "GET", c.Args().Get(0))
}
