package command

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

// PingCommand returns the ping command.
func PingCommand() *cli.Command {
	return &cli.Command{
		Name:      "ping",
		Usage:     "Ping the server",
		ArgsUsage: "[MESSAGE]",
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return cli.Exit("error: ping takes at most one argument", 1)
			}
			args := []string{"PING"}
			if c.NArg() == 1 {
				args = append(args, c.Args().Get(0))
			}
			return run(c, args...)
		},
	}
}

// EchoCommand returns the echo command.
func EchoCommand() *cli.Command {
	return &cli.Command{
		Name:      "echo",
		Usage:     "Echo a message back from the server",
		ArgsUsage: "MESSAGE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("error: echo requires exactly one argument", 1)
			}
			return run(c, "ECHO", c.Args().Get(0))
		},
	}
}

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get the value of a key",
		ArgsUsage: "KEY",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("error: get requires exactly one argument", 1)
			}
			return run(c, "GET", c.Args().Get(0))
		},
	}
}

// SetCommand returns the set command.
func SetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Set a key to a value",
		ArgsUsage: "KEY VALUE",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "px",
				Usage: "Expiry as a duration, sent in milliseconds (e.g., 500ms, 2s)",
			},
			&cli.DurationFlag{
				Name:  "ex",
				Usage: "Expiry as a duration, sent in whole seconds (e.g., 30s, 5m)",
			},
		},
		Action: setAction,
	}
}

func setAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("error: set requires KEY and VALUE", 1)
	}
	px := c.Duration("px")
	ex := c.Duration("ex")
	if px > 0 && ex > 0 {
		return cli.Exit("error: --px and --ex are mutually exclusive", 1)
	}

	args := []string{"SET", c.Args().Get(0), c.Args().Get(1)}
	switch {
	case px > 0:
		args = append(args, "PX", msArg(px))
	case ex > 0:
		secs := int64(ex / time.Second)
		if secs < 1 {
			return cli.Exit("error: --ex must be at least one second", 1)
		}
		args = append(args, "EX", fmt.Sprintf("%d", secs))
	}
	return run(c, args...)
}

// KeysCommand returns the keys command.
func KeysCommand() *cli.Command {
	return &cli.Command{
		Name:      "keys",
		Usage:     "List keys matching a glob pattern",
		ArgsUsage: "PATTERN",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("error: keys requires exactly one pattern", 1)
			}
			return run(c, "KEYS", c.Args().Get(0))
		},
	}
}
