// Package command provides CLI command definitions for rediskv-cli.
//
// It uses urfave/cli/v2 for command parsing. Each command opens a
// connection, runs one RESP exchange, and prints the reply.
package command

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/rediskv-go/internal/cli/connection"
	"github.com/yndnr/rediskv-go/internal/server/redisserver"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "rediskv-cli",
		Usage:   "rediskv command-line client",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			PingCommand(),
			EchoCommand(),
			GetCommand(),
			SetCommand(),
			KeysCommand(),
			ConfigCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "rediskv server address (e.g., localhost:6379)",
			EnvVars: []string{"REDISKV_SERVER"},
			Value:   "localhost:6379",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "Dial and request timeout",
			Value:   connection.DefaultTimeout,
		},
	}
}

// dial opens a client to the server named by the global flags.
func dial(c *cli.Context) (*connection.Client, error) {
	return connection.DialTimeout(c.String("server"), c.Duration("timeout"))
}

// run performs one request/reply exchange and prints the result.
// An error reply from the server sets a non-zero exit code.
func run(c *cli.Context, args ...string) error {
	client, err := dial(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	defer client.Close()

	reply, err := client.Do(args...)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}

	fmt.Fprintln(c.App.Writer, connection.Format(reply))
	if reply.Kind == redisserver.ErrorReply {
		return cli.Exit("", 1)
	}
	return nil
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

// msArg renders a duration as whole milliseconds for PX.
func msArg(d time.Duration) string {
	return fmt.Sprintf("%d", d.Milliseconds())
}
