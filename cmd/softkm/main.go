// softKM - software keyboard and mouse sharing.
// The controller captures local input at a screen edge and streams it to a
// peer machine over TCP.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "0.3.0"

func main() {
	app := &cli.App{
		Name:    "softkm",
		Usage:   "share this machine's keyboard and mouse with a peer",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file (.json or .yaml); defaults to the per-user config directory",
				EnvVars: []string{"SOFTKM_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			peerCommand(),
			arrangeCommand(),
			statusCommand(),
			autostartCommand(),
		},
		Action: func(c *cli.Context) error {
			return cli.ShowAppHelp(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("softkm: %v", err)
	}
}
