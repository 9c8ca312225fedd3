package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/printlapse/printlapse/cli/config"
	"github.com/printlapse/printlapse/cli/render"
	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/session"
)

// ListCommand returns the list command. Read-only.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List entities (sessions)",
		Subcommands: []*cli.Command{
			{
				Name:   "sessions",
				Usage:  "List capture sessions with frame counts",
				Flags:  []cli.Flag{ConfigFlag, FormatFlag},
				Action: listSessionsAction,
			},
		},
	}
}

func listSessionsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("printlapse: %v", err), 1)
	}

	sessions := session.NewManager(cfg.Storage.BaseDir, log.NewLogger("session"))
	infos, err := sessions.List()
	if err != nil {
		return cli.Exit(fmt.Sprintf("printlapse: %v", err), 1)
	}

	return r.Render(infos)
}
