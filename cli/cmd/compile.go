package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/printlapse/printlapse/cli/config"
	"github.com/printlapse/printlapse/cli/render"
	"github.com/printlapse/printlapse/log"
	"github.com/printlapse/printlapse/metrics"
	"github.com/printlapse/printlapse/session"
	"github.com/printlapse/printlapse/types"
)

// CompileCommand returns the compile command, a one-shot compilation of a
// session directory into a video.
func CompileCommand() *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Usage:     "Compile a session's frames into a timelapse video",
		ArgsUsage: "[session_dir]",
		Flags: []cli.Flag{
			ConfigFlag,
			FormatFlag,
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Re-compile a session that already has a video",
			},
			&cli.BoolFlag{
				Name:  "no-transfer",
				Usage: "Skip the network upload even when configured",
			},
		},
		Action: compileAction,
	}
}

func compileAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("printlapse: %v", err), 1)
	}
	if c.Bool("no-transfer") {
		cfg.Transfer.Enabled = false
	}

	collector := metrics.NewCollector()
	sessions := session.NewManager(cfg.Storage.BaseDir, log.NewLogger("session"))

	sessionDir := c.Args().First()
	if sessionDir == "" {
		sessionDir, err = sessions.MostRecent()
		if err != nil {
			return cli.Exit(fmt.Sprintf("printlapse: no session to compile: %v", err), 1)
		}
	}

	pipeline, err := buildPipeline(cfg, sessions, collector)
	if err != nil {
		return cli.Exit(fmt.Sprintf("printlapse: %v", err), 1)
	}

	outcome, err := pipeline.Run(c.Context, sessionDir, c.Bool("force"))
	if err != nil {
		if errors.Is(err, types.ErrNoImages) {
			return cli.Exit(fmt.Sprintf("printlapse: %v", err), 2)
		}
		return cli.Exit(fmt.Sprintf("printlapse: %v", err), 1)
	}

	return r.Render(outcome)
}
