package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"leavebot/internal/app"
	"leavebot/internal/schedule"
	"leavebot/pkg/logx"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logs, log := logx.New(logx.Config{Level: "info", Console: true})
	defer func() { _ = logs.Close() }()

	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the config file (json or yaml)",
		Value:   "./config.yaml",
	}

	root := &cli.Command{
		Name:  "leavebot",
		Usage: "fills and submits the weekly leave request forms",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run one fill-and-submit cycle",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "mode",
						Usage: "wait (weekly target), now, or delay",
						Value: "wait",
					},
					&cli.IntFlag{
						Name:  "delay-minutes",
						Usage: "minutes to wait in delay mode (required there)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					mode, err := schedule.ParseMode(cmd.String("mode"))
					if err != nil {
						return err
					}
					delay, err := delayMinutes(cmd, mode)
					if err != nil {
						return err
					}
					a := app.New(app.Options{
						ConfigPath:   cmd.String("config"),
						Mode:         mode,
						DelayMinutes: delay,
					}, logs, log)

					sum, err := a.Run(ctx)
					if err != nil {
						return err
					}
					log.Info("run finished",
						logx.Int("ok", sum.OKCount()),
						logx.Int("failed", sum.FailCount()))
					if sum.FailCount() > 0 {
						return cli.Exit(fmt.Sprintf("%d of %d forms failed", sum.FailCount(), len(sum.Results)), 1)
					}
					return nil
				},
			},
			{
				Name:  "check",
				Usage: "validate config and probe browser and notification channels",
				Flags: []cli.Flag{configFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a := app.New(app.Options{
						ConfigPath: cmd.String("config"),
						Mode:       schedule.ModeWait,
					}, logs, log)
					if err := a.Check(ctx); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					log.Info("all checks passed")
					return nil
				},
			},
		},
	}

	if err := root.Run(ctx, os.Args); err != nil {
		log.Error("fatal", logx.Err(err))
		os.Exit(1)
	}
}

// delayMinutes resolves the --delay-minutes flag. Delay mode demands an
// explicit positive value; the other modes ignore the flag.
func delayMinutes(cmd *cli.Command, mode schedule.Mode) (int, error) {
	if mode != schedule.ModeDelay {
		return 0, nil
	}
	if !cmd.IsSet("delay-minutes") {
		return 0, fmt.Errorf("delay mode needs --delay-minutes")
	}
	n := cmd.Int("delay-minutes")
	if n <= 0 {
		return 0, fmt.Errorf("--delay-minutes must be a positive number of minutes, got %d", n)
	}
	return int(n), nil
}
