package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "slfs",
		Usage: "Interactive shell for the emulated single-level file system",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "script",
				Usage: "read commands from `FILE` instead of standard input",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log file system lifecycle events",
			},
		},
		Action: runShell,
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func runShell(context *cli.Context) error {
	if context.Bool("verbose") {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	input := os.Stdin
	if scriptPath := context.String("script"); scriptPath != "" {
		script, err := os.Open(scriptPath)
		if err != nil {
			return err
		}
		defer script.Close()
		input = script
	}

	shell := NewShell(os.Stdout)
	return shell.Run(input)
}
