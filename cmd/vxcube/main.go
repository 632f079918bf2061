// vxcube-go
// Copyright (c) 2026, DCSO GmbH

// Package main contains the vxcube command-line interface.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DCSO/vxcube-go/api"
	"github.com/DCSO/vxcube-go/config"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// Exit codes, kept stable for scripting.
const (
	exitOK          = 0
	exitAPIError    = -1
	exitInterrupted = -2
	exitUnknown     = -3
)

// Flag names shared by all commands.
const (
	apiKeyFlag     = "api-key"
	baseURLFlag    = "base-url"
	apiVersionFlag = "version"
	configFlag     = "config"
	verboseFlag    = "verbose"
	logJSONFlag    = "logjson"
)

var rootCmd = &cli.Command{
	Name:      "vxcube",
	Usage:     "vxcube upload suspicious.exe",
	Writer:    os.Stdout,
	ErrWriter: os.Stderr,
	Description: `vxcube submits files to a Dr.Web vxCube sandbox, follows the analysis
progress and retrieves verdicts and result archives. Credentials and
endpoint settings are read from ~/.vxcube/config.yaml and can be
overridden per invocation.`,
	Commands: []*cli.Command{
		configCmd,
		loginCmd,
		uploadCmd,
		analyseCmd,
		subscribeCmd,
		deleteCmd,
		downloadCmd,
		mirrorCmd,
	},
}

// globalFlags returns a fresh copy of the flags every command accepts.
// Copies keep the commands independent of each other.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  apiKeyFlag,
			Usage: "API key, overrides the configured one",
		},
		&cli.StringFlag{
			Name:  baseURLFlag,
			Usage: "Server base URL, overrides the configured one",
		},
		&cli.FloatFlag{
			Name:  apiVersionFlag,
			Usage: "API version to speak",
		},
		&cli.StringFlag{
			Name:  configFlag,
			Usage: "Path to the configuration file",
		},
		&cli.BoolFlag{
			Name:    verboseFlag,
			Aliases: []string{"V"},
			Usage:   "Verbose log output",
		},
		&cli.BoolFlag{
			Name:  logJSONFlag,
			Usage: "JSON log output",
		},
	}
}

// loadConfig merges the configuration file with command line overrides and
// configures logging.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	if cmd.Bool(logJSONFlag) {
		log.SetFormatter(&log.JSONFormatter{})
	}
	if cmd.Bool(verboseFlag) {
		log.SetLevel(log.DebugLevel)
	}

	path := cmd.String(configFlag)
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if v := cmd.String(apiKeyFlag); v != "" {
		cfg.APIKey = v
	}
	if v := cmd.String(baseURLFlag); v != "" {
		cfg.BaseURL = v
	}
	if v := cmd.Float(apiVersionFlag); v != 0 {
		cfg.Version = v
	}
	return cfg, nil
}

// makeClient builds the API client for a command invocation.
func makeClient(cmd *cli.Command) (*api.Client, config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, config.Config{}, err
	}
	client, err := api.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Version)
	if err != nil {
		return nil, config.Config{}, err
	}
	return client, cfg, nil
}

// exitCode classifies a command error the way the exit codes above promise.
func exitCode(ctx context.Context, err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return exitInterrupted
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return exitAPIError
	}
	return exitUnknown
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.Run(ctx, os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(ctx, err))
}
