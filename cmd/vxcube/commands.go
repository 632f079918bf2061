// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package main

import (
	"context"
	"fmt"

	"github.com/DCSO/vxcube-go/config"

	"github.com/urfave/cli/v3"
)

const (
	deleteFlag   = "delete"
	loginFlag    = "login"
	passwordFlag = "password"
	newKeyFlag   = "new-key"
)

var configCmd = &cli.Command{
	Name:        "config",
	Description: "Persist API key, base URL and API version as defaults.",
	Flags: append(globalFlags(),
		&cli.BoolFlag{
			Name:  deleteFlag,
			Usage: "Remove the stored configuration",
		},
	),
	Action: configAction,
}

func configAction(_ context.Context, cmd *cli.Command) error {
	path := cmd.String(configFlag)
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	if cmd.Bool(deleteFlag) {
		removed, err := config.Delete(path)
		if err != nil {
			return err
		}
		if removed {
			fmt.Fprintf(cmd.Writer, "Removed %s\n", path)
		} else {
			fmt.Fprintf(cmd.Writer, "No configuration at %s\n", path)
		}
		return nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
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
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Writer, "Saved %s\n", path)
	return nil
}

var loginCmd = &cli.Command{
	Name:        "login",
	Description: "Exchange account credentials for an API key.",
	Flags: append(globalFlags(),
		&cli.StringFlag{
			Name:     loginFlag,
			Aliases:  []string{"l"},
			Usage:    "Account login",
			Required: true,
		},
		&cli.StringFlag{
			Name:     passwordFlag,
			Aliases:  []string{"p"},
			Usage:    "Account password",
			Required: true,
		},
		&cli.BoolFlag{
			Name:  newKeyFlag,
			Usage: "Issue a fresh API key instead of returning the current one",
		},
	),
	Action: loginAction,
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	client, _, err := makeClient(cmd)
	if err != nil {
		return err
	}
	err = client.Login(ctx, cmd.String(loginFlag), cmd.String(passwordFlag),
		cmd.Bool(newKeyFlag))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Writer, "API key: %s\n", client.APIKey)
	fmt.Fprintln(cmd.Writer, "Store it with: vxcube config --api-key", client.APIKey)
	return nil
}

var deleteCmd = &cli.Command{
	Name:        "delete",
	Description: "Delete an analysis and its results on the server.",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "analysis-id",
			UsageText: "ANALYSIS_ID",
		},
	},
	Flags:  globalFlags(),
	Action: deleteAction,
}

func deleteAction(ctx context.Context, cmd *cli.Command) error {
	analysisID := cmd.StringArg("analysis-id")
	if analysisID == "" {
		return cli.Exit("Please provide an analysis id", 1)
	}
	client, _, err := makeClient(cmd)
	if err != nil {
		return err
	}
	if err := client.DeleteAnalysis(ctx, analysisID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Writer, "Analysis %s deleted\n", analysisID)
	return nil
}
