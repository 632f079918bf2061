// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/DCSO/vxcube-go/api"

	"github.com/urfave/cli/v3"
)

const (
	platformFlag     = "platform"
	analysisTimeFlag = "time"
	formatFlag       = "format"
	customCmdFlag    = "cmd"
)

var analyseCmd = &cli.Command{
	Name:        "analyse",
	Aliases:     []string{"analyze"},
	Description: "Start an analysis of an uploaded sample on one or more platforms.",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "sample-id",
			UsageText: "SAMPLE_ID",
		},
	},
	Flags: append(globalFlags(),
		&cli.StringSliceFlag{
			Name:    platformFlag,
			Aliases: []string{"p"},
			Usage:   "Platform to run on, repeatable; 'all' selects every platform supported by the sample",
		},
		&cli.IntFlag{
			Name:    analysisTimeFlag,
			Aliases: []string{"t"},
			Usage:   "Analysis time in seconds",
		},
		&cli.StringFlag{
			Name:    formatFlag,
			Aliases: []string{"f"},
			Usage:   "Override the detected file format",
		},
		&cli.StringFlag{
			Name:    customCmdFlag,
			Aliases: []string{"c"},
			Usage:   "Custom command line to start the sample with",
		},
	),
	Action: analyseAction,
}

func analyseAction(ctx context.Context, cmd *cli.Command) error {
	arg := cmd.StringArg("sample-id")
	if arg == "" {
		return cli.Exit("Please provide a sample id", 1)
	}
	sampleID, err := strconv.Atoi(arg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid sample id %q", arg), 1)
	}
	platforms := cmd.StringSlice(platformFlag)
	if len(platforms) == 0 {
		return cli.Exit("Please select at least one platform (-p)", 1)
	}

	client, _, err := makeClient(cmd)
	if err != nil {
		return err
	}

	if len(platforms) == 1 && platforms[0] == "all" {
		sample, err := client.Sample(ctx, sampleID)
		if err != nil {
			return err
		}
		if len(sample.Platforms) == 0 {
			return fmt.Errorf("sample %d supports no platforms", sampleID)
		}
		platforms = sample.Platforms
	}

	analysis, err := client.StartAnalysis(ctx, api.StartAnalysisRequest{
		SampleID:     sampleID,
		Platforms:    platforms,
		AnalysisTime: cmd.Int(analysisTimeFlag),
		FormatName:   cmd.String(formatFlag),
		CustomCmd:    cmd.String(customCmdFlag),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Writer, "Analysis %s started\n", analysis.ID)
	for _, t := range analysis.Tasks {
		fmt.Fprintf(cmd.Writer, "  Task[%d]-%s\n", t.ID, t.PlatformCode)
	}
	fmt.Fprintf(cmd.Writer, "Follow it with: vxcube subscribe-analysis %s\n", analysis.ID)
	return nil
}
