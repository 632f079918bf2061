// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/DCSO/vxcube-go/mirror"

	"github.com/urfave/cli/v3"
)

var mirrorCmd = &cli.Command{
	Name:        "mirror",
	Description: "Stage the report and result archive of a finished analysis and upload both to the configured S3 bucket. Staged leftovers from interrupted runs are uploaded as well.",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "analysis-id",
			UsageText: "ANALYSIS_ID",
		},
	},
	Flags:  globalFlags(),
	Action: mirrorAction,
}

func mirrorAction(ctx context.Context, cmd *cli.Command) error {
	analysisID := cmd.StringArg("analysis-id")
	if analysisID == "" {
		return cli.Exit("Please provide an analysis id", 1)
	}
	client, cfg, err := makeClient(cmd)
	if err != nil {
		return err
	}
	if cfg.S3.Endpoint == "" {
		return fmt.Errorf("no S3 endpoint configured")
	}

	analysis, err := client.Analysis(ctx, analysisID)
	if err != nil {
		return err
	}
	if !analysis.IsFinished() {
		return fmt.Errorf("analysis %s is still running", analysisID)
	}

	scratchDir := cfg.S3.ScratchDir
	if scratchDir == "" {
		scratchDir, err = os.MkdirTemp("", "vxcube_mirror")
		if err != nil {
			return err
		}
		defer os.RemoveAll(scratchDir)
	} else if err = os.MkdirAll(scratchDir, 0700); err != nil {
		return err
	}

	m, err := mirror.MakeS3Mirror(mirror.S3Credentials{
		Endpoint:        cfg.S3.Endpoint,
		AccessKey:       cfg.S3.AccessKey,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		BucketName:      cfg.S3.Bucket,
		Region:          cfg.S3.Region,
	}, cfg.S3.SSL, scratchDir, client)
	if err != nil {
		return err
	}
	if err := m.Enqueue(ctx, analysis); err != nil {
		m.Stop()
		return err
	}
	m.Stop()
	fmt.Fprintf(cmd.Writer, "Analysis %s mirrored to bucket %s\n", analysisID, cfg.S3.Bucket)
	return nil
}
