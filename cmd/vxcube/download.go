// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/DCSO/vxcube-go/api"

	"github.com/urfave/cli/v3"
)

const (
	idFlag         = "id"
	md5Flag        = "md5"
	sha1Flag       = "sha1"
	sha256Flag     = "sha256"
	outFlag        = "output"
	analysisIDFlag = "analysis-id"
	taskIDFlag     = "task-id"
)

var downloadCmd = &cli.Command{
	Name:        "download",
	Description: "Download samples and result archives.",
	Commands: []*cli.Command{
		downloadSampleCmd,
		downloadArchiveCmd,
	},
}

var downloadSampleCmd = &cli.Command{
	Name:        "sample",
	Description: "Download a sample by id or by hash.",
	Flags: append(globalFlags(),
		&cli.IntFlag{
			Name:  idFlag,
			Usage: "Sample id",
		},
		&cli.StringFlag{
			Name:  md5Flag,
			Usage: "MD5 of the sample",
		},
		&cli.StringFlag{
			Name:  sha1Flag,
			Usage: "SHA-1 of the sample",
		},
		&cli.StringFlag{
			Name:  sha256Flag,
			Usage: "SHA-256 of the sample",
		},
		&cli.StringFlag{
			Name:    outFlag,
			Aliases: []string{"o"},
			Usage:   "Output file name, defaults to the sample name",
		},
	),
	Action: downloadSampleAction,
}

func downloadSampleAction(ctx context.Context, cmd *cli.Command) error {
	client, _, err := makeClient(cmd)
	if err != nil {
		return err
	}
	sample, err := resolveSample(ctx, client, cmd)
	if err != nil {
		return err
	}

	out := cmd.String(outFlag)
	if out == "" {
		out = sample.Name
	}
	if out == "" {
		out = sample.SHA256
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := client.DownloadSample(ctx, sample.ID, f); err != nil {
		os.Remove(out)
		return err
	}
	fmt.Fprintf(cmd.Writer, "Sample %d written to %s\n", sample.ID, out)
	return nil
}

// resolveSample picks the sample the selector flags describe. Exactly one
// selector must be given; a hash matching several distinct samples is an
// error listing the candidates.
func resolveSample(ctx context.Context, client *api.Client, cmd *cli.Command) (*api.Sample, error) {
	var filter api.SampleFilter
	selectors := 0
	if cmd.Int(idFlag) != 0 {
		selectors++
	}
	if v := cmd.String(md5Flag); v != "" {
		filter.MD5 = v
		selectors++
	}
	if v := cmd.String(sha1Flag); v != "" {
		filter.SHA1 = v
		selectors++
	}
	if v := cmd.String(sha256Flag); v != "" {
		filter.SHA256 = v
		selectors++
	}
	if selectors != 1 {
		return nil, cli.Exit("Please select the sample by exactly one of --id, --md5, --sha1, --sha256", 1)
	}

	if id := cmd.Int(idFlag); id != 0 {
		return client.Sample(ctx, id)
	}

	matches, err := client.Samples(ctx, filter, 100, 0)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no sample matches the given hash")
	case 1:
		return &matches[0], nil
	}
	// md5/sha1 collisions: report instead of guessing
	fmt.Fprintln(cmd.ErrWriter, "The hash matches several samples:")
	for i := range matches {
		fmt.Fprintf(cmd.ErrWriter, "  %d  %s\n", matches[i].ID, matches[i].SHA256)
	}
	return nil, fmt.Errorf("ambiguous hash, select by --id or --sha256")
}

var downloadArchiveCmd = &cli.Command{
	Name:        "archive",
	Description: "Download the result archive of a whole analysis or of a single task.",
	Flags: append(globalFlags(),
		&cli.StringFlag{
			Name:  analysisIDFlag,
			Usage: "Analysis to download the archive for",
		},
		&cli.IntFlag{
			Name:  taskIDFlag,
			Usage: "Task to download the archive for",
		},
		&cli.StringFlag{
			Name:    outFlag,
			Aliases: []string{"o"},
			Usage:   "Output file name",
		},
	),
	Action: downloadArchiveAction,
}

func downloadArchiveAction(ctx context.Context, cmd *cli.Command) error {
	analysisID := cmd.String(analysisIDFlag)
	taskID := cmd.Int(taskIDFlag)
	if (analysisID == "") == (taskID == 0) {
		return cli.Exit("Please provide either --analysis-id or --task-id", 1)
	}
	client, _, err := makeClient(cmd)
	if err != nil {
		return err
	}

	out := cmd.String(outFlag)
	var download func(io.Writer) error
	if analysisID != "" {
		if out == "" {
			analysis, err := client.Analysis(ctx, analysisID)
			if err != nil {
				return err
			}
			out = fmt.Sprintf("%s_archive.zip", analysis.SHA1)
		}
		download = func(w io.Writer) error {
			return client.DownloadAnalysisArchive(ctx, analysisID, w)
		}
	} else {
		if out == "" {
			task, err := client.TaskByID(ctx, taskID)
			if err != nil {
				return err
			}
			out = fmt.Sprintf("%s_archive.zip", task.PlatformCode)
		}
		download = func(w io.Writer) error {
			return client.DownloadTaskArchive(ctx, taskID, w)
		}
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := download(f); err != nil {
		os.Remove(out)
		return err
	}
	fmt.Fprintf(cmd.Writer, "Archive written to %s\n", out)
	return nil
}
