// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/DCSO/vxcube-go/api"
	"github.com/DCSO/vxcube-go/config"
	"github.com/DCSO/vxcube-go/samplecache"
	"github.com/DCSO/vxcube-go/util"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

const forceFlag = "force"

var uploadCmd = &cli.Command{
	Name:        "upload",
	Description: "Upload a file as a new sample. Re-uploads of a file already known locally are skipped unless forced.",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "path",
			UsageText: "FILE",
		},
	},
	Flags: append(globalFlags(),
		&cli.BoolFlag{
			Name:  forceFlag,
			Usage: "Upload even if the file was uploaded before",
		},
	),
	Action: uploadAction,
}

func uploadAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return cli.Exit("Please provide a file to upload", 1)
	}

	hashes, err := util.HashFile(path)
	if err != nil {
		return err
	}
	log.Debugf("sha256 %s", hashes.Sha256)
	if mimetype := util.MagicFromFile(path); mimetype != "" {
		log.Debugf("local file type: %s", mimetype)
	}

	client, _, err := makeClient(cmd)
	if err != nil {
		return err
	}

	cacheDir, err := config.Dir()
	if err != nil {
		return err
	}
	if err = os.MkdirAll(cacheDir, 0700); err != nil {
		return err
	}
	cache, err := samplecache.Open(cacheDir)
	if err != nil {
		return err
	}
	defer cache.Close()

	if !cmd.Bool(forceFlag) {
		if entry, err := cache.Get(hashes.Sha256); err == nil {
			fmt.Fprintf(cmd.Writer, "Already uploaded as sample %d on %s\n",
				entry.Sample.ID, entry.Uploaded.Format("2006-01-02"))
			printSampleInfo(cmd, &entry.Sample)
			return nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	samples, err := client.UploadSample(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	for i := range samples {
		if err := cache.Put(hashes, samples[i]); err != nil {
			log.Warnf("could not cache sample %d: %v", samples[i].ID, err)
		}
		printSampleInfo(cmd, &samples[i])
	}
	return nil
}

func printSampleInfo(cmd *cli.Command, s *api.Sample) {
	fmt.Fprintf(cmd.Writer, "Sample %d (%s)\n", s.ID, s.Name)
	if s.FormatName == "" {
		log.Warn("the sandbox did not recognize the file format")
		return
	}
	fmt.Fprintf(cmd.Writer, "  format:    %s\n", s.FormatName)
	fmt.Fprintf(cmd.Writer, "  platforms: %s\n", strings.Join(s.Platforms, ", "))
}
