// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/DCSO/vxcube-go/api"
	"github.com/DCSO/vxcube-go/config"
	"github.com/DCSO/vxcube-go/monitor"
	"github.com/DCSO/vxcube-go/reporter"

	"github.com/NeowayLabs/wabbit"
	"github.com/NeowayLabs/wabbit/amqp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

const reportFlag = "report"

var subscribeCmd = &cli.Command{
	Name:        "subscribe-analysis",
	Aliases:     []string{"subscribe"},
	Description: "Follow the progress of a running analysis until every task has finished, then print the verdicts.",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "analysis-id",
			UsageText: "ANALYSIS_ID",
		},
	},
	Flags: append(globalFlags(),
		&cli.BoolFlag{
			Name:  reportFlag,
			Usage: "Publish a result report to the configured AMQP exchange",
		},
	),
	Action: subscribeAction,
}

func subscribeAction(ctx context.Context, cmd *cli.Command) error {
	analysisID := cmd.StringArg("analysis-id")
	if analysisID == "" {
		return cli.Exit("Please provide an analysis id", 1)
	}
	client, cfg, err := makeClient(cmd)
	if err != nil {
		return err
	}
	analysis, err := followAnalysis(ctx, cmd.Writer, client, analysisID, cfg.Monitor)
	if err != nil {
		return err
	}
	if cmd.Bool(reportFlag) {
		return publishReport(cfg, analysis)
	}
	return nil
}

// followAnalysis prints the live progress feed and, once every task is
// terminal, the per-task verdict lines. It returns the final analysis
// snapshot.
func followAnalysis(ctx context.Context, w io.Writer, f monitor.Fetcher,
	analysisID string, mcfg config.MonitorConfig) (*api.Analysis, error) {

	sub := monitor.Subscribe(ctx, f, analysisID, monitor.Options{
		Interval:    mcfg.Interval,
		MaxInterval: mcfg.MaxInterval,
		RetryBudget: mcfg.RetryBudget,
	})
	for ev := range sub.Events() {
		fmt.Fprintln(w, renderProgress(ev))
	}
	if err := sub.Err(); err != nil {
		return nil, err
	}

	analysis := sub.Analysis()
	fmt.Fprintln(w, "All tasks finished:")
	for i := range analysis.Tasks {
		fmt.Fprintln(w, renderTaskSummary(&analysis.Tasks[i]))
	}
	return analysis, nil
}

// publishReport submits a result report for the finished analysis to the
// configured exchange. Without an AMQP endpoint the report is only logged.
func publishReport(cfg config.Config, analysis *api.Analysis) error {
	if cfg.AMQP.URI == "" {
		log.Info("no AMQP endpoint configured, logging report instead")
		r := reporter.MakeLogReporter()
		defer r.Finish()
		return reporter.SubmitReport(r, analysis)
	}
	r, err := reporter.MakeAMQPReporterWithReconnector(cfg.AMQP.URI,
		cfg.AMQP.User, cfg.AMQP.Password, cfg.AMQP.Exchange,
		log.IsLevelEnabled(log.DebugLevel),
		func(url string) (wabbit.Conn, string, error) {
			conn, err := amqp.Dial(url)
			return conn, "fanout", err
		})
	if err != nil {
		return err
	}
	defer r.Finish()
	return reporter.SubmitReport(r, analysis)
}
