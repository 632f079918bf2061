// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// AnalysisFilter narrows down Analyses listings.
type AnalysisFilter struct {
	FormatGroupName string `json:"format_group_name,omitempty"`
}

type analysisListRequest struct {
	Count  int `json:"count"`
	Offset int `json:"offset"`
	AnalysisFilter
}

// StartAnalysisRequest describes a new analysis. SampleID and Platforms are
// mandatory; the rest falls back to server defaults when zero.
type StartAnalysisRequest struct {
	SampleID     int      `json:"sample_id"`
	Platforms    []string `json:"platforms"`
	AnalysisTime int      `json:"analysis_time,omitempty"`
	FormatName   string   `json:"format_name,omitempty"`
	CustomCmd    string   `json:"custom_cmd,omitempty"`
}

// Analysis fetches the current state of an analysis including all of its
// tasks.
func (c *Client) Analysis(ctx context.Context, analysisID string) (*Analysis, error) {
	log.Debugf("get analysis %s", analysisID)
	var a Analysis
	if err := c.doJSON(ctx, http.MethodGet, "analyses/"+analysisID, nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Analyses fetches one page of the (filtered) analysis listing.
func (c *Client) Analyses(ctx context.Context, filter AnalysisFilter, count, offset int) ([]Analysis, error) {
	log.Debug("get analysis list")
	var analyses []Analysis
	req := analysisListRequest{Count: count, Offset: offset, AnalysisFilter: filter}
	err := c.doJSON(ctx, http.MethodGet, "analyses", req, &analyses)
	return analyses, err
}

// EachAnalysis calls fn for every analysis matching the filter, fetching
// pages of perPage entries until the server returns a short page.
func (c *Client) EachAnalysis(ctx context.Context, filter AnalysisFilter, perPage int, fn func(*Analysis) error) error {
	if perPage <= 0 {
		perPage = 100
	}
	for offset := 0; ; offset += perPage {
		page, err := c.Analyses(ctx, filter, perPage, offset)
		if err != nil {
			return err
		}
		for i := range page {
			if err := fn(&page[i]); err != nil {
				return err
			}
		}
		if len(page) < perPage {
			return nil
		}
	}
}

// StartAnalysis submits a sample for execution on the requested platforms.
// The returned analysis owns one task per platform, in request order.
func (c *Client) StartAnalysis(ctx context.Context, req StartAnalysisRequest) (*Analysis, error) {
	log.Debugf("start analysis of sample %d on %v", req.SampleID, req.Platforms)
	var a Analysis
	if err := c.doJSON(ctx, http.MethodPost, "analyses", req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// RestartAnalysis re-runs all tasks of an analysis and returns the updated
// state.
func (c *Client) RestartAnalysis(ctx context.Context, analysisID string) (*Analysis, error) {
	log.Debugf("restart analysis %s", analysisID)
	var a Analysis
	if err := c.doJSON(ctx, http.MethodPost, "analyses/"+analysisID+"/restart", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAnalysis removes an analysis and all of its results.
func (c *Client) DeleteAnalysis(ctx context.Context, analysisID string) error {
	log.Debugf("delete analysis %s", analysisID)
	return c.doJSON(ctx, http.MethodDelete, "analyses/"+analysisID, nil, nil)
}

// DownloadAnalysisArchive streams the result archive covering all tasks of
// an analysis into w.
func (c *Client) DownloadAnalysisArchive(ctx context.Context, analysisID string, w io.Writer) error {
	log.Debugf("download archive of analysis %s", analysisID)
	return c.download(ctx, "analyses/"+analysisID+"/archive", nil, w)
}

// DownloadAnalysisSample streams the analysed sample into w.
func (c *Client) DownloadAnalysisSample(ctx context.Context, analysisID string, w io.Writer) error {
	log.Debugf("download sample of analysis %s", analysisID)
	return c.download(ctx, "analyses/"+analysisID+"/sample", nil, w)
}

// TaskByID fetches a single task.
func (c *Client) TaskByID(ctx context.Context, taskID int) (*Task, error) {
	log.Debugf("get task %d", taskID)
	var t Task
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("tasks/%d", taskID), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
