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

// Task artifact kinds served under tasks/<id>/<kind>.
const (
	ArtifactDumps    = "dumps"
	ArtifactDrops    = "drops"
	ArtifactNetworks = "networks"
	ArtifactAPILog   = "api_log"
)

type artifactRequest struct {
	Count  int    `json:"count"`
	Offset int    `json:"offset"`
	Search string `json:"search,omitempty"`
}

// TaskArtifacts fetches one page of a task's artifact listing of the given
// kind (ArtifactDumps, ArtifactDrops, ...), optionally filtered by search.
func (c *Client) TaskArtifacts(ctx context.Context, taskID int, kind string, count, offset int, search string) (*ArtifactPage, error) {
	log.Debugf("get %s of task %d", kind, taskID)
	var page ArtifactPage
	req := artifactRequest{Count: count, Offset: offset, Search: search}
	path := fmt.Sprintf("tasks/%d/%s", taskID, kind)
	if err := c.doJSON(ctx, http.MethodGet, path, req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// EachTaskArtifact calls fn for every artifact entry of the given kind,
// fetching pages of perPage entries until the server returns a short page.
func (c *Client) EachTaskArtifact(ctx context.Context, taskID int, kind string, perPage int, search string, fn func(map[string]interface{}) error) error {
	if perPage <= 0 {
		perPage = 100
	}
	for offset := 0; ; offset += perPage {
		page, err := c.TaskArtifacts(ctx, taskID, kind, perPage, offset, search)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
		if len(page.Items) < perPage {
			return nil
		}
	}
}

// TaskStorage lists the files and directories contained in the task's
// result archive.
func (c *Client) TaskStorage(ctx context.Context, taskID int) (*StorageInfo, error) {
	log.Debugf("get archive storage listing of task %d", taskID)
	var info StorageInfo
	path := fmt.Sprintf("tasks/%d/archive_storage", taskID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DownloadTaskStorageFile streams a single file from the task's result
// archive into w.
func (c *Client) DownloadTaskStorageFile(ctx context.Context, taskID int, storagePath string, w io.Writer) error {
	log.Debugf("download %s from archive of task %d", storagePath, taskID)
	payload := map[string]string{"path": storagePath}
	return c.download(ctx, fmt.Sprintf("tasks/%d/archive_storage", taskID), payload, w)
}

// RestartTask re-runs a failed or deleted task and returns its new state.
func (c *Client) RestartTask(ctx context.Context, taskID int) (*Task, error) {
	log.Debugf("restart task %d", taskID)
	var t Task
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("tasks/%d/restart", taskID), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DownloadTaskArchive streams the task's result archive into w.
func (c *Client) DownloadTaskArchive(ctx context.Context, taskID int, w io.Writer) error {
	log.Debugf("download archive of task %d", taskID)
	return c.download(ctx, fmt.Sprintf("tasks/%d/archive", taskID), nil, w)
}

// DownloadTaskReport streams the task's analysis report into w.
func (c *Client) DownloadTaskReport(ctx context.Context, taskID int, w io.Writer) error {
	log.Debugf("download report of task %d", taskID)
	return c.download(ctx, fmt.Sprintf("tasks/%d/report", taskID), nil, w)
}

// DownloadTaskSample streams the sample the task executed into w.
func (c *Client) DownloadTaskSample(ctx context.Context, taskID int, w io.Writer) error {
	log.Debugf("download sample of task %d", taskID)
	return c.download(ctx, fmt.Sprintf("tasks/%d/sample", taskID), nil, w)
}
