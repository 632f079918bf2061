// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// SampleFilter narrows down Samples listings. Zero values are omitted from
// the request.
type SampleFilter struct {
	MD5             string `json:"md5,omitempty"`
	SHA1            string `json:"sha1,omitempty"`
	SHA256          string `json:"sha256,omitempty"`
	FormatName      string `json:"format_name,omitempty"`
	FormatGroupName string `json:"format_group_name,omitempty"`
}

type sampleListRequest struct {
	Count  int `json:"count"`
	Offset int `json:"offset"`
	SampleFilter
}

// Sample fetches a single sample by id.
func (c *Client) Sample(ctx context.Context, sampleID int) (*Sample, error) {
	log.Debugf("get sample %d", sampleID)
	var s Sample
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("samples/%d", sampleID), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Samples fetches one page of the (filtered) sample listing.
func (c *Client) Samples(ctx context.Context, filter SampleFilter, count, offset int) ([]Sample, error) {
	log.Debug("get list of samples")
	var samples []Sample
	req := sampleListRequest{Count: count, Offset: offset, SampleFilter: filter}
	err := c.doJSON(ctx, http.MethodGet, "samples", req, &samples)
	return samples, err
}

// EachSample calls fn for every sample matching the filter, fetching pages
// of perPage entries until the server returns a short page. A non-nil error
// from fn stops the iteration.
func (c *Client) EachSample(ctx context.Context, filter SampleFilter, perPage int, fn func(*Sample) error) error {
	if perPage <= 0 {
		perPage = 100
	}
	for offset := 0; ; offset += perPage {
		page, err := c.Samples(ctx, filter, perPage, offset)
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

// UploadSample uploads file content under the given name. The server
// detects the format and the set of platforms the sample can run on. An
// archive upload can expand into several samples, hence the slice.
func (c *Client) UploadSample(ctx context.Context, name string, r io.Reader) ([]Sample, error) {
	log.Debugf("upload sample %s", name)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err = io.Copy(part, r); err != nil {
		return nil, err
	}
	if err = mw.Close(); err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, http.MethodPost, "samples", buf.Bytes(), mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, data),
		}
	}

	// single object or list, depending on the uploaded file
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var samples []Sample
		err = json.Unmarshal(data, &samples)
		return samples, err
	}
	var s Sample
	if err = json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return []Sample{s}, nil
}

// DownloadSample streams the original sample content into w.
func (c *Client) DownloadSample(ctx context.Context, sampleID int, w io.Writer) error {
	log.Debugf("download sample %d", sampleID)
	return c.download(ctx, fmt.Sprintf("samples/%d/download", sampleID), nil, w)
}
