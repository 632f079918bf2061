// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
)

const testBase = "https://sandbox.example.com/"

func testClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient("test-key", testBase, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewClientURL(t *testing.T) {
	c := testClient(t)
	if got := c.BaseURL.String(); got != testBase+"api-2.0/" {
		t.Errorf("unexpected versioned URL %q", got)
	}
	c, err := NewClient("k", testBase, 1.1)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.BaseURL.String(); got != testBase+"api-1.1/" {
		t.Errorf("unexpected versioned URL %q", got)
	}
}

func TestLogin(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", testBase+"api-2.0/login",
		httpmock.NewStringResponder(200, `{"api_key": "fresh-key"}`))

	c, err := NewClient("", testBase, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Login(context.Background(), "user", "pass", false); err != nil {
		t.Fatal(err)
	}
	if c.APIKey != "fresh-key" {
		t.Errorf("expected key to be installed, got %q", c.APIKey)
	}
}

func TestLoginBadResponse(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", testBase+"api-2.0/login",
		httpmock.NewStringResponder(200, `{"unexpected": true}`))

	c, err := NewClient("", testBase, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Login(context.Background(), "user", "pass", false); err == nil {
		t.Fatal("expected error on response without api_key")
	}
}

func TestAuthHeaderIsSent(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", testBase+"api-2.0/formats",
		func(req *http.Request) (*http.Response, error) {
			if got := req.Header.Get("Authorization"); got != "api-key test-key" {
				t.Errorf("unexpected Authorization header: %q", got)
			}
			return httpmock.NewStringResponse(200, `[{"name": "exe", "group_name": "windows", "platforms": ["win7x86"]}]`), nil
		})

	formats, err := testClient(t).Formats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(formats) != 1 || formats[0].Name != "exe" {
		t.Errorf("unexpected formats: %+v", formats)
	}
}

func TestGetAnalysis(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", testBase+"api-2.0/analyses/2bb1629b",
		httpmock.NewStringResponder(200, `{
			"id": "2bb1629b",
			"sample_id": 23,
			"sha1": "da39a3ee5e6b4b0d3255bfef95601890afd80709",
			"tasks": [
				{"id": 48151, "status": "processing", "platform_code": "win7x86", "progress": 12, "message": "unpacking"},
				{"id": 62342, "status": "in queue", "platform_code": "win10x64"}
			]
		}`))

	a, err := testClient(t).Analysis(context.Background(), "2bb1629b")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != "2bb1629b" || len(a.Tasks) != 2 {
		t.Fatalf("unexpected analysis: %+v", a)
	}
	if a.IsFinished() {
		t.Error("analysis with queued tasks cannot be finished")
	}
	if a.Tasks[0].Progress != 12 || a.Tasks[0].Message != "unpacking" {
		t.Errorf("unexpected task state: %+v", a.Tasks[0])
	}
}

func TestGetAnalysisNumericID(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	// API 1.x reports numeric analysis ids
	httpmock.RegisterResponder("GET", testBase+"api-2.0/analyses/42",
		httpmock.NewStringResponder(200, `{"id": 42, "tasks": []}`))

	a, err := testClient(t).Analysis(context.Background(), "42")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != "42" {
		t.Errorf("expected numeric id to decode as string, got %q", a.ID)
	}
}

func TestStartAnalysis(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", testBase+"api-2.0/analyses",
		func(req *http.Request) (*http.Response, error) {
			var body StartAnalysisRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.SampleID != 23 || len(body.Platforms) != 2 {
				t.Errorf("unexpected request: %+v", body)
			}
			return httpmock.NewStringResponse(200, `{
				"id": "2bb1629b",
				"tasks": [
					{"id": 1, "status": "in queue", "platform_code": "win7x86"},
					{"id": 2, "status": "in queue", "platform_code": "win10x64"}
				]
			}`), nil
		})

	a, err := testClient(t).StartAnalysis(context.Background(), StartAnalysisRequest{
		SampleID:     23,
		Platforms:    []string{"win7x86", "win10x64"},
		AnalysisTime: 60,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Tasks) != 2 || a.Tasks[0].PlatformCode != "win7x86" {
		t.Errorf("unexpected analysis: %+v", a)
	}
}

func TestErrorMapping(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	cases := []struct {
		status   int
		body     string
		sentinel error
		message  string
	}{
		{401, `{"error": "bad api key"}`, ErrAuth, "bad api key"},
		{404, `{"message": "analysis not found"}`, ErrNotFound, "analysis not found"},
		{500, `broken`, nil, "unknown error"},
	}
	c := testClient(t)
	for _, tc := range cases {
		httpmock.RegisterResponder("GET", testBase+"api-2.0/license",
			httpmock.NewStringResponder(tc.status, tc.body))
		_, err := c.License(context.Background())
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("status %d: expected APIError, got %T", tc.status, err)
		}
		if apiErr.Message != tc.message {
			t.Errorf("status %d: message %q, want %q", tc.status, apiErr.Message, tc.message)
		}
		if tc.sentinel != nil && !errors.Is(err, tc.sentinel) {
			t.Errorf("status %d: expected sentinel %v", tc.status, tc.sentinel)
		}
	}
}

func TestBadRequestFieldErrors(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", testBase+"api-2.0/analyses",
		httpmock.NewStringResponder(400, `{"platforms": ["unknown platform", "empty list"], "analysis_time": "too small"}`))

	_, err := testClient(t).StartAnalysis(context.Background(), StartAnalysisRequest{SampleID: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	for _, want := range []string{"[platforms] unknown platform; empty list", "[analysis_time] too small"} {
		if !strings.Contains(apiErr.Message, want) {
			t.Errorf("message %q misses %q", apiErr.Message, want)
		}
	}
}

func TestTransientClassification(t *testing.T) {
	if IsTransient(&APIError{StatusCode: 401}) {
		t.Error("auth errors are not transient")
	}
	if IsTransient(&APIError{StatusCode: 404}) {
		t.Error("not-found errors are not transient")
	}
	if !IsTransient(&APIError{StatusCode: 502}) {
		t.Error("server errors are transient")
	}
	if !IsTransient(&APIError{StatusCode: 429}) {
		t.Error("throttling is transient")
	}
	if !IsTransient(errors.New("connection reset by peer")) {
		t.Error("transport errors are transient")
	}
	if IsTransient(context.Canceled) {
		t.Error("cancellation is not transient")
	}
}

func TestSendRetriesOnceOnTransportError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("GET", testBase+"api-2.0/formats",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("connection reset by peer")
			}
			return httpmock.NewStringResponse(200, `[]`), nil
		})

	if _, err := testClient(t).Formats(context.Background()); err != nil {
		t.Fatalf("expected the re-dial to recover, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestUploadSampleRetriesOnceOnTransportError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("POST", testBase+"api-2.0/samples",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("connection reset by peer")
			}
			if ct := req.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/form-data") {
				t.Errorf("retried request lost its content type: %q", ct)
			}
			return httpmock.NewStringResponse(200, `{"id": 23}`), nil
		})

	samples, err := testClient(t).UploadSample(context.Background(), "evil.exe", strings.NewReader("MZ"))
	if err != nil {
		t.Fatalf("expected the re-dial to recover, got %v", err)
	}
	if len(samples) != 1 || samples[0].ID != 23 {
		t.Errorf("unexpected samples: %+v", samples)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestDownloadSample(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", testBase+"api-2.0/samples/23/download",
		httpmock.NewBytesResponder(200, []byte("MZ binary content")))

	var buf bytes.Buffer
	if err := testClient(t).DownloadSample(context.Background(), 23, &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "MZ binary content" {
		t.Errorf("unexpected download content: %q", buf.String())
	}
}

func TestEachSamplePagination(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	pages := []string{
		`[{"id": 1, "sha256": "aa"}, {"id": 2, "sha256": "bb"}]`,
		`[{"id": 3, "sha256": "cc"}]`,
	}
	call := 0
	httpmock.RegisterResponder("GET", testBase+"api-2.0/samples",
		func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(200, pages[call])
			call++
			return resp, nil
		})

	var ids []int
	err := testClient(t).EachSample(context.Background(), SampleFilter{}, 2, func(s *Sample) error {
		ids = append(ids, s.ID)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[2] != 3 {
		t.Errorf("unexpected ids: %v", ids)
	}
	if call != 2 {
		t.Errorf("expected 2 page fetches, got %d", call)
	}
}

func TestUploadSample(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", testBase+"api-2.0/samples",
		func(req *http.Request) (*http.Response, error) {
			if ct := req.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/form-data") {
				t.Errorf("unexpected content type %q", ct)
			}
			return httpmock.NewStringResponse(200, `{"id": 23, "name": "evil.exe", "format_name": "exe", "platforms": ["win7x86", "win10x64"]}`), nil
		})

	samples, err := testClient(t).UploadSample(context.Background(), "evil.exe", strings.NewReader("MZ"))
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 || samples[0].ID != 23 || samples[0].FormatName != "exe" {
		t.Errorf("unexpected samples: %+v", samples)
	}
}

func TestUploadSampleArchiveList(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", testBase+"api-2.0/samples",
		httpmock.NewStringResponder(200, `[{"id": 1}, {"id": 2}]`))

	samples, err := testClient(t).UploadSample(context.Background(), "bundle.zip", strings.NewReader("PK"))
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 {
		t.Errorf("expected 2 samples, got %+v", samples)
	}
}

func TestTaskArtifactsEnvelope(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", testBase+"api-2.0/tasks/42/dumps",
		httpmock.NewStringResponder(200, `{"total_count": 2, "items": [{"sha1": "aa"}, {"sha1": null}]}`))

	page, err := testClient(t).TaskArtifacts(context.Background(), 42, ArtifactDumps, 100, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalCount != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0]["sha1"] != "aa" {
		t.Errorf("unexpected item: %+v", page.Items[0])
	}
}
