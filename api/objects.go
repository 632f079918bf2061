// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a single per-platform task as
// reported by the server. "in queue" and "processing" are the non-terminal
// states; everything else is terminal.
type TaskStatus string

// Task states used on the wire.
const (
	StatusInQueue    TaskStatus = "in queue"
	StatusProcessing TaskStatus = "processing"
	StatusSuccessful TaskStatus = "successful"
	StatusFailed     TaskStatus = "failed"
	StatusDeleted    TaskStatus = "deleted"
)

// Terminal reports whether no further state transitions can occur.
func (s TaskStatus) Terminal() bool {
	return s != StatusInQueue && s != StatusProcessing
}

// AnalysisID identifies an analysis. Depending on the API version the
// server sends it as a number (1.x) or a UUID string (2.0+), so it accepts
// both on unmarshalling.
type AnalysisID string

// UnmarshalJSON accepts both string and numeric identifiers.
func (id *AnalysisID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty analysis id")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = AnalysisID(s)
		return nil
	}
	*id = AnalysisID(strings.TrimSpace(string(data)))
	return nil
}

// Sample is an uploaded file, immutable once created.
type Sample struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	FormatName string    `json:"format_name"`
	UploadDate time.Time `json:"upload_date"`
	MD5        string    `json:"md5"`
	SHA1       string    `json:"sha1"`
	SHA256     string    `json:"sha256"`
	IsX64      bool      `json:"is_x64"`
	Platforms  []string  `json:"platforms"`
}

// Task is the per-platform execution unit within an analysis. Message and
// Progress are only populated while the task is processing; Maliciousness,
// Verdict and Rules only once it finished successfully.
type Task struct {
	ID            int                 `json:"id"`
	Status        TaskStatus          `json:"status"`
	PlatformCode  string              `json:"platform_code"`
	StartDate     time.Time           `json:"start_date"`
	EndDate       time.Time           `json:"end_date"`
	Maliciousness int                 `json:"maliciousness"`
	Message       string              `json:"message"`
	Progress      int                 `json:"progress"`
	Verdict       string              `json:"verdict"`
	Rules         map[string][]string `json:"rules"`
}

// IsFinished reports whether the task reached a terminal state.
func (t *Task) IsFinished() bool {
	return t.Status.Terminal()
}

// IsSuccess reports whether the task finished successfully.
func (t *Task) IsSuccess() bool {
	return t.Status == StatusSuccessful
}

// IsFailed reports whether the task failed.
func (t *Task) IsFailed() bool {
	return t.Status == StatusFailed
}

// IsAndroid reports whether the task ran on an Android platform.
func (t *Task) IsAndroid() bool {
	return strings.HasPrefix(t.PlatformCode, "android")
}

// Analysis is one submitted sandbox job spanning one or more platforms. The
// task set is fixed once the analysis has been started.
type Analysis struct {
	ID         AnalysisID `json:"id"`
	SHA1       string     `json:"sha1"`
	SampleID   int        `json:"sample_id"`
	Size       int64      `json:"size"`
	FormatName string     `json:"format_name"`
	StartDate  time.Time  `json:"start_date"`
	UserName   string     `json:"user_name"`
	Tasks      []Task     `json:"tasks"`
}

// IsFinished reports whether every task reached a terminal state.
func (a *Analysis) IsFinished() bool {
	for i := range a.Tasks {
		if !a.Tasks[i].IsFinished() {
			return false
		}
	}
	return true
}

// TotalProgress is the mean progress over all tasks, with finished tasks
// counted as 100%.
func (a *Analysis) TotalProgress() float64 {
	if len(a.Tasks) == 0 {
		return 0
	}
	var total int
	for i := range a.Tasks {
		if a.Tasks[i].IsFinished() {
			total += 100
		} else {
			total += a.Tasks[i].Progress
		}
	}
	return float64(total) / float64(len(a.Tasks))
}

// Task returns the task with the given id, or nil.
func (a *Analysis) Task(id int) *Task {
	for i := range a.Tasks {
		if a.Tasks[i].ID == id {
			return &a.Tasks[i]
		}
	}
	return nil
}

// Format describes a file format the sandbox can analyse.
type Format struct {
	Name      string   `json:"name"`
	GroupName string   `json:"group_name"`
	Platforms []string `json:"platforms"`
}

// Platform describes an execution environment offered by the sandbox.
type Platform struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	OSCode string `json:"os_code"`
}

// License describes the account's current licensing state.
type License struct {
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	UploadsSpent  int       `json:"uploads_spent"`
	UploadsTotal  int       `json:"uploads_total"`
	VNCAllowed    bool      `json:"vnc_allowed"`
	UploadMaxSize int64     `json:"upload_max_size"`
	MaxRunTime    int       `json:"max_run_time"`
}

// Session is an open API session bound to a key.
type Session struct {
	APIKey    string    `json:"api_key"`
	StartDate time.Time `json:"start_date"`
}

// ArtifactPage is one page of a task artifact listing (dumps, drops,
// network captures, API log). Item layout varies per artifact kind, so the
// entries stay generic.
type ArtifactPage struct {
	TotalCount int                      `json:"total_count"`
	Items      []map[string]interface{} `json:"items"`
}

// StorageInfo lists files and directories available in a task's result
// archive.
type StorageInfo struct {
	Files       []string `json:"files"`
	Directories []string `json:"directories"`
}
