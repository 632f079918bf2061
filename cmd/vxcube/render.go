// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package main

import (
	"fmt"

	"github.com/DCSO/vxcube-go/api"
	"github.com/DCSO/vxcube-go/monitor"
)

// renderProgress formats one progress line of the live feed.
func renderProgress(ev monitor.ProgressEvent) string {
	return fmt.Sprintf("[%-13s] [%d%%] %s", ev.Platform, ev.Progress, ev.Message)
}

// renderTaskSummary formats the per-task verdict line printed once all
// tasks have finished.
func renderTaskSummary(t *api.Task) string {
	return fmt.Sprintf("Task[%d]-%s [%s] maliciousness: %d",
		t.ID, t.PlatformCode, t.Status, t.Maliciousness)
}
