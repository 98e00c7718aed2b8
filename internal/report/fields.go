package report

import (
	"strconv"
	"time"

	"github.com/me/omicsx/pkg/model"
)

// Field is one labelled value of the run summary.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// runFieldNames is the display name of each run attribute, keyed by the
// service field name. Display order is the slice order.
var runFieldNames = []struct {
	source  string
	display string
}{
	{"id", "run_id"},
	{"name", "name"},
	{"workflowId", "workflow_id"},
	{"status", "status"},
	{"storageCapacity", "storage_capacity"},
	{"creationTime", "creation_time"},
	{"startTime", "start_time"},
	{"stopTime", "stop_time"},
	{"duration", "duration"},
	{"taskCount", "task_count"},
}

// DisplayName returns the display name for a service field, or the field
// itself when it has no entry.
func DisplayName(source string) string {
	for _, f := range runFieldNames {
		if f.source == source {
			return f.display
		}
	}
	return source
}

// RunFields returns the run summary in display order.
func RunFields(exec *model.Execution) []Field {
	values := map[string]string{
		"id":              exec.ID,
		"name":            exec.Name,
		"workflowId":      exec.WorkflowID,
		"status":          string(exec.Status),
		"storageCapacity": "default",
		"creationTime":    formatTime(&exec.CreationTime),
		"startTime":       formatTime(&exec.StartTime),
		"stopTime":        formatTime(exec.StopTime),
		"duration":        exec.Duration.Round(time.Second).String(),
		"taskCount":       strconv.Itoa(len(exec.Tasks)),
	}
	if exec.StorageCapacity != nil {
		values["storageCapacity"] = strconv.Itoa(*exec.StorageCapacity)
	}

	fields := make([]Field, 0, len(runFieldNames))
	for _, f := range runFieldNames {
		fields = append(fields, Field{Name: f.display, Value: values[f.source]})
	}
	return fields
}
