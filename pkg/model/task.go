package model

import (
	"time"
)

// Resources is the compute shape a task requested.
type Resources struct {
	CPUs      int `json:"cpus"`
	MemoryGiB int `json:"memory_gib"`
	GPUs      int `json:"gpus"`
}

// Task is one compute unit of work within an Execution.
type Task struct {
	ID   string `json:"task_id"`
	Name string `json:"name"`
	// Short is the last ':'-separated component of Name (the process name).
	Short        string     `json:"task"`
	Status       TaskStatus `json:"status"`
	Resources    Resources  `json:"resources"`
	InstanceType string     `json:"instance_type"`
	CreationTime time.Time  `json:"creation_time"`
	StartTime    time.Time  `json:"start_time"`
	// StopTime is nil while the task is still running.
	StopTime *time.Time `json:"stop_time,omitempty"`

	// Duration is stop-start, or now-start for running tasks. Never negative.
	Duration time.Duration `json:"duration"`
}

// Running returns true if the task has no stop time yet.
func (t *Task) Running() bool {
	return t.StopTime == nil
}

// Execution is one run of a registered workflow together with its tasks.
type Execution struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	WorkflowID string    `json:"workflow_id"`
	Status     RunStatus `json:"status"`
	// StorageCapacity is the requested run storage in GiB; nil means the
	// service default applies.
	StorageCapacity *int       `json:"storage_capacity,omitempty"`
	CreationTime    time.Time  `json:"creation_time"`
	StartTime       time.Time  `json:"start_time"`
	StopTime        *time.Time `json:"stop_time,omitempty"`
	Tasks           []Task     `json:"tasks"`

	Duration time.Duration `json:"duration"`

	// SnapshotTime is the single "now" used for every open-ended duration.
	SnapshotTime time.Time `json:"snapshot_time"`
}
