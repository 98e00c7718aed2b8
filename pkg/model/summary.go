package model

import "time"

// RunSummary is one row of a run listing.
type RunSummary struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	WorkflowID      string     `json:"workflow_id"`
	Status          RunStatus  `json:"status"`
	StorageCapacity *int       `json:"storage_capacity,omitempty"`
	CreationTime    time.Time  `json:"creation_time"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	StopTime        *time.Time `json:"stop_time,omitempty"`
}

// WorkflowSummary is one row of a workflow listing.
type WorkflowSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	Type         string    `json:"type"`
	Digest       string    `json:"digest,omitempty"`
	CreationTime time.Time `json:"creation_time"`
}
