package model

import "time"

// Price units as they appear in the offer document's price dimensions.
const (
	UnitHours    = "hours"
	UnitGiBHours = "GiB-hours"
)

// PriceEntry is the USD price of one resource type per Unit.
type PriceEntry struct {
	Unit   string  `json:"unit"` // UnitHours, or UnitGiBHours for run storage
	Amount float64 `json:"amount"`
	// SKU is the catalog product code the entry came from.
	SKU string `json:"sku,omitempty"`
}

// TaskCost is the cost of one task at its resolved hourly rate.
type TaskCost struct {
	TaskID        string        `json:"task_id"`
	RunID         string        `json:"run_id"`
	Name          string        `json:"name"`
	Status        TaskStatus    `json:"status"`
	Resources     Resources     `json:"resources"`
	InstanceType  string        `json:"instance_type"`
	USDPerHour    float64       `json:"usd_per_hour"`
	DurationHours float64       `json:"duration_hr"`
	Cost          float64       `json:"cost"`
	CreationTime  time.Time     `json:"creation_time"`
	StartTime     time.Time     `json:"start_time"`
	StopTime      *time.Time    `json:"stop_time,omitempty"`
	Duration      time.Duration `json:"-"`
}

// StorageCost is the run storage charge for the whole execution.
type StorageCost struct {
	RunID string `json:"run_id"`
	// RequestedGiB is the capacity on the run, nil when unset.
	RequestedGiB *int `json:"requested_gib,omitempty"`
	// BilledGiB is the capacity after the minimum floor is applied.
	BilledGiB     int     `json:"storage_gib"`
	DurationHours float64 `json:"run_duration_hr"`
	USDPerGiBHour float64 `json:"usd_per_hour"`
	Cost          float64 `json:"cost"`
}

// CostBreakdown is the full cost report for one execution.
type CostBreakdown struct {
	RunID         string      `json:"run_id"`
	Name          string      `json:"name"`
	WorkflowID    string      `json:"workflow_id"`
	Status        RunStatus   `json:"status"`
	Tasks         []TaskCost  `json:"task_costs"`
	TotalTaskCost float64     `json:"total_task_cost"`
	Storage       StorageCost `json:"storage_cost"`
	GrandTotal    float64     `json:"total"`
	// Final is false while the run (and so the cost) can still grow.
	Final bool `json:"final"`
}
