// Package cost joins run telemetry against a pricing catalog.
//
// Task cost is duration in hours times the hourly rate of the task's resource
// type. Storage is billed for the whole run duration at
//
//	max(requested capacity or floor, floor) GiB * run storage rate
//
// so an explicit capacity below the floor is silently raised to the floor.
// Nothing is rounded; display rounding belongs to the report package.
package cost

import (
	"github.com/me/omicsx/internal/pricing"
	"github.com/me/omicsx/pkg/model"
)

// DefaultMinimumStorageGiB is the smallest run storage the service bills.
const DefaultMinimumStorageGiB = 1200

// Compute returns the cost breakdown of exec. A task whose resource type has
// no price, or a catalog without the run storage price, fails the whole
// computation; no partial breakdown is returned.
func Compute(exec *model.Execution, catalog pricing.Catalog, minimumStorageGiB int) (*model.CostBreakdown, error) {
	if exec == nil {
		return nil, model.NewValidationError("execution is required")
	}
	if minimumStorageGiB < 0 {
		return nil, model.NewValidationError("minimum storage must be >= 0, got %d", minimumStorageGiB)
	}

	tasks := make([]model.TaskCost, 0, len(exec.Tasks))
	total := 0.0
	for i := range exec.Tasks {
		tc, err := taskCost(exec.ID, &exec.Tasks[i], catalog)
		if err != nil {
			return nil, err
		}
		total += tc.Cost
		tasks = append(tasks, tc)
	}

	storage, err := storageCost(exec, catalog, minimumStorageGiB)
	if err != nil {
		return nil, err
	}

	return &model.CostBreakdown{
		RunID:         exec.ID,
		Name:          exec.Name,
		WorkflowID:    exec.WorkflowID,
		Status:        exec.Status,
		Tasks:         tasks,
		TotalTaskCost: total,
		Storage:       storage,
		GrandTotal:    total + storage.Cost,
		Final:         exec.StopTime != nil && exec.Status.IsTerminal(),
	}, nil
}

func taskCost(runID string, t *model.Task, catalog pricing.Catalog) (model.TaskCost, error) {
	rate, ok := catalog.Rate(t.InstanceType)
	if !ok {
		return model.TaskCost{}, model.NewUnknownResourceType(t.InstanceType, t.ID)
	}
	hours := t.Duration.Seconds() / 3600
	return model.TaskCost{
		TaskID:        t.ID,
		RunID:         runID,
		Name:          t.Name,
		Status:        t.Status,
		Resources:     t.Resources,
		InstanceType:  t.InstanceType,
		USDPerHour:    rate,
		DurationHours: hours,
		Cost:          hours * rate,
		CreationTime:  t.CreationTime,
		StartTime:     t.StartTime,
		StopTime:      t.StopTime,
		Duration:      t.Duration,
	}, nil
}

func storageCost(exec *model.Execution, catalog pricing.Catalog, floor int) (model.StorageCost, error) {
	rate, ok := catalog.Rate(pricing.RunStorageKey)
	if !ok {
		return model.StorageCost{}, model.NewStoragePricingUnavailable(pricing.RunStorageKey)
	}
	billed := BilledStorageGiB(exec.StorageCapacity, floor)
	hours := exec.Duration.Seconds() / 3600

	var requested *int
	if exec.StorageCapacity != nil {
		v := *exec.StorageCapacity
		requested = &v
	}
	return model.StorageCost{
		RunID:         exec.ID,
		RequestedGiB:  requested,
		BilledGiB:     billed,
		DurationHours: hours,
		USDPerGiBHour: rate,
		Cost:          hours * float64(billed) * rate,
	}, nil
}

// BilledStorageGiB applies the minimum floor to a requested capacity.
// A nil or zero request bills at the floor.
func BilledStorageGiB(requested *int, floor int) int {
	billed := floor
	if requested != nil && *requested > 0 {
		billed = *requested
	}
	if billed < floor {
		billed = floor
	}
	return billed
}
