package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueScan marks aged core-exchange orders overdue.
	TaskOverdueScan = "orders:overdue_scan"
)

// OverdueScanPayload parameterises the overdue scan.
type OverdueScanPayload struct {
	AfterDays int `json:"after_days"`
}

// NewOverdueScanTask constructs the Asynq task.
func NewOverdueScanTask(payload OverdueScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueScan, data), nil
}
