package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/fabricflow/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskETDAlertScan classifies open orders and publishes ETD alerts.
	TaskETDAlertScan = "alerts:etd_scan"
	// TaskApprovalMigrate runs one approval vocabulary migration pass.
	TaskApprovalMigrate = "approvals:migrate"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ETDAlertScanPayload parameterises a scan. It is empty today; the struct
// keeps the task payload forward compatible.
type ETDAlertScanPayload struct {
	Trigger string `json:"trigger,omitempty"`
}

// NewETDAlertScanTask constructs the scan task.
func NewETDAlertScanTask(trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(ETDAlertScanPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskETDAlertScan, data), nil
}

// ApprovalMigratePayload selects the vocabulary version to migrate to.
type ApprovalMigratePayload struct {
	TargetVersion int `json:"target_version"`
}

// NewApprovalMigrateTask constructs the migration task.
func NewApprovalMigrateTask(target int) (*asynq.Task, error) {
	data, err := json.Marshal(ApprovalMigratePayload{TargetVersion: target})
	if err != nil {
		return nil, err
	}
	// A pass holds an advisory lock for its whole run; never run two at once.
	return asynq.NewTask(TaskApprovalMigrate, data, asynq.MaxRetry(1), asynq.Unique(time.Hour)), nil
}
