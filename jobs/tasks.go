package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegritySweep scans the assignment relations for orphaned edges.
	TaskIntegritySweep = "rbac:integrity_sweep"
	// TaskGuestCheck verifies the configured guest role exists.
	TaskGuestCheck = "rbac:guest_check"
)

// NewIntegritySweepTask constructs the sweep task. The task carries no
// payload; everything it needs comes from the database.
func NewIntegritySweepTask() *asynq.Task {
	return asynq.NewTask(TaskIntegritySweep, nil)
}

// NewGuestCheckTask constructs the guest-role presence check task.
func NewGuestCheckTask() *asynq.Task {
	return asynq.NewTask(TaskGuestCheck, nil)
}
