// Package scheduler defines the asynq task surface for the
// synchronization workflows: per-appointment sync tasks and the periodic
// backlog sweep.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSyncAppointment = "sync.appointment"

const TaskSyncSweep = "sync.sweep"

type SyncAppointmentPayload struct {
	AppointmentID int64 `json:"appointmentId"`
}

func NewSyncAppointmentTask(payload SyncAppointmentPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncAppointment, data), nil
}

func ParseSyncAppointmentPayload(task *asynq.Task) (SyncAppointmentPayload, error) {
	var payload SyncAppointmentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SyncAppointmentPayload{}, err
	}
	return payload, nil
}

func NewSyncSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSyncSweep, nil)
}
