package scheduler

import (
	"encoding/json"

	"itou_backend/internal/events"

	"github.com/hibiken/asynq"
)

const TaskReconcilePoleEmploiApprovals = "approvals.reconcile"

const TaskNotifyProlongationDeclared = "approvals.prolongation.notify"

type ReconcilePayload struct {
	WetRun bool `json:"wetRun"`
}

func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcilePoleEmploiApprovals, data), nil
}

func ParseReconcilePayload(task *asynq.Task) (ReconcilePayload, error) {
	var payload ReconcilePayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReconcilePayload{}, err
	}
	return payload, nil
}

// NewProlongationNotifyTask carries the whole event so the worker does not
// need database access to send the email.
func NewProlongationNotifyTask(event events.ProlongationDeclared) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyProlongationDeclared, data), nil
}

func ParseProlongationNotifyPayload(task *asynq.Task) (events.ProlongationDeclared, error) {
	var event events.ProlongationDeclared
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return events.ProlongationDeclared{}, err
	}
	return event, nil
}
