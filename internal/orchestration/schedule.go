package orchestration

import (
	"context"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"manifestflow/internal/logging"
)

// Register publishes the import workflow under name as a paused schedule with
// no calendar, i.e. one that only runs when triggered. Registering the same
// name again replaces the schedule's action with in.
func Register(ctx context.Context, sc client.ScheduleClient, name, taskQueue string, in ImportInput) error {
	action := &client.ScheduleWorkflowAction{
		ID:        name,
		Workflow:  WorkflowName,
		Args:      []interface{}{in},
		TaskQueue: taskQueue,
	}

	_, err := sc.Create(ctx, client.ScheduleOptions{
		ID:      name,
		Spec:    client.ScheduleSpec{},
		Action:  action,
		// Runs of one schedule never overlap.
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Paused:  true,
		Note:    "manifest import, triggered on demand",
	})
	if err == nil {
		logging.L().Info("schedule created", "schedule", name, "task_queue", taskQueue)
		return nil
	}
	if !errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return fmt.Errorf("register %s: %w", name, err)
	}

	h := sc.GetHandle(ctx, name)
	err = h.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(u client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			s := u.Description.Schedule
			s.Action = action
			return &client.ScheduleUpdate{Schedule: &s}, nil
		},
	})
	if err != nil {
		return fmt.Errorf("update schedule %s: %w", name, err)
	}
	logging.L().Info("schedule updated", "schedule", name, "task_queue", taskQueue)
	return nil
}
