package spawner

import (
	"context"
	"time"

	"github.com/hubfleet/hubfleet/pkg/metrics"
	"github.com/hubfleet/hubfleet/pkg/types"
)

// PollStatus classifies one liveness poll.
type PollStatus string

const (
	// PollHealthy means the task reports the engine's running state.
	PollHealthy PollStatus = "healthy"

	// PollUnhealthy means a task exists but is not running; the snapshot
	// carries its reported fields for diagnostics.
	PollUnhealthy PollStatus = "unhealthy"

	// PollGone means no task was found. A session ending externally is a
	// normal terminal outcome, not an error.
	PollGone PollStatus = "gone"
)

// PollResult is the outcome of one liveness poll.
type PollResult struct {
	Status   PollStatus
	Snapshot *types.TaskSnapshot
}

// Poll checks the session's running task once. Absence never raises; only
// unexpected engine failures and consistency violations return an error.
func (s *Spawner) Poll(ctx context.Context) (PollResult, error) {
	task, err := s.GetTask(ctx)
	if err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		return PollResult{}, err
	}
	if task == nil {
		s.log.Warn().Msg("task not found")
		metrics.PollsTotal.WithLabelValues(string(PollGone)).Inc()
		return PollResult{Status: PollGone}, nil
	}

	s.log.Debug().
		Str("id", shortID(s.serviceID)).
		Str("state", string(task.Status.State)).
		Msg("task status")

	if task.Status.State == types.TaskStateRunning {
		metrics.PollsTotal.WithLabelValues(string(PollHealthy)).Inc()
		return PollResult{Status: PollHealthy}, nil
	}

	metrics.PollsTotal.WithLabelValues(string(PollUnhealthy)).Inc()
	return PollResult{
		Status:   PollUnhealthy,
		Snapshot: snapshot(task),
	}, nil
}

// snapshot formats every reported task field for diagnostics. Consumed once
// per poll cycle, never persisted.
func snapshot(task *types.Task) *types.TaskSnapshot {
	detail := map[string]string{
		"id":            task.ID,
		"service_id":    task.ServiceID,
		"node_id":       task.NodeID,
		"desired_state": string(task.DesiredState),
		"state":         string(task.Status.State),
		"message":       task.Status.Message,
		"error":         task.Status.Err,
	}
	if !task.Status.Timestamp.IsZero() {
		detail["timestamp"] = task.Status.Timestamp.Format(time.RFC3339)
	}
	return &types.TaskSnapshot{
		State:  task.Status.State,
		Detail: detail,
	}
}
