package spawner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubfleet/hubfleet/pkg/config"
	"github.com/hubfleet/hubfleet/pkg/types"
)

func pollEngine(tasks []types.Task) *scriptedEngine {
	return &scriptedEngine{
		inspect: func(ref string) (*types.Service, error) {
			return &types.Service{ID: "svc"}, nil
		},
		tasks: func(service string, desired types.TaskState) ([]types.Task, error) {
			return tasks, nil
		},
	}
}

func TestPollHealthy(t *testing.T) {
	cfg := config.Default()
	fake := pollEngine([]types.Task{
		{ID: "t1", Status: types.TaskStatus{State: types.TaskStateRunning}},
	})
	s, _ := newTestSpawner(t, &cfg, fake)

	result, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollHealthy, result.Status)
	assert.Nil(t, result.Snapshot)
}

func TestPollUnhealthy(t *testing.T) {
	cfg := config.Default()
	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	fake := pollEngine([]types.Task{
		{
			ID:           "t1",
			ServiceID:    "svc",
			NodeID:       "node7",
			DesiredState: types.TaskStateRunning,
			Status: types.TaskStatus{
				Timestamp: started,
				State:     types.TaskStateFailed,
				Message:   "started",
				Err:       "exit code 137",
			},
		},
	})
	s, _ := newTestSpawner(t, &cfg, fake)

	result, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollUnhealthy, result.Status)
	require.NotNil(t, result.Snapshot)
	assert.Equal(t, types.TaskStateFailed, result.Snapshot.State)
	assert.Equal(t, "exit code 137", result.Snapshot.Detail["error"])
	assert.Equal(t, "node7", result.Snapshot.Detail["node_id"])
	assert.Equal(t, "2026-03-14T09:00:00Z", result.Snapshot.Detail["timestamp"])
}

func TestPollGoneWhenServiceAbsent(t *testing.T) {
	cfg := config.Default()
	fake := &scriptedEngine{
		inspect: func(ref string) (*types.Service, error) { return nil, notFound() },
	}
	s, _ := newTestSpawner(t, &cfg, fake)

	result, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollGone, result.Status)
}

func TestPollGoneWhenNoTasks(t *testing.T) {
	cfg := config.Default()
	fake := pollEngine(nil)
	s, _ := newTestSpawner(t, &cfg, fake)

	result, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollGone, result.Status)
}

func TestPollConflictIsAnError(t *testing.T) {
	cfg := config.Default()
	fake := pollEngine([]types.Task{{ID: "t1"}, {ID: "t2"}})
	s, _ := newTestSpawner(t, &cfg, fake)

	_, err := s.Poll(context.Background())
	var conflict *TaskConflictError
	require.ErrorAs(t, err, &conflict)
}
