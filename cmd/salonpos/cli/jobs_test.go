package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/rng-salon/salon-pos/jobs"
)

type fakeClient struct {
	tasks []*asynq.Task
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (f *fakeClient) Close() error { return nil }

type fakeInspector struct {
	info     *asynq.QueueInfo
	archived []*asynq.TaskInfo
	ran      []string
}

func (f *fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, nil }

func (f *fakeInspector) ListArchivedTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.archived, nil
}

func (f *fakeInspector) RunTask(_, id string) error {
	f.ran = append(f.ran, id)
	return nil
}

func (f *fakeInspector) Close() error { return nil }

func TestRunCleanupEnqueuesWithRetention(t *testing.T) {
	client := &fakeClient{}
	c := &JobsCLI{client: client, inspector: &fakeInspector{}}
	var out bytes.Buffer

	code := c.Run(context.Background(), []string{"cleanup", "48h"}, &out)
	require.Equal(t, 0, code)
	require.Len(t, client.tasks, 1)
	require.Equal(t, jobs.TaskIdempotencyCleanup, client.tasks[0].Type())

	var payload jobs.IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	require.Equal(t, 48*time.Hour, payload.OlderThan)
	require.Contains(t, out.String(), "enqueued t-1")
}

func TestRunCleanupRejectsBadRetention(t *testing.T) {
	c := &JobsCLI{client: &fakeClient{}, inspector: &fakeInspector{}}
	var out bytes.Buffer
	require.Equal(t, 2, c.Run(context.Background(), []string{"cleanup", "-1h"}, &out))
}

func TestRunStatsPrintsJSON(t *testing.T) {
	c := &JobsCLI{client: &fakeClient{}, inspector: &fakeInspector{info: &asynq.QueueInfo{Pending: 3, Retry: 1, Archived: 2}}}
	var out bytes.Buffer
	require.Equal(t, 0, c.Run(context.Background(), []string{"stats"}, &out))

	var stats QueueStats
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	require.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 3, Retry: 1, Archived: 2}, stats)
}

func TestRequeueOnlyOrderFinalizedTasks(t *testing.T) {
	inspector := &fakeInspector{archived: []*asynq.TaskInfo{
		{ID: "a", Type: jobs.TaskOrderFinalized},
		{ID: "b", Type: jobs.TaskIdempotencyCleanup},
		{ID: "c", Type: jobs.TaskOrderFinalized},
	}}
	c := &JobsCLI{client: &fakeClient{}, inspector: inspector}

	n, err := c.RequeueArchived(0)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"a", "c"}, inspector.ran)
}

func TestRunUnknownCommand(t *testing.T) {
	c := &JobsCLI{client: &fakeClient{}, inspector: &fakeInspector{}}
	var out bytes.Buffer
	require.Equal(t, 2, c.Run(context.Background(), []string{"explode"}, &out))
	require.Equal(t, 2, c.Run(context.Background(), nil, &out))
}
