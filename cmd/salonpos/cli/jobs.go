package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rng-salon/salon-pos/jobs"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	RunTask(queue, id string) error
	Close() error
}

// JobsCLI wraps manual management helpers for the POS background queue.
type JobsCLI struct {
	client    enqueuer
	inspector queueInspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// TriggerCleanup enqueues an idempotency key sweep.
func (c *JobsCLI) TriggerCleanup(ctx context.Context, olderThan time.Duration) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := jobs.NewIdempotencyCleanupTask(olderThan)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the metrics of the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// RequeueArchived moves archived order-finalized tasks back to pending and
// returns how many were requeued.
func (c *JobsCLI) RequeueArchived(size int) (int, error) {
	if c == nil || c.inspector == nil {
		return 0, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 50
	}
	tasks, err := c.inspector.ListArchivedTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, info := range tasks {
		if info.Type != jobs.TaskOrderFinalized {
			continue
		}
		if err := c.inspector.RunTask(jobs.QueueDefault, info.ID); err != nil {
			return requeued, fmt.Errorf("requeue %s: %w", info.ID, err)
		}
		requeued++
	}
	return requeued, nil
}

// Run dispatches a jobs subcommand and returns the process exit code.
func (c *JobsCLI) Run(ctx context.Context, args []string, out io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(out, "usage: salonpos jobs <stats|cleanup|requeue>")
		return 2
	}
	switch args[0] {
	case "stats":
		stats, err := c.InspectQueue()
		if err != nil {
			fmt.Fprintf(out, "inspect queue: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
	case "cleanup":
		retention := 7 * 24 * time.Hour
		if len(args) > 1 {
			d, err := time.ParseDuration(args[1])
			if err != nil || d <= 0 {
				fmt.Fprintf(out, "invalid retention %q\n", args[1])
				return 2
			}
			retention = d
		}
		info, err := c.TriggerCleanup(ctx, retention)
		if err != nil {
			fmt.Fprintf(out, "enqueue cleanup: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "enqueued %s (%s)\n", info.ID, info.Type)
	case "requeue":
		n, err := c.RequeueArchived(0)
		if err != nil {
			fmt.Fprintf(out, "requeue: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "requeued %d task(s)\n", n)
	default:
		fmt.Fprintf(out, "unknown jobs command %q\n", args[0])
		return 2
	}
	return 0
}
