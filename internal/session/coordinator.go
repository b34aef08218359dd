package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/CodePulse/internal/adapter/api"
	cpotel "github.com/Strob0t/CodePulse/internal/adapter/otel"
	"github.com/Strob0t/CodePulse/internal/domain/task"
	"github.com/Strob0t/CodePulse/internal/port/consumer"
)

// Coordinator is the merge point of one session: every snapshot from either
// channel funnels through Ingest, which owns the authoritative last-known
// snapshot, the per-channel dedup signatures, and the terminal stop-gate.
type Coordinator struct {
	client   *api.Client
	consumer consumer.Consumer
	detector *task.TerminalDetector
	metrics  *cpotel.Metrics
	taskID   string

	// shutdown stops the scheduler and closes the push channel. Set by the
	// owning session before the first tick; invoked at most once.
	shutdown func()

	mu     sync.Mutex
	last   *task.Snapshot
	sigs   map[consumer.Channel]string
	totals map[consumer.Channel]int
	closed bool
}

// NewCoordinator wires a coordinator for one task.
func NewCoordinator(client *api.Client, detector *task.TerminalDetector, cons consumer.Consumer, taskID string) *Coordinator {
	return &Coordinator{
		client:   client,
		consumer: cons,
		detector: detector,
		taskID:   taskID,
		sigs:     make(map[consumer.Channel]string),
		totals:   make(map[consumer.Channel]int),
	}
}

// SetShutdown installs the session teardown hook.
func (c *Coordinator) SetShutdown(fn func()) { c.shutdown = fn }

// SetMetrics attaches metric instruments.
func (c *Coordinator) SetMetrics(m *cpotel.Metrics) { c.metrics = m }

// Snapshot returns the authoritative last-known snapshot, or nil before the
// first ingest.
func (c *Coordinator) Snapshot() *task.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Total returns the last observed item count for a list channel. Counts keep
// updating even when the dedup signature suppressed the notification.
func (c *Coordinator) Total(ch consumer.Channel) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals[ch]
}

// Ingest merges one snapshot from either channel. Later arrivals always win;
// there is no embedded version to compare. The first terminal snapshot closes
// the gate: it triggers the finalize sequence, and every snapshot ingested
// after it is discarded.
func (c *Coordinator) Ingest(ctx context.Context, s *task.Snapshot, source task.Source) {
	if s == nil {
		return
	}
	s.Progress = task.NormalizeProgress(s.Progress)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.SnapshotsDiscarded.Add(ctx, 1)
		}
		return
	}
	c.last = s
	terminal := c.detector.IsTerminal(s)
	if terminal {
		c.closed = true
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SnapshotsIngested.Add(ctx, 1)
	}
	c.consumer.OnSnapshot(s, source)

	if terminal {
		c.finalize(ctx, s)
	}
}

// finalize runs the terminal shutdown sequence: one last files+artifacts
// fetch to capture end-of-run output, then teardown, then the exactly-once
// terminal notification.
func (c *Coordinator) finalize(ctx context.Context, s *task.Snapshot) {
	slog.Info("task terminal, finalizing session",
		"task_id", c.taskID, "status", s.Status, "stage", s.Stage)

	c.fetchFiles(ctx)
	c.fetchArtifacts(ctx)

	if c.shutdown != nil {
		c.shutdown()
	}
	c.consumer.OnTerminal(s)
}

// Close shuts the ingest gate without a terminal notification, so a frame
// arriving during teardown cannot reach the consumer.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Timeout closes the gate for a session that exceeded its wall-clock budget.
// The scheduler has already cancelled its timers; this tears down the rest
// and surfaces the error.
func (c *Coordinator) Timeout(elapsed time.Duration) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	err := api.NewTimeoutError("session exceeded " + elapsed.Truncate(time.Second).String())
	if c.shutdown != nil {
		c.shutdown()
	}
	c.consumer.OnChannelError(consumer.ChannelStatus, err)
	c.notify("error", "Session timed out; the task may still be running server-side.")
}

// FastTick pulls the status and structured-state channels.
func (c *Coordinator) FastTick(ctx context.Context) {
	c.fetchStatus(ctx)
	if !c.isClosed() {
		c.fetchState(ctx)
	}
}

// SlowTick pulls the events, artifacts, and file-index channels.
func (c *Coordinator) SlowTick(ctx context.Context) {
	c.fetchEvents(ctx)
	c.fetchArtifacts(ctx)
	c.fetchFiles(ctx)
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Coordinator) fetchStatus(ctx context.Context) {
	fetchCtx, span := cpotel.StartFetchSpan(ctx, c.taskID, string(consumer.ChannelStatus))
	defer span.End()

	s, err := c.client.GetTask(fetchCtx, c.taskID)
	if err != nil {
		c.statusError(err)
		return
	}
	c.Ingest(ctx, s, task.SourcePoll)
}

// statusError routes a primary-endpoint failure: 404 means the task is gone
// and hard-stops the session; anything else is a soft per-channel error and
// the cadence continues.
func (c *Coordinator) statusError(err error) {
	if !api.IsKind(err, api.KindNotFound) {
		c.channelError(consumer.ChannelStatus, err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	slog.Warn("task not found, stopping session", "task_id", c.taskID)
	if c.shutdown != nil {
		c.shutdown()
	}
	c.consumer.OnChannelError(consumer.ChannelStatus, err)
	c.notify("error", "Task not found; it may have been deleted.")
}

func (c *Coordinator) fetchState(ctx context.Context) {
	fetchCtx, span := cpotel.StartFetchSpan(ctx, c.taskID, string(consumer.ChannelState))
	defer span.End()

	s, err := c.client.GetState(fetchCtx, c.taskID)
	if err != nil {
		// The state endpoint is an enrichment of status; a missing state
		// document is not the hard stop a missing task is.
		if !api.IsKind(err, api.KindNotFound) {
			c.channelError(consumer.ChannelState, err)
		}
		return
	}
	c.Ingest(ctx, s, task.SourcePoll)
}

func (c *Coordinator) fetchEvents(ctx context.Context) {
	fetchCtx, span := cpotel.StartFetchSpan(ctx, c.taskID, string(consumer.ChannelEvents))
	defer span.End()

	list, err := c.client.ListEvents(fetchCtx, c.taskID, api.ListOptions{})
	if err != nil {
		c.channelError(consumer.ChannelEvents, err)
		return
	}
	if c.dedup(consumer.ChannelEvents, list.Keys(), list.Total) {
		c.consumer.OnEvents(list)
		c.countNotification(ctx)
	}
}

func (c *Coordinator) fetchArtifacts(ctx context.Context) {
	fetchCtx, span := cpotel.StartFetchSpan(ctx, c.taskID, string(consumer.ChannelArtifacts))
	defer span.End()

	list, err := c.client.ListArtifacts(fetchCtx, c.taskID, api.ListOptions{})
	if err != nil {
		c.channelError(consumer.ChannelArtifacts, err)
		return
	}
	if c.dedup(consumer.ChannelArtifacts, list.Keys(), list.Total) {
		c.consumer.OnArtifacts(list)
		c.countNotification(ctx)
	}
}

func (c *Coordinator) fetchFiles(ctx context.Context) {
	fetchCtx, span := cpotel.StartFetchSpan(ctx, c.taskID, string(consumer.ChannelFiles))
	defer span.End()

	index, err := c.client.ListFiles(fetchCtx, c.taskID, api.ListOptions{})
	if err != nil {
		c.channelError(consumer.ChannelFiles, err)
		return
	}
	if c.dedup(consumer.ChannelFiles, index.Keys(), index.Total) {
		c.consumer.OnFiles(index)
		c.countNotification(ctx)
	}
}

// dedup records the channel's new total and reports whether the ordered-key
// signature changed since the previous fetch.
func (c *Coordinator) dedup(ch consumer.Channel, keys []string, total int) bool {
	sig := signatureOf(keys)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals[ch] = total
	if prev, seen := c.sigs[ch]; seen && prev == sig {
		return false
	}
	c.sigs[ch] = sig
	return true
}

// channelError surfaces a soft failure on one channel; the other channels
// keep their cadence.
func (c *Coordinator) channelError(ch consumer.Channel, err error) {
	if c.isClosed() {
		return
	}
	slog.Debug("channel fetch failed", "task_id", c.taskID, "channel", ch, "error", err)
	c.consumer.OnChannelError(ch, err)
	c.notify(noticeLevel(err), noticeText(ch, err))
}

func (c *Coordinator) notify(level, msg string) {
	c.consumer.OnNotice(consumer.Notice{Level: level, Message: msg})
}

func (c *Coordinator) countNotification(ctx context.Context) {
	if c.metrics != nil {
		c.metrics.Notifications.Add(ctx, 1)
	}
}

func noticeLevel(err error) string {
	switch api.KindOf(err) {
	case api.KindUnavailable:
		return "info"
	case api.KindAuth:
		return "warning"
	default:
		return "error"
	}
}

func noticeText(ch consumer.Channel, err error) string {
	switch api.KindOf(err) {
	case api.KindUnavailable:
		return "Persistence is not enabled on the server; " + string(ch) + " history is unavailable."
	case api.KindAuth:
		return "Invalid credentials or no access to this task."
	case api.KindNetwork:
		return "Server unreachable while fetching " + string(ch) + "."
	default:
		return "Request failed while fetching " + string(ch) + ": " + err.Error()
	}
}
