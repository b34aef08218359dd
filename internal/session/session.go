// Package session owns the live view of one server-executed task: the poll
// scheduler, the push channel, and the coordinator that merges both.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Strob0t/CodePulse/internal/adapter/api"
	cpotel "github.com/Strob0t/CodePulse/internal/adapter/otel"
	"github.com/Strob0t/CodePulse/internal/adapter/push"
	"github.com/Strob0t/CodePulse/internal/config"
	"github.com/Strob0t/CodePulse/internal/domain/task"
	"github.com/Strob0t/CodePulse/internal/port/consumer"
)

// Session is the aggregate root for task synchronization. At most one task is
// live at a time: activating a new task tears the previous one down first.
type Session struct {
	client   *api.Client
	consumer consumer.Consumer
	detector *task.TerminalDetector
	cfg      *config.Config
	metrics  *cpotel.Metrics

	mu      sync.Mutex
	current *activeTask
}

// activeTask bundles the resources of one activation.
type activeTask struct {
	taskID    string
	coord     *Coordinator
	sched     *Scheduler
	pushCh    *push.Channel
	cancel    context.CancelFunc
	span      trace.Span
	startedAt time.Time
	teardown  sync.Once
}

// New creates a session manager. The terminal detector is derived from the
// configured status set and stage-rule toggle.
func New(client *api.Client, cons consumer.Consumer, cfg *config.Config) *Session {
	detector := task.NewTerminalDetector(cfg.Terminal.Statuses)
	if !cfg.Terminal.StageRule {
		detector.DisableStageRule()
	}
	return &Session{
		client:   client,
		consumer: cons,
		detector: detector,
		cfg:      cfg,
	}
}

// SetMetrics attaches metric instruments to the session and its coordinators.
func (s *Session) SetMetrics(m *cpotel.Metrics) { s.metrics = m }

// Activate starts synchronizing taskID. Any previously active task is
// disposed first, so timers and the push socket never leak across
// activations.
func (s *Session) Activate(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disposeLocked()

	runCtx, cancel := context.WithCancel(ctx)
	runCtx, span := cpotel.StartSessionSpan(runCtx, taskID)

	at := &activeTask{
		taskID:    taskID,
		sched:     NewScheduler(s.cfg.Poll),
		cancel:    cancel,
		span:      span,
		startedAt: time.Now(),
	}
	at.coord = NewCoordinator(s.client, s.detector, s.consumer, taskID)
	at.coord.SetMetrics(s.metrics)
	at.coord.SetShutdown(func() { s.stopResources(at) })

	s.openPush(runCtx, at)

	err := at.sched.Start(runCtx, Hooks{
		Fast:      at.coord.FastTick,
		Slow:      at.coord.SlowTick,
		OnTimeout: at.coord.Timeout,
	})
	if err != nil {
		cancel()
		span.End()
		return err
	}

	s.current = at
	slog.Info("session activated", "task_id", taskID)
	return nil
}

// openPush opens the push channel when a usable credential exists (or auth is
// off entirely). A failed handshake is not fatal: polling remains the source
// of truth, and a dropped channel is never re-dialed.
func (s *Session) openPush(ctx context.Context, at *activeTask) {
	token, ok := s.pushToken(ctx)
	if !ok {
		slog.Debug("push channel skipped, no usable credential", "task_id", at.taskID)
		return
	}

	handlers := push.Handlers{
		OnSnapshot: func(snap *task.Snapshot) {
			at.coord.Ingest(ctx, snap, task.SourcePush)
		},
		OnClosed: func(err error) {
			if err != nil {
				slog.Debug("push channel dropped, polling continues",
					"task_id", at.taskID, "error", err)
			}
		},
	}

	ch, err := push.Dial(ctx, s.cfg.API.WSBaseURL, at.taskID, handlers, push.Options{Token: token})
	if err != nil {
		slog.Debug("push channel dial failed, polling continues",
			"task_id", at.taskID, "error", err)
		return
	}
	at.pushCh = ch
}

// pushToken picks the handshake credential: a short-lived minted token when
// logged in, the static key otherwise. With auth disabled the handshake
// carries no token at all.
func (s *Session) pushToken(ctx context.Context) (string, bool) {
	if !s.cfg.Auth.Enabled {
		return "", true
	}
	cred := s.client.Credentials().Get()
	if cred.HasAccess() {
		tok, err := s.client.WSToken(ctx)
		if err == nil {
			return tok, true
		}
		slog.Debug("ws token mint failed", "error", err)
	}
	if cred.HasAPIKey() {
		return cred.APIKey, true
	}
	return "", false
}

// Dispose tears down the active task, releasing timers, the push socket, and
// the session span. Idempotent; disposing an idle session is a no-op.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposeLocked()
}

func (s *Session) disposeLocked() {
	at := s.current
	if at == nil {
		return
	}
	s.current = nil
	s.stopResources(at)
	at.sched.Wait()
}

// stopResources is the shared teardown: scheduler stopped, push closed,
// context cancelled, span ended, duration recorded. Runs at most once per
// activation and is safe from coordinator callbacks.
func (s *Session) stopResources(at *activeTask) {
	at.teardown.Do(func() {
		at.coord.Close()
		at.sched.Stop()
		if at.pushCh != nil {
			at.pushCh.Close()
		}
		at.cancel()
		at.span.End()
		if s.metrics != nil {
			s.metrics.SessionDuration.Record(context.Background(),
				time.Since(at.startedAt).Seconds())
		}
		slog.Info("session released", "task_id", at.taskID)
	})
}

// TaskID returns the active task id, or "" when idle.
func (s *Session) TaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.taskID
}

// Snapshot returns the last-known snapshot of the active task, or nil.
func (s *Session) Snapshot() *task.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.coord.Snapshot()
}

// Active reports whether a task is currently being synchronized.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.sched.State() == SchedulerActive
}
