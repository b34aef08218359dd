// Package term renders session notifications as plain terminal output.
package term

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Strob0t/CodePulse/internal/domain/artifact"
	"github.com/Strob0t/CodePulse/internal/domain/event"
	"github.com/Strob0t/CodePulse/internal/domain/task"
	"github.com/Strob0t/CodePulse/internal/domain/workspace"
	"github.com/Strob0t/CodePulse/internal/port/consumer"
)

// Renderer is a consumer.Consumer writing one line per notification. It keeps
// no screen state, so output stays readable when piped or captured.
type Renderer struct {
	mu       sync.Mutex
	out      io.Writer
	verbose  bool
	lastLine string
	done     chan struct{}
}

// NewRenderer writes notifications to out. With verbose set, individual
// events are printed as they arrive instead of just counts.
func NewRenderer(out io.Writer, verbose bool) *Renderer {
	return &Renderer{
		out:     out,
		verbose: verbose,
		done:    make(chan struct{}),
	}
}

// Done is closed when the terminal notification arrives.
func (r *Renderer) Done() <-chan struct{} { return r.done }

func (r *Renderer) OnSnapshot(s *task.Snapshot, source task.Source) {
	line := fmt.Sprintf("%-12s %-20s %3.0f%%", s.Status, s.Stage, s.Progress*100)
	if s.Error != "" {
		line += "  error: " + s.Error
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Identical consecutive updates (a poll echoing what push already said)
	// stay off the screen.
	if line == r.lastLine {
		return
	}
	r.lastLine = line
	tag := " "
	if source == task.SourcePush {
		tag = "*"
	}
	fmt.Fprintf(r.out, "%s %s\n", tag, line)
}

func (r *Renderer) OnEvents(l *event.List) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.verbose {
		fmt.Fprintf(r.out, "  events: %d\n", l.Total)
		return
	}
	for _, e := range l.Events {
		fmt.Fprintf(r.out, "  event %-10s %s\n", e.Type, e.ID)
	}
}

func (r *Renderer) OnArtifacts(l *artifact.List) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "  artifacts: %d\n", l.Total)
	if r.verbose {
		for _, a := range l.Artifacts {
			fmt.Fprintf(r.out, "    %-10s %s (by %s)\n", a.Type, a.ID, a.ProducedBy)
		}
	}
}

func (r *Renderer) OnFiles(i *workspace.FileIndex) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "  files: %d\n", i.Total)
	if r.verbose {
		for _, f := range i.Files {
			fmt.Fprintf(r.out, "    %s\n", f)
		}
	}
}

func (r *Renderer) OnChannelError(ch consumer.Channel, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "! %s: %v\n", ch, err)
}

func (r *Renderer) OnNotice(n consumer.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "[%s] %s\n", n.Level, n.Message)
}

func (r *Renderer) OnTerminal(s *task.Snapshot) {
	r.mu.Lock()
	fmt.Fprintf(r.out, "task %s finished: %s", s.TaskID, s.Status)
	if elapsed := s.Elapsed(); elapsed > 0 {
		fmt.Fprintf(r.out, " in %s", elapsed.Truncate(time.Second))
	}
	if len(s.Result) > 0 {
		fmt.Fprintf(r.out, "\n%s", s.Result)
	}
	fmt.Fprintln(r.out)
	r.mu.Unlock()
	close(r.done)
}
