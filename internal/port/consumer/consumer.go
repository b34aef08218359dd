// Package consumer defines the notification port (interface) between the
// synchronization core and display layers.
package consumer

import (
	"github.com/Strob0t/CodePulse/internal/domain/artifact"
	"github.com/Strob0t/CodePulse/internal/domain/event"
	"github.com/Strob0t/CodePulse/internal/domain/task"
	"github.com/Strob0t/CodePulse/internal/domain/workspace"
)

// Channel names a per-cadence fetch stream within a session.
type Channel string

const (
	ChannelStatus    Channel = "status"
	ChannelState     Channel = "state"
	ChannelEvents    Channel = "events"
	ChannelArtifacts Channel = "artifacts"
	ChannelFiles     Channel = "files"
)

// Notice is a transient, auto-dismissing user-facing message.
type Notice struct {
	Level   string // "info", "success", "warning", "error"
	Message string
}

// Consumer receives deduplicated notifications from the sync coordinator.
// Implementations must not block; the coordinator calls them inline.
type Consumer interface {
	// OnSnapshot delivers every accepted (non-duplicate-terminal) snapshot.
	OnSnapshot(s *task.Snapshot, source task.Source)

	// OnEvents fires only when the events dedup signature changed.
	OnEvents(l *event.List)

	// OnArtifacts fires only when the artifacts dedup signature changed.
	OnArtifacts(l *artifact.List)

	// OnFiles fires only when the file index signature changed.
	OnFiles(i *workspace.FileIndex)

	// OnChannelError surfaces a soft per-channel failure. The channel keeps
	// its cadence unless the session is stopping.
	OnChannelError(ch Channel, err error)

	// OnNotice delivers a transient user-facing message.
	OnNotice(n Notice)

	// OnTerminal fires exactly once per session, after the final
	// files+artifacts fetch completed.
	OnTerminal(s *task.Snapshot)
}

// Nop is a Consumer that ignores everything. Embed it to implement only a
// subset of the callbacks.
type Nop struct{}

func (Nop) OnSnapshot(*task.Snapshot, task.Source) {}
func (Nop) OnEvents(*event.List)                   {}
func (Nop) OnArtifacts(*artifact.List)             {}
func (Nop) OnFiles(*workspace.FileIndex)           {}
func (Nop) OnChannelError(Channel, error)          {}
func (Nop) OnNotice(Notice)                        {}
func (Nop) OnTerminal(*task.Snapshot)              {}
