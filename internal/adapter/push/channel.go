// Package push implements the WebSocket push channel for live task updates.
package push

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/CodePulse/internal/domain/task"
)

// defaultKeepAlive is the interval between keepalive pings. The server
// answers each "ping" with a "pong"; both are discarded by the read loop.
const defaultKeepAlive = 30 * time.Second

// Handlers are the channel's callbacks. OnSnapshot receives every parsed
// update; OnClosed fires exactly once when the channel stops, with the read
// error, or nil after a local Close. Unset callbacks are skipped.
type Handlers struct {
	OnSnapshot func(*task.Snapshot)
	OnClosed   func(error)
}

// Channel is a one-shot push subscription for a single task. It never
// reconnects: when the connection drops, the owner falls back to polling.
type Channel struct {
	conn      *websocket.Conn
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// Options configure a Dial.
type Options struct {
	// Token is appended as a query parameter; the browser-style handshake
	// cannot carry an Authorization header.
	Token string
	// KeepAlive overrides the ping interval. Zero means the default;
	// negative disables pings.
	KeepAlive time.Duration
}

// Dial opens the push channel for taskID against the ws base URL
// (ws://host or wss://host) and starts the read loop.
func Dial(ctx context.Context, wsBaseURL, taskID string, h Handlers, opts Options) (*Channel, error) {
	endpoint := wsBaseURL + "/ws/" + url.PathEscape(taskID)
	if opts.Token != "" {
		endpoint += "?token=" + url.QueryEscape(opts.Token)
	}

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	keepAlive := opts.KeepAlive
	if keepAlive == 0 {
		keepAlive = defaultKeepAlive
	}
	if keepAlive > 0 {
		go c.pingLoop(runCtx, keepAlive)
	}
	go c.readLoop(runCtx, taskID, h)

	slog.Debug("push channel open", "task_id", taskID)
	return c, nil
}

// Close tears the channel down without waiting for the read loop; callers
// that need the loop gone await Done. Safe to call multiple times, after the
// connection already dropped, and from inside the channel's own callbacks;
// OnClosed still fires at most once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	})
}

// Done is closed once the read loop has exited.
func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) readLoop(ctx context.Context, taskID string, h Handlers) {
	var closeErr error
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			// A local Close cancels ctx first; that is not a failure.
			if ctx.Err() == nil {
				closeErr = err
			}
			break
		}

		if string(data) == "pong" || string(data) == "ping" {
			continue
		}

		s, ok := task.ParseStateSnapshot(taskID, data)
		if !ok {
			// Unknown frames are dropped without killing the channel.
			slog.Debug("push channel discarded malformed frame", "task_id", taskID)
			continue
		}
		if h.OnSnapshot != nil {
			h.OnSnapshot(s)
		}
	}

	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	})
	// done closes before OnClosed so the callback may call Close itself.
	close(c.done)
	if h.OnClosed != nil {
		h.OnClosed(closeErr)
	}
}

func (c *Channel) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.Write(ctx, websocket.MessageText, []byte("ping")); err != nil {
				return
			}
		}
	}
}
