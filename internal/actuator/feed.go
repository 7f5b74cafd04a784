package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

var ErrFeedNotReady = errors.New("pump feed is not connected")

// NewFeed builds a feed for the device at baseURL. The http(s) scheme is
// swapped for ws(s) and /ws/pump is appended.
func NewFeed(baseURL string, backoff time.Duration) *Feed {
	if backoff <= 0 {
		backoff = DefaultReconnectBackoff
	}

	url := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}

	return &Feed{
		url:     url + "/ws/pump",
		backoff: backoff,
		ready:   make(chan struct{}),
	}
}

// Run connects and reads state pushes until ctx is done, reconnecting after
// the backoff on any error or disconnect.
func (f *Feed) Run(ctx context.Context) {
	slog.Debug(">>Feed.Run", "url", f.url)
	defer slog.Debug("<<Feed.Run")

	for {
		err := f.session(ctx)
		if ctx.Err() != nil {
			return
		}

		slog.Warn("pump feed disconnected, reconnecting", "error", err, "backoff", f.backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.backoff):
		}
	}
}

func (f *Feed) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	c, _, err := websocket.Dial(dialCtx, f.url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial pump feed: %w", err)
	}

	f.setConn(c)
	defer f.clearConn()

	slog.Info("pump feed connected", "url", f.url)

	for {
		var msg struct {
			State *float64 `json:"state"`
		}

		if err := wsjson.Read(ctx, c, &msg); err != nil {
			c.Close(websocket.StatusNormalClosure, "reconnecting")
			return err
		}

		if msg.State == nil {
			slog.Debug("pump feed message without state")
			continue
		}
		if !validLevel(*msg.State) {
			slog.Warn("pump feed sent a level out of range", "state", *msg.State)
			continue
		}

		f.mu.Lock()
		f.reading = Reading{Known: true, Level: *msg.State}
		f.updated = time.Now().UTC()
		f.mu.Unlock()
	}
}

// WaitReady blocks until the feed is connected, ctx is done or the timeout passes.
func (f *Feed) WaitReady(ctx context.Context, timeout time.Duration) error {
	f.mu.Lock()
	ready := f.ready
	f.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrFeedNotReady
	}
}

// Reading returns the last pushed level and whether the feed is connected.
func (f *Feed) Reading() (Reading, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.reading, f.conn != nil
}

func (f *Feed) setConn(c *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.conn = c
	close(f.ready)
}

func (f *Feed) clearConn() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.conn = nil
	f.reading = Reading{}
	f.ready = make(chan struct{})
}
