package status

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/KyleBrandon/lbis-server/pkg/utils"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func NewHandler(builder *Builder, originPatterns []string) *Handler {
	return &Handler{
		builder:           builder,
		originPatterns:    originPatterns,
		pushInterval:      DefaultPushInterval,
		heartbeatInterval: DefaultHeartbeatInterval,
		subscribers:       make(map[chan struct{}]struct{}),
	}
}

// AttachBuilder supplies the builder when it could not exist before the
// handler did. It must be called before serving.
func (h *Handler) AttachBuilder(builder *Builder) {
	h.builder = builder
}

func (h *Handler) Builder() *Builder {
	return h.builder
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/status", h.handleGetStatus)
	mux.HandleFunc("/v1/status/ws", h.handleStatusWS)
}

// RequestStatusUpdate pushes a fresh status to every connected client now
// instead of on the next tick. It never blocks.
func (h *Handler) RequestStatusUpdate() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *Handler) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	return ch
}

func (h *Handler) unsubscribe(ch chan struct{}) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, h.builder.Build())
}

func (h *Handler) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	slog.Debug(">>handleWS: new incoming connection")
	defer slog.Debug("<<handleWS")

	opts := &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	}
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("websocket accept error:", "error", err)
		return
	}

	defer c.Close(websocket.StatusInternalError, "Unexpected connection close")

	ctx := c.CloseRead(r.Context())

	h.monitorStatus(ctx, c)
}

func (h *Handler) monitorStatus(ctx context.Context, c *websocket.Conn) {
	slog.Debug(">>monitorStatus")
	defer slog.Debug("<<monitorStatus")

	refreshCh := h.subscribe()
	defer h.unsubscribe(refreshCh)

	ticker := time.NewTicker(h.pushInterval)
	heartbeatTicker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	defer heartbeatTicker.Stop()

	if !h.write(ctx, c) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitorStatus: client disconnected")
			c.Close(websocket.StatusNormalClosure, "Connection closed")
			return

		case <-ticker.C:
			if !h.write(ctx, c) {
				return
			}

		case <-refreshCh:
			if !h.write(ctx, c) {
				return
			}

		case <-heartbeatTicker.C:
			err := c.Ping(ctx)
			if err != nil {
				slog.Error("monitorStatus: error sending ping", "error", err)
				c.Close(websocket.StatusInternalError, "error sending ping")
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, c *websocket.Conn) bool {
	err := wsjson.Write(ctx, c, h.builder.Build())
	if err != nil {
		slog.Error("monitorStatus: error writing to client", "error", err)
		c.Close(websocket.StatusInternalError, "error writing status")
		return false
	}

	return true
}
