package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"livepaste/cfg"
	"livepaste/metrics"
	"livepaste/svc/hub"
	"livepaste/svc/lim"
	"livepaste/svc/store"
	"livepaste/svc/util"
)

// PasteService is the slice of the paste service the engine drives:
// the initial snapshot and the live-edit write path.
type PasteService interface {
	Content(ctx context.Context, id string) (string, error)
	LiveEdit(ctx context.Context, id, text, editorIP string) error
}

// Engine upgrades HTTP requests on /ws/{id} into live edit sessions.
// Each session runs in its handler goroutine for the lifetime of the
// socket, blocking on frame reads; the read idle deadline bounds how
// long a silent client can pin it.
type Engine struct {
	hub            *hub.Hub
	paste          PasteService
	idleTimeout    time.Duration
	writeTimeout   time.Duration
	maxPayload     int64
	trustedProxies []string
}

func NewEngine(h *hub.Hub, p PasteService, c *cfg.Cfg) *Engine {
	return &Engine{
		hub:            h,
		paste:          p,
		idleTimeout:    c.WSIdleTimeout,
		writeTimeout:   c.WSWriteTimeout,
		maxPayload:     c.MaxPasteSize,
		trustedProxies: c.TrustedProxies,
	}
}

// Handle performs the upgrade handshake and runs the session loop.
// Handshake and protocol failures close the transport without a
// structured reply; that is the documented failure mode.
func (e *Engine) Handle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := r.Header.Get("Sec-WebSocket-Key")
	clientIP := lim.GetRealIP(r, e.trustedProxies)

	hj, ok := w.(http.Hijacker)
	if !ok {
		util.Error().Msg("response writer does not support hijacking")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	raw, brw, err := hj.Hijack()
	if err != nil {
		util.Error().Err(err).Msg("hijack failed")
		return
	}
	if key == "" || !store.ValidID(id) {
		raw.Close()
		return
	}
	if err := writeHandshake(raw, key); err != nil {
		raw.Close()
		return
	}
	// The HTTP server may have armed deadlines on the connection before
	// the hijack; the frame loop manages its own.
	raw.SetDeadline(time.Time{})

	conn := newConn(raw, brw.Reader, e.writeTimeout)
	e.hub.Register(id, conn)
	util.Info().Str("id", id).Str("ip", util.RedactIP(clientIP)).Msg("websocket connected")

	if text, err := e.paste.Content(r.Context(), id); err == nil {
		if err := conn.SendText(hub.TextMsg("init", text)); err != nil {
			util.Debug().Str("id", id).Err(err).Msg("init send failed")
		}
	}
	e.hub.BroadcastUserCount(id)

	e.readLoop(id, conn, clientIP)

	e.hub.Deregister(id, conn)
	e.hub.BroadcastUserCount(id)
	conn.Close()
	util.Info().Str("id", id).Msg("websocket disconnected")
}

func (e *Engine) readLoop(id string, conn *Conn, clientIP string) {
	for {
		opcode, payload, err := conn.readFrame(e.idleTimeout, e.maxPayload)
		if err != nil {
			util.Debug().Str("id", id).Err(err).Msg("read loop ended")
			return
		}
		switch opcode {
		case OpClose:
			return
		case OpText:
			metrics.WSMessages.Inc()
			text := string(payload)
			// Storage failures are not surfaced to the sender on the
			// live-edit path; the edit still propagates to peers.
			if err := e.paste.LiveEdit(context.Background(), id, text, clientIP); err != nil {
				util.Warn().Str("id", id).Err(err).Msg("live edit not persisted")
			}
			e.hub.Broadcast(id, hub.TextMsg("update", text), conn)
		default:
			// ping, pong, binary, continuation: ignored
		}
	}
}
