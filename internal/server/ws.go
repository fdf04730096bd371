package server

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/readwell/readalong/internal/session"
	"github.com/readwell/readalong/internal/store"
)

// handleSession upgrades to WebSocket and runs the live reading session
// for an attempt. Binary frames are reader audio; text frames are control
// messages. The server streams alignment feedback back as JSON text
// frames until the story completes or either side disconnects.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	attemptID := r.PathValue("id")

	target, err := s.cfg.Store.TargetSequence(r.Context(), attemptID)
	if err != nil {
		s.storeError(w, "target sequence", err)
		return
	}

	var governor *session.Governor
	if s.cfg.Governor != nil {
		governor = s.cfg.Governor()
	}

	orch, err := session.New(session.Config{
		AttemptRef:        attemptID,
		Target:            target,
		Provider:          s.cfg.Provider,
		Stream:            s.cfg.Stream,
		AlignOptions:      s.cfg.AlignOptions,
		Governor:          governor,
		Sink:              s.cfg.Store,
		Metrics:           s.metrics,
		CommitInterval:    s.cfg.CommitInterval,
		KeepAliveInterval: s.cfg.KeepAliveInterval,
		StuckLimit:        s.cfg.StuckLimit,
		MaxReconnects:     s.cfg.MaxReconnects,
	})
	if err != nil {
		s.log.Error("session setup failed", "attempt", attemptID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "attempt", attemptID, "err", err)
		return
	}
	defer conn.CloseNow()

	s.log.Info("session connected", "attempt", attemptID, "words", len(target))

	if err := orch.Run(r.Context(), &wsClient{conn: conn}); err != nil {
		s.log.Warn("session ended with error", "attempt", attemptID, "err", err)
		conn.Close(websocket.StatusInternalError, "session error")
		return
	}

	snap := orch.Snapshot()
	s.log.Info("session ended",
		"attempt", attemptID,
		"phase", snap.Phase,
		"cursor", snap.Cursor,
	)
	conn.Close(websocket.StatusNormalClosure, "")
}

// wsClient adapts a coder/websocket connection to the orchestrator's
// client interface.
type wsClient struct {
	conn *websocket.Conn
}

var _ session.ClientConn = (*wsClient)(nil)

func (c *wsClient) Read(ctx context.Context) (session.Frame, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		return session.Frame{}, err
	}
	return session.Frame{
		Binary: typ == websocket.MessageBinary,
		Data:   data,
	}, nil
}

func (c *wsClient) Send(ctx context.Context, v any) error {
	return wsjson.Write(ctx, c.conn, v)
}

var _ session.EventSink = (store.Store)(nil)
