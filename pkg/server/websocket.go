package server

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/genesis/pkg/broadcast"
)

// wsSender writes broadcast payloads to one WebSocket connection.
type wsSender struct {
	conn   *websocket.Conn
	failed atomic.Bool
}

var _ broadcast.Sender = (*wsSender)(nil)

func (s *wsSender) Send(ctx context.Context, payload []byte) error {
	err := s.conn.Write(ctx, websocket.MessageText, payload)
	if err != nil {
		s.failed.Store(true)
	}
	return err
}

// Close skips the close handshake when the peer already stopped accepting
// writes.
func (s *wsSender) Close() error {
	if s.failed.Load() {
		return s.conn.CloseNow()
	}
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) handleLiveStatus(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())
	if s.broadcaster == nil {
		http.Error(w, "live status is not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// Observers never send; CloseRead discards input and reports disconnects.
	ctx := conn.CloseRead(context.Background())

	obs, err := s.broadcaster.Subscribe(&wsSender{conn: conn})
	if err != nil {
		logger.Warn().Err(err).Msg("could not subscribe observer")
		_ = conn.Close(websocket.StatusTryAgainLater, "broadcaster unavailable")
		return
	}
	logger.Info().Str("observer", obs.ID().String()).Msg("observer connected")

	select {
	case <-ctx.Done():
		s.broadcaster.Unsubscribe(obs.ID())
	case <-obs.Done():
	}
	logger.Info().Str("observer", obs.ID().String()).Msg("observer disconnected")
}
