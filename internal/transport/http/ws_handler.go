package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vchaly/roomcast/internal/config"
	"github.com/vchaly/roomcast/internal/core"
	"github.com/vchaly/roomcast/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub          *core.Hub
	pingInterval time.Duration
	pingTimeout  time.Duration
	log          *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:          hub,
		pingInterval: cfg.PingInterval,
		pingTimeout:  cfg.PingTimeout,
		log:          logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	// The session id doubles as the author key for recall authorization, so
	// it is minted server-side rather than trusted from the client.
	client := core.NewClient(uuid.NewString())
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("session_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		frame, err := proto.Decode(data)
		if err != nil {
			// Malformed frames are discarded; the connection stays open.
			h.log.Warn().Err(err).Str("session_id", client.ID).Msg("discarding malformed frame")
			continue
		}
		h.hub.Submit(client, frame)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-client.Out:
			if !ok {
				return nil
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.log.Error().Err(err).Str("session_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.pingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				// A half-open connection must not hold a roster slot.
				return fmt.Errorf("liveness ping: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
