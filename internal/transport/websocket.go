package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/fmueller/voxrelay/internal/relay"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

type WebSocketHandler struct {
	NewRelay RelayFactory
	Logger   *zap.Logger
	Upgrader websocket.Upgrader
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log := h.log().With(zap.String("session", uuid.NewString()))

	conn, err := h.Upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	emit := func(event relay.Event) {
		writeMu.Lock()
		defer writeMu.Unlock()

		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, marshalEvent(event, log)); err != nil {
			log.Debug("failed to write event", zap.String("type", string(event.Type)), zap.Error(err))
		}
	}

	target, err := h.NewRelay(emit, log)
	if err != nil {
		log.Error("failed to create relay", zap.Error(err))
		writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "relay unavailable"))
		writeMu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	go func() { _ = target.Run(ctx) }()

	log.Info("session opened", zap.String("remote", req.RemoteAddr))
	h.readCommands(ctx, conn, target, log)

	// Nobody is left to receive events for queued or in-flight work.
	cancel()
	target.Close()
	<-target.Done()
	log.Info("session closed")
}

func (h *WebSocketHandler) readCommands(ctx context.Context, conn *websocket.Conn, target *relay.Relay, log *zap.Logger) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		cmd, err := decodeCommand(data)
		if err != nil {
			cmd = relay.Invalid(err)
		}
		if err := target.Submit(ctx, cmd); err != nil {
			log.Debug("command rejected", zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHandler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
