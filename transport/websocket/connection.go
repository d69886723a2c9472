package websocket

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/protocol"
)

const maxMessageSize = 4096

// connection is one client socket. Writes go through the send queue and are performed by writePump only.
type connection struct {
	id     string
	socket *websocket.Conn
	logger *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(logger *slog.Logger, id string, socket *websocket.Conn, sendBuffer int) *connection {
	return &connection{
		id:     id,
		socket: socket,
		logger: logger.With("connectionID", id),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (that *connection) ID() string {
	return that.id
}

// Send - queues the payload. A full queue drops it rather than stall the relay.
func (that *connection) Send(payload protocol.Payload) error {
	data, err := protocol.Encode(payload)
	if err != nil {
		return err
	}

	select {
	case <-that.done:
		return apperror.ErrConnectionClosed
	default:
	}

	select {
	case that.send <- data:
		return nil
	default:
		return fmt.Errorf("%w: %s dropped", apperror.ErrSendQueueFull, payload.Action())
	}
}

func (that *connection) close() {
	that.closeOnce.Do(func() {
		close(that.done)
	})
}

// writePump - drains the send queue and keeps the peer alive with pings.
func (that *connection) writePump(pingInterval, writeTimeout time.Duration) {
	log := that.logger.With("method", "writePump")

	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = that.socket.Close()
	}()

	for {
		select {
		case data := <-that.send:
			_ = that.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := that.socket.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug("write failed", "error", err)
				that.close()
				return
			}
		case <-ticker.C:
			_ = that.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := that.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("ping failed", "error", err)
				that.close()
				return
			}
		case <-that.done:
			_ = that.socket.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout),
			)
			return
		}
	}
}

// readPump - reads frames until the socket fails, passing each decoded payload to handle.
func (that *connection) readPump(pongWait time.Duration, handle func(protocol.Payload)) {
	log := that.logger.With("method", "readPump")

	that.socket.SetReadLimit(maxMessageSize)
	_ = that.socket.SetReadDeadline(time.Now().Add(pongWait))
	that.socket.SetPongHandler(func(string) error {
		return that.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := that.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("connection closed unexpectedly", "error", err)
			}
			return
		}

		payload, err := protocol.Decode(data)
		if err != nil {
			log.Debug("dropping undecodable message", "error", err)
			continue
		}

		handle(payload)
	}
}
