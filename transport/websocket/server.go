package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-relay/internal/relay"
)

type uRelay interface {
	Connect(ctx context.Context, participant relay.Participant)
	Disconnect(ctx context.Context, participant relay.Participant)
	Handle(ctx context.Context, from relay.Participant, payload protocol.Payload) error
}

type Options struct {
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	logger   *slog.Logger
	relay    uRelay
	options  Options
	newID    func() string
	upgrader websocket.Upgrader

	connectionsMutex sync.Mutex
	connections      map[string]*connection
}

func New(logger *slog.Logger, relay uRelay, options Options, newID func() string) *Server {
	return &Server{
		logger:  logger.With("component", "websocket"),
		relay:   relay,
		options: options,
		newID:   newID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		connections: make(map[string]*connection),
	}
}

// ServeHTTP - upgrades the request and serves the connection until either side closes it.
func (that *Server) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "ServeHTTP")

	socket, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		// the upgrader has already replied with an HTTP error
		log.Debug("failed to upgrade connection", "error", err)
		return
	}

	ctx := context.WithoutCancel(req.Context())
	conn := newConnection(that.logger, that.newID(), socket, that.options.SendBuffer)

	that.connectionsMutex.Lock()
	that.connections[conn.id] = conn
	that.connectionsMutex.Unlock()

	log.Info("player connected", "connectionID", conn.id)

	go conn.writePump(that.options.PingInterval, that.options.WriteTimeout)

	that.relay.Connect(ctx, conn)

	conn.readPump(that.pongWait(), func(payload protocol.Payload) {
		if err := that.relay.Handle(ctx, conn, payload); err != nil {
			if errors.Is(err, apperror.ErrStaleMessage) || errors.Is(err, apperror.ErrUnknownAction) {
				log.Debug("message ignored", "connectionID", conn.id, "action", payload.Action(), "error", err)
				return
			}

			log.Error("error processing message", "connectionID", conn.id, "action", payload.Action(), "error", err)
		}
	})

	that.relay.Disconnect(ctx, conn)
	conn.close()

	that.connectionsMutex.Lock()
	delete(that.connections, conn.id)
	that.connectionsMutex.Unlock()

	log.Info("player disconnected", "connectionID", conn.id)
}

// Close - closes every open connection. http.Server.Shutdown does not wait for upgraded connections.
func (that *Server) Close() {
	that.connectionsMutex.Lock()
	defer that.connectionsMutex.Unlock()

	for _, conn := range that.connections {
		conn.close()
	}
}

func (that *Server) pongWait() time.Duration {
	return that.options.PingInterval * 2
}
