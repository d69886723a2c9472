package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/protocol"
)

const writeWait = 10 * time.Second

// Channel is the client's bidirectional link to the relay.
type Channel interface {
	Send(ctx context.Context, payload protocol.Payload) error
	// Receive blocks until the next message arrives or the channel fails.
	Receive(ctx context.Context) (protocol.Payload, error)
	Close() error
}

// WSChannel - a Channel over a gorilla websocket connection.
type WSChannel struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Dial - opens a websocket to the relay, e.g. ws://localhost:9090/ws.
func Dial(ctx context.Context, url string) (*WSChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: could not dial %s: %w", apperror.ErrChannelLost, url, err)
	}

	return &WSChannel{conn: conn}, nil
}

func (that *WSChannel) Send(ctx context.Context, payload protocol.Payload) error {
	data, err := protocol.Encode(payload)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(writeWait)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	// gorilla supports one concurrent writer
	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if err = that.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrChannelLost, err)
	}

	if err = that.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrChannelLost, err)
	}

	return nil
}

// Receive - reads the next frame. Frames that fail to decode return a protocol error and leave the channel usable.
func (that *WSChannel) Receive(_ context.Context) (protocol.Payload, error) {
	_, data, err := that.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrChannelLost, err)
	}

	return protocol.Decode(data)
}

func (that *WSChannel) Close() error {
	that.writeMu.Lock()
	_ = that.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	that.writeMu.Unlock()

	return that.conn.Close()
}
