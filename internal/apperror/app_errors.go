package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMove  = errors.New("invalid move")
	ErrInvalidCell  = fmt.Errorf("%w: invalid cell index", ErrInvalidMove)
	ErrCellOccupied = fmt.Errorf("%w: cell is already occupied", ErrInvalidMove)
	ErrInvalidMark  = fmt.Errorf("%w: invalid mark", ErrInvalidMove)

	ErrGameFinished = errors.New("game is already finished")
	ErrNotYourTurn  = errors.New("it's not your turn")
	ErrNoSession    = errors.New("no active session")

	ErrStaleMessage = errors.New("stale message")
	ErrChannelLost  = errors.New("channel to relay lost")

	ErrUnknownAction    = errors.New("unknown action")
	ErrMalformedMessage = errors.New("malformed message")

	ErrOutcomeNotFound = errors.New("outcome not found")

	ErrSendQueueFull    = errors.New("send queue is full")
	ErrConnectionClosed = errors.New("connection is closed")
)
