package models

import "errors"

var (
	ErrInvalidUsername  = errors.New("invalid username")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidMessageID = errors.New("invalid message ID")
	ErrInvalidUserID    = errors.New("invalid user ID")
	ErrNotRegistered    = errors.New("connection is not registered")
	ErrMaxConnections   = errors.New("maximum connections reached")
	ErrSendBufferFull   = errors.New("connection send buffer is full")
	ErrConnectionClosed = errors.New("connection is closed")
)
