package chat

import "errors"

var (
	// ErrUnknownConnection indicates the connection is not registered.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrNotInRoom indicates the connection occupies no room.
	ErrNotInRoom = errors.New("connection is not in a room")
	// ErrPersistence indicates the message store could not record a message.
	ErrPersistence = errors.New("message store unavailable")
	// ErrDeliveryFailure indicates a recipient's transport is gone.
	ErrDeliveryFailure = errors.New("delivery failed")
	// ErrInvalidEvent indicates a malformed inbound event.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrEmptyMessage indicates a send with an empty body.
	ErrEmptyMessage = errors.New("message content cannot be empty")
	// ErrMessageTooLong indicates a send whose body exceeds the configured limit.
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	// ErrRateLimited indicates the connection is sending too fast.
	ErrRateLimited = errors.New("rate limit exceeded, please slow down")
)
