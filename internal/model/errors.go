package model

import "errors"

var (
	// ErrClientIDRequired is returned when a stream or control request is missing the client ID.
	ErrClientIDRequired = errors.New("clientID is required")

	// ErrInvalidControl is returned when a control message body cannot be decoded.
	ErrInvalidControl = errors.New("invalid control message")

	// ErrSessionNotFound is returned when a client ID has no live session in the caller's group.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateSession is returned when a client ID is already live in the caller's group.
	ErrDuplicateSession = errors.New("session already exists")

	// ErrSessionLimit is returned when the caller already has the maximum number of live sessions.
	ErrSessionLimit = errors.New("live session limit exceeded")

	// ErrUnauthorized is returned when a credential is missing, invalid or unknown.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailRequired is returned when a user creation request is missing the email.
	ErrEmailRequired = errors.New("email is required")

	// ErrEmailTaken is returned when a user with the same email already exists.
	ErrEmailTaken = errors.New("email already registered")
)
