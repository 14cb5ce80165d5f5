package client

import "errors"

var (
	// ErrPoolFull is returned by submit when the server reports 429.
	ErrPoolFull = errors.New("client: server pool is full")

	// ErrConflict is returned by submit when the server reports 409.
	ErrConflict = errors.New("client: task_id conflicts with an in-flight task")

	// ErrServerRejected covers any other non-2xx submit response.
	ErrServerRejected = errors.New("client: server rejected submission")
)
