package hub

import "errors"

var (
	// ErrHubClosed is returned by Send once the coordinator has stopped.
	ErrHubClosed = errors.New("hub: coordinator is closed")
)
