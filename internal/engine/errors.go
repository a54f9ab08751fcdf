package engine

import (
	"encoding/json"
	"errors"
)

// ErrOffline is recorded when a sync cycle runs with no connectivity. The
// cycle is deferred, not failed: the next online transition retries it.
var ErrOffline = errors.New("engine: offline, sync deferred")

// RemoteError is a server-pushed error condition, delivered over the push
// stream rather than as an HTTP response.
type RemoteError struct {
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return "engine: remote error: " + e.Message
}

// parseRemoteError decodes the JSON body of a pushed error event. An
// unparseable body becomes the error message verbatim.
func parseRemoteError(data string) *RemoteError {
	var body struct {
		Message string `json:"message"`
	}

	if err := json.Unmarshal([]byte(data), &body); err != nil || body.Message == "" {
		return &RemoteError{Message: data}
	}

	return &RemoteError{Message: body.Message}
}
