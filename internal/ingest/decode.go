package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vk/taskancestry/internal/event"
)

// EventSnapshot is the socket event that requests a live snapshot.
const EventSnapshot = "snapshot"

// ErrEmptyPayload is returned for a socket event without arguments.
var ErrEmptyPayload = errors.New("event payload is empty")

// decodePayload turns the first socket.io argument into an event. The payload
// may be a JSON string, raw bytes or an already decoded object. The socket
// event name fills in the kind when the payload omits it.
func decodePayload(name string, args ...any) (event.Event, error) {
	if len(args) == 0 || args[0] == nil {
		return event.Event{}, ErrEmptyPayload
	}

	var raw []byte
	switch v := args[0].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return event.Event{}, fmt.Errorf("failed to re-encode %T payload: %w", v, err)
		}
	}

	ev, err := event.Decode(raw)
	if err != nil {
		return event.Event{}, err
	}
	if ev.Kind == "" {
		ev.Kind = event.Kind(name)
	}
	if string(ev.Kind) != name {
		return event.Event{}, fmt.Errorf("payload kind %q does not match socket event %q", ev.Kind, name)
	}
	return ev, nil
}
