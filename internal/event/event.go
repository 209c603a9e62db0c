// Package event defines the lifecycle events the runtime integration reports
// and the newline-delimited JSON trace format used to record and replay them.
package event

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Kind names a lifecycle callback.
type Kind string

const (
	KindRegionBegin  Kind = "region_begin"
	KindRegionEnd    Kind = "region_end"
	KindImplicitTask Kind = "implicit_task"
	KindTaskCreate   Kind = "task_create"
	KindTaskComplete Kind = "task_complete"
)

// Endpoint distinguishes the begin and end callbacks of a scoped event.
type Endpoint string

const (
	Begin Endpoint = "begin"
	End   Endpoint = "end"
)

// Event is one lifecycle callback. Ids are encoded as JSON strings so that
// the full uint64 range survives transports that decode numbers as float64.
type Event struct {
	Kind     Kind     `json:"kind"`
	Endpoint Endpoint `json:"endpoint,omitempty"`
	// Thread is the reporting worker thread. For implicit tasks it is the
	// thread number within the team.
	Thread       uint32 `json:"thread,omitempty"`
	TaskID       uint64 `json:"task_id,omitempty,string"`
	RegionID     uint64 `json:"region_id,omitempty,string"`
	ParentTaskID uint64 `json:"parent_task_id,omitempty,string"`
	TeamSize     uint32 `json:"team_size,omitempty"`
	Initial      bool   `json:"initial,omitempty"`
	CodeLocation uint64 `json:"code_location,omitempty,string"`
}

// RegionBegin builds a region_begin event.
func RegionBegin(thread uint32, regionID, parentTaskID uint64, teamSize uint32, codeLocation uint64) Event {
	return Event{Kind: KindRegionBegin, Thread: thread, RegionID: regionID, ParentTaskID: parentTaskID, TeamSize: teamSize, CodeLocation: codeLocation}
}

// ImplicitTaskBegin builds the begin endpoint of an implicit_task event.
func ImplicitTaskBegin(threadNum uint32, taskID, regionID uint64) Event {
	return Event{Kind: KindImplicitTask, Endpoint: Begin, Thread: threadNum, TaskID: taskID, RegionID: regionID}
}

// ImplicitTaskEnd builds the end endpoint of an implicit_task event.
func ImplicitTaskEnd(threadNum uint32, taskID uint64) Event {
	return Event{Kind: KindImplicitTask, Endpoint: End, Thread: threadNum, TaskID: taskID}
}

// TaskCreate builds a task_create event.
func TaskCreate(thread uint32, taskID, parentTaskID uint64, initial bool, codeLocation uint64) Event {
	return Event{Kind: KindTaskCreate, Thread: thread, TaskID: taskID, ParentTaskID: parentTaskID, Initial: initial, CodeLocation: codeLocation}
}

// TaskComplete builds a task_complete event.
func TaskComplete(thread uint32, taskID uint64) Event {
	return Event{Kind: KindTaskComplete, Thread: thread, TaskID: taskID}
}

// Decode parses one JSON-encoded event.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return ev, nil
}

// Encode returns the JSON encoding of ev.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}

// ReadTrace reads a newline-delimited trace. Blank lines and lines starting
// with '#' are skipped.
func ReadTrace(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		ev, err := Decode(text)
		if err != nil {
			return nil, fmt.Errorf("trace line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	return events, nil
}

// WriteTrace writes events as a newline-delimited trace.
func WriteTrace(w io.Writer, events []Event) error {
	bw := bufio.NewWriter(w)
	for _, ev := range events {
		data, err := Encode(ev)
		if err != nil {
			return err
		}
		bw.Write(data)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
