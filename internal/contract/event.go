package contract

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp is a UTC instant that marshals as RFC 3339 with millisecond
// precision, so canonical JSON is byte-identical across implementations.
type Timestamp struct {
	time.Time
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Now returns the current instant truncated to millisecond precision.
func Now() Timestamp {
	return Timestamp{time.Now().UTC().Truncate(time.Millisecond)}
}

// At wraps an existing time, normalized to UTC milliseconds.
func At(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Millisecond)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(timestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

// EventType discriminates AgentEvent variants.
type EventType string

const (
	EventRunStarted       EventType = "run_started"
	EventRunCompleted     EventType = "run_completed"
	EventAssistantDelta   EventType = "assistant_delta"
	EventAssistantMessage EventType = "assistant_message"
	EventToolCall         EventType = "tool_call"
	EventToolResult       EventType = "tool_result"
	EventFileChanged      EventType = "file_changed"
	EventCommandExecuted  EventType = "command_executed"
	EventWarning          EventType = "warning"
	EventError            EventType = "error"
)

// AgentEvent is one timestamped entry in a run's event stream. The Type
// field discriminates which payload fields are meaningful; unused fields
// stay at their zero value and are omitted on the wire.
type AgentEvent struct {
	TS   Timestamp `json:"ts"`
	Type EventType `json:"type"`

	// run_started / run_completed / warning / error
	Message string `json:"message,omitempty"`

	// assistant_delta / assistant_message
	Text string `json:"text,omitempty"`

	// tool_call / tool_result
	ToolName        string          `json:"tool_name,omitempty"`
	ToolUseID       string          `json:"tool_use_id,omitempty"`
	ParentToolUseID string          `json:"parent_tool_use_id,omitempty"`
	Input           json.RawMessage `json:"input,omitempty"`
	Output          json.RawMessage `json:"output,omitempty"`
	IsError         bool            `json:"is_error,omitempty"`

	// file_changed
	Path    string `json:"path,omitempty"`
	Summary string `json:"summary,omitempty"`

	// command_executed
	Command       string `json:"command,omitempty"`
	ExitCode      *int   `json:"exit_code,omitempty"`
	OutputPreview string `json:"output_preview,omitempty"`

	// error
	ErrorCode string `json:"error_code,omitempty"`

	// Extension fields, passed through opaque but canonicalized for hashing.
	Ext map[string]any `json:"ext,omitempty"`
}

func RunStarted(message string) AgentEvent {
	return AgentEvent{TS: Now(), Type: EventRunStarted, Message: message}
}

func RunCompleted(message string) AgentEvent {
	return AgentEvent{TS: Now(), Type: EventRunCompleted, Message: message}
}

func AssistantDelta(text string) AgentEvent {
	return AgentEvent{TS: Now(), Type: EventAssistantDelta, Text: text}
}

func AssistantMessage(text string) AgentEvent {
	return AgentEvent{TS: Now(), Type: EventAssistantMessage, Text: text}
}

func ToolCall(toolName, toolUseID string, input json.RawMessage) AgentEvent {
	return AgentEvent{TS: Now(), Type: EventToolCall, ToolName: toolName, ToolUseID: toolUseID, Input: input}
}

func ToolResult(toolName, toolUseID string, output json.RawMessage, isError bool) AgentEvent {
	return AgentEvent{TS: Now(), Type: EventToolResult, ToolName: toolName, ToolUseID: toolUseID, Output: output, IsError: isError}
}

func FileChanged(path, summary string) AgentEvent {
	return AgentEvent{TS: Now(), Type: EventFileChanged, Path: path, Summary: summary}
}

func CommandExecuted(command string, exitCode *int, outputPreview string) AgentEvent {
	return AgentEvent{TS: Now(), Type: EventCommandExecuted, Command: command, ExitCode: exitCode, OutputPreview: outputPreview}
}

func WarningEvent(message string) AgentEvent {
	return AgentEvent{TS: Now(), Type: EventWarning, Message: message}
}

func ErrorEvent(message, errorCode string) AgentEvent {
	return AgentEvent{TS: Now(), Type: EventError, Message: message, ErrorCode: errorCode}
}

// IsTerminal reports whether the event legally closes a stream.
func (e AgentEvent) IsTerminal() bool {
	return e.Type == EventRunCompleted || e.Type == EventError
}

// ValidateTrace checks the stream invariants: the first event is
// run_started, the last is run_completed or error, and timestamps never
// decrease. An empty trace is valid.
func ValidateTrace(events []AgentEvent) error {
	if len(events) == 0 {
		return nil
	}
	if events[0].Type != EventRunStarted {
		return fmt.Errorf("trace must open with %s, got %s", EventRunStarted, events[0].Type)
	}
	last := events[len(events)-1]
	if !last.IsTerminal() {
		return fmt.Errorf("trace must close with %s or %s, got %s", EventRunCompleted, EventError, last.Type)
	}
	for i := 1; i < len(events); i++ {
		if events[i].TS.Before(events[i-1].TS.Time) {
			return fmt.Errorf("trace timestamps decrease at index %d", i)
		}
	}
	return nil
}
