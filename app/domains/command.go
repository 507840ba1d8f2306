package domains

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResultTimeLayout is the coordinator's wire format for result timestamps
const ResultTimeLayout = "2006-01-02 15:04:05"

// CommandType identifies a diagnostic action
type CommandType string

const (
	CommandHeapDump   CommandType = "HEAP_DUMP"
	CommandThreadDump CommandType = "THREAD_DUMP"
	CommandGCRun      CommandType = "GC_RUN"
	CommandSystemInfo CommandType = "SYSTEM_INFO"
)

// KnownCommandTypes lists every command type the agent can execute
var KnownCommandTypes = []CommandType{
	CommandHeapDump,
	CommandThreadDump,
	CommandGCRun,
	CommandSystemInfo,
}

// Command is a unit of work delivered by the coordinator
type Command struct {
	ID         int64                  `json:"id"`
	Type       CommandType            `json:"type"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// CommandResult is reported exactly once per delivered command
type CommandResult struct {
	CommandID    int64                  `json:"commandId"`
	ContainerID  string                 `json:"containerId"`
	Success      bool                   `json:"success"`
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	StartTime    time.Time              `json:"startTime"`
	EndTime      time.Time              `json:"endTime"`
	Properties   map[string]interface{} `json:"properties"`
}

// NewCommandResult creates a pending result for the given command
func NewCommandResult(cmd Command, containerID string, start time.Time) *CommandResult {
	return &CommandResult{
		CommandID:   cmd.ID,
		ContainerID: containerID,
		StartTime:   start,
		Properties:  make(map[string]interface{}),
	}
}

// AddProperty records a result property
func (r *CommandResult) AddProperty(key string, value interface{}) {
	if r.Properties == nil {
		r.Properties = make(map[string]interface{})
	}
	r.Properties[key] = value
}

// Fail marks the result as failed
func (r *CommandResult) Fail(msg string) {
	r.Success = false
	r.Message = ""
	r.ErrorMessage = msg
}

// Succeed marks the result as successful
func (r *CommandResult) Succeed(msg string) {
	r.Success = true
	r.Message = msg
	r.ErrorMessage = ""
}

// Outcome returns the journal status for the result
func (r *CommandResult) Outcome() string {
	if r.Success {
		return StatusSuccess
	}
	return StatusFailed
}

// resultWire shadows the time fields of CommandResult with their wire form
type resultWire struct {
	plainResult
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type plainResult CommandResult

// MarshalJSON writes startTime and endTime in ResultTimeLayout, in the
// location the times were taken in
func (r CommandResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultWire{
		plainResult: plainResult(r),
		StartTime:   r.StartTime.Format(ResultTimeLayout),
		EndTime:     r.EndTime.Format(ResultTimeLayout),
	})
}

// UnmarshalJSON reads result timestamps in ResultTimeLayout as local time
func (r *CommandResult) UnmarshalJSON(data []byte) error {
	var w resultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = CommandResult(w.plainResult)

	var err error
	if r.StartTime, err = parseResultTime(w.StartTime); err != nil {
		return fmt.Errorf("startTime: %w", err)
	}
	if r.EndTime, err = parseResultTime(w.EndTime); err != nil {
		return fmt.Errorf("endTime: %w", err)
	}
	return nil
}

func parseResultTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(ResultTimeLayout, s, time.Local)
}
