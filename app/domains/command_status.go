package domains

import "time"

// Journal statuses of a delivered command
const (
	StatusRunning   = "running"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// CommandRecord is a journal entry for a delivered command
type CommandRecord struct {
	ID           int64     `json:"id"`
	CommandID    int64     `json:"commandId"`
	CommandType  string    `json:"commandType"`
	Status       string    `json:"status"`
	Submitted    bool      `json:"submitted"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	ArtifactID   *string   `json:"artifactId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
