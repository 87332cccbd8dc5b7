package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"ecodash/internal/core"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionImport Action = "import"
)

// RecordWrittenMessage announces that a section changed in the Record Source.
// Consumers re-read the section instead of trusting a payload.
type RecordWrittenMessage struct {
	ID        string       `json:"id"`
	Section   core.Section `json:"section"`
	Action    Action       `json:"action"`
	Company   string       `json:"company,omitempty"`
	Year      int          `json:"year,omitempty"`
	TypeID    string       `json:"type_id,omitempty"`
	Count     int          `json:"count,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

func NewRecordWrittenMessage(section core.Section, action Action) *RecordWrittenMessage {
	return &RecordWrittenMessage{
		ID:        uuid.NewString(),
		Section:   section,
		Action:    action,
		Timestamp: time.Now(),
	}
}

func (m *RecordWrittenMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecordWrittenMessageFromJSON(data []byte) (*RecordWrittenMessage, error) {
	var msg RecordWrittenMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
