package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntryAction tells the consumer what happened to the entry.
type EntryAction string

const (
	ActionUpsert EntryAction = "upsert"
	ActionDelete EntryAction = "delete"
)

// EntryChangedMessage announces that an owner's entry for a date changed.
// It carries only the key; the consumer fetches current state from the store.
type EntryChangedMessage struct {
	OwnerID   string      `json:"owner_id"`
	Date      string      `json:"date"`
	Action    EntryAction `json:"action"`
	EntryID   string      `json:"entry_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewEntryChangedMessage(ownerID, date string, action EntryAction, entryID string) *EntryChangedMessage {
	return &EntryChangedMessage{
		OwnerID:   ownerID,
		Date:      date,
		Action:    action,
		EntryID:   entryID,
		Timestamp: time.Now().UTC(),
	}
}

func (m *EntryChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntryChangedMessageFromJSON decodes and validates a message body.
func EntryChangedMessageFromJSON(data []byte) (*EntryChangedMessage, error) {
	var msg EntryChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.OwnerID == "" || msg.Date == "" {
		return nil, fmt.Errorf("message missing owner or date")
	}
	switch msg.Action {
	case ActionUpsert, ActionDelete:
	default:
		return nil, fmt.Errorf("unknown action %q", msg.Action)
	}
	return &msg, nil
}
