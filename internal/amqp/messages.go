package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names what happened to an expense.
type EventType string

const (
	EventSaved   EventType = "expense.saved"
	EventUpdated EventType = "expense.updated"
	EventDeleted EventType = "expense.deleted"
)

func (t EventType) Valid() bool {
	switch t {
	case EventSaved, EventUpdated, EventDeleted:
		return true
	}
	return false
}

// ExpenseEvent is a lightweight notification. Consumers read the current
// expense from the database; deleted expenses are identified by ID only.
type ExpenseEvent struct {
	MessageID string    `json:"message_id"`
	Type      EventType `json:"type"`
	ExpenseID int64     `json:"expense_id"`
	ChatID    int64     `json:"chat_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseEvent stamps a new event with a random message ID.
func NewExpenseEvent(t EventType, expenseID, chatID int64) ExpenseEvent {
	return ExpenseEvent{
		MessageID: uuid.NewString(),
		Type:      t,
		ExpenseID: expenseID,
		ChatID:    chatID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ExpenseEventFromJSON decodes and checks an event body.
func ExpenseEventFromJSON(data []byte) (ExpenseEvent, error) {
	var e ExpenseEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ExpenseEvent{}, err
	}
	if !e.Type.Valid() {
		return ExpenseEvent{}, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.ExpenseID <= 0 {
		return ExpenseEvent{}, fmt.Errorf("event without expense id")
	}
	return e, nil
}
