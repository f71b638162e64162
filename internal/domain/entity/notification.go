package entity

import "time"

// Notification is a message kept by the database channel, or a failed
// delivery on another channel waiting to be retried
type Notification struct {
	ID           int64      `json:"id"`
	InstanceID   int64      `json:"instance_id"`
	EventType    string     `json:"event_type"`
	Channel      string     `json:"channel"`
	Recipient    string     `json:"recipient"`
	Subject      string     `json:"subject"`
	Body         string     `json:"body"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Attempts     int        `json:"attempts"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
