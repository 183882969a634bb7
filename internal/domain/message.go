package domain

// MessageType identifies a request sent to the coordinator.
type MessageType string

// MessageUpdateWatchTime asks the coordinator to add seconds to the total.
const MessageUpdateWatchTime MessageType = "UPDATE_WATCH_TIME"

// Message is a fire-and-forget request from a page to the coordinator.
type Message struct {
	Type    MessageType `json:"type" validate:"required,oneof=UPDATE_WATCH_TIME"`
	Seconds float64     `json:"seconds" validate:"finite,gt=0"`
}

// Ack is the coordinator's reply to a Message.
type Ack struct {
	Success bool `json:"success"`
}

// NewUpdateWatchTime builds an UPDATE_WATCH_TIME message.
func NewUpdateWatchTime(seconds float64) Message {
	return Message{Type: MessageUpdateWatchTime, Seconds: seconds}
}
