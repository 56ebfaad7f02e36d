package relay

import "fmt"

// State is the last action taken by an Engine.
type State string

const (
	StateStarted    State = "started"
	StateReceiving  State = "receiving"
	StateWaiting    State = "waiting"
	StateReceived   State = "received"
	StateProcessing State = "processing"
	StateProcessed  State = "processed"
	StateSending    State = "sending"
	StateSent       State = "sent"
	StateClosed     State = "closed"
)

// Status is a point-in-time view of an Engine.
type Status struct {
	Name      string `json:"name"`
	State     State  `json:"state"`
	Received  uint64 `json:"received"`
	Processed uint64 `json:"processed"`
	Sent      uint64 `json:"sent"`
	Pending   int    `json:"pending"`
}

// String renders the fixed status line.
func (s Status) String() string {
	return fmt.Sprintf("%-40s %-10s received=%d processed=%d sent=%d pending=%d",
		s.Name, s.State, s.Received, s.Processed, s.Sent, s.Pending)
}
