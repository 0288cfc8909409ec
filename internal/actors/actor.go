// Package actors bounds how many turns execute at once via a pool of slots (actors).
package actors

// ActorStatus represents the state of an actor slot.
type ActorStatus string

const (
	ActorIdle ActorStatus = "idle"
	ActorBusy ActorStatus = "busy"
)

// Actor represents a single turn-execution slot.
type Actor struct {
	ID             string      `json:"id"`
	Status         ActorStatus `json:"status"`
	CurrentSession string      `json:"current_session,omitempty"`
	Turns          int64       `json:"turns"` // turns served since start
}
