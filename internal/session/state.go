// Package session decides what to do with each inbound message: run a
// control command, hand it to the detection pipeline, or drop it.
package session

import (
	"errors"
	"time"

	"github.com/dayuer/charbot-go/internal/bus"
)

// ErrUnknownGroup is returned when a numeric selection does not match the
// pending group listing.
var ErrUnknownGroup = errors.New("unknown group selection")

// Status is the derived session state.
type Status int

const (
	Unbound Status = iota
	BoundInactive
	Active
)

func (s Status) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case BoundInactive:
		return "bound-inactive"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// State is the session's durable part.
type State struct {
	Active         bool      `json:"active"`
	BoundGroupID   string    `json:"boundGroupId,omitempty"`
	BoundGroupName string    `json:"boundGroupName,omitempty"`
	ActivatedAt    time.Time `json:"activatedAt,omitempty"`
}

// Status derives the state machine position.
func (s State) Status() Status {
	switch {
	case s.BoundGroupID == "":
		return Unbound
	case s.Active:
		return Active
	default:
		return BoundInactive
	}
}

// Snapshot is everything needed to move a session to a new engine.
type Snapshot struct {
	State       State       `json:"state"`
	Dedup       []string    `json:"dedup,omitempty"`
	Pending     []bus.Group `json:"pending,omitempty"`
	PendingChat string      `json:"pendingChat,omitempty"`
}
